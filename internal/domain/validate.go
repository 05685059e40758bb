package domain

import (
	"math"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goalpath/planner-api/internal/apperr"
)

// Validator is implemented by every procedure input that carries rules
// beyond its JSON shape.
type Validator interface {
	Validate() error
}

// violations collects field problems so a caller sees all of them at once.
type violations []string

func (v *violations) add(msg string) {
	*v = append(*v, msg)
}

func (v *violations) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field + " is required")
	}
}

func (v *violations) maxLen(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		v.add(field + " is too long")
	}
}

func (v *violations) positive(field string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		v.add(field + " must be greater than 0")
	}
}

func (v *violations) nonNegative(field string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		v.add(field + " must not be negative")
	}
}

func (v *violations) date(field, value string) {
	if value == "" {
		return
	}
	if _, ok := ParseDate(value); !ok {
		v.add(field + " must be a date (YYYY-MM-DD or RFC 3339)")
	}
}

func (v *violations) email(field, value string) {
	if value == "" {
		v.add(field + " is required")
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v.add(field + " must be a valid email")
	}
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return apperr.BadRequest(strings.Join(v, "; "))
}

// ParseDate accepts the two date shapes the web client sends.
func ParseDate(value string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// NormalizeEmail lower-cases and trims an address for comparisons and keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
