/**
 * @description
 * Core user-facing models: the persisted profile and the per-request
 * session identity produced by the auth layer.
 */
package domain

import (
	"regexp"
	"time"
)

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Preferences holds display and notification settings.
type Preferences struct {
	Theme              Theme  `json:"theme" dynamodbav:"theme"`
	Currency           string `json:"currency" dynamodbav:"currency"`
	EmailNotifications bool   `json:"emailNotifications" dynamodbav:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications" dynamodbav:"pushNotifications"`
	WeeklySummary      bool   `json:"weeklySummary" dynamodbav:"weeklySummary"`
}

// DefaultPreferences are applied when a profile is first created.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:              ThemeSystem,
		Currency:           "USD",
		EmailNotifications: true,
		WeeklySummary:      true,
	}
}

// ProfileStats are aggregates over the user's plans, recomputed on read.
type ProfileStats struct {
	TotalPlans     int     `json:"totalPlans" dynamodbav:"totalPlans"`
	ActivePlans    int     `json:"activePlans" dynamodbav:"activePlans"`
	CompletedPlans int     `json:"completedPlans" dynamodbav:"completedPlans"`
	TotalSaved     float64 `json:"totalSaved" dynamodbav:"totalSaved"`
	TotalTarget    float64 `json:"totalTarget" dynamodbav:"totalTarget"`
}

// UserProfile is the persisted profile of one user.
type UserProfile struct {
	ID          string       `json:"id" dynamodbav:"id"`
	Email       string       `json:"email" dynamodbav:"email"`
	Username    string       `json:"username" dynamodbav:"username"`
	FirstName   string       `json:"firstName,omitempty" dynamodbav:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty" dynamodbav:"lastName,omitempty"`
	Phone       string       `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	AvatarKey   string       `json:"avatarKey,omitempty" dynamodbav:"avatarKey,omitempty"`
	Preferences Preferences  `json:"preferences" dynamodbav:"preferences"`
	Stats       ProfileStats `json:"stats" dynamodbav:"stats"`
	CreatedAt   time.Time    `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Identity is the session identity resolved from a validated token. It is
// never persisted.
type Identity struct {
	UserID      string         `json:"userId"`
	Email       string         `json:"email"`
	Username    string         `json:"username"`
	Role        string         `json:"role,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Claims      map[string]any `json:"-"`
}

// HasPermission reports whether the identity carries the named permission.
func (i *Identity) HasPermission(permission string) bool {
	if i == nil || permission == "" {
		return false
	}
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// UpdateProfileInput edits contact details. Nil fields are left untouched.
type UpdateProfileInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Username  *string `json:"username"`
	AvatarKey *string `json:"avatarKey"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)

func (in UpdateProfileInput) Validate() error {
	var v violations
	if in.FirstName != nil {
		v.maxLen("firstName", *in.FirstName, 50)
	}
	if in.LastName != nil {
		v.maxLen("lastName", *in.LastName, 50)
	}
	if in.Username != nil {
		v.required("username", *in.Username)
		v.maxLen("username", *in.Username, 50)
	}
	if in.Phone != nil && *in.Phone != "" && !phonePattern.MatchString(*in.Phone) {
		v.add("phone must be a valid phone number")
	}
	if in.AvatarKey != nil {
		v.maxLen("avatarKey", *in.AvatarKey, 512)
	}
	return v.err()
}

// UpdatePreferencesInput edits display preferences. Nil fields are left untouched.
type UpdatePreferencesInput struct {
	Theme              *Theme  `json:"theme"`
	Currency           *string `json:"currency"`
	EmailNotifications *bool   `json:"emailNotifications"`
	PushNotifications  *bool   `json:"pushNotifications"`
	WeeklySummary      *bool   `json:"weeklySummary"`
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

func (in UpdatePreferencesInput) Validate() error {
	var v violations
	if in.Theme != nil {
		switch *in.Theme {
		case ThemeLight, ThemeDark, ThemeSystem:
		default:
			v.add("theme must be one of light, dark, system")
		}
	}
	if in.Currency != nil && !currencyPattern.MatchString(*in.Currency) {
		v.add("currency must be a 3-letter ISO code")
	}
	return v.err()
}

// Apply copies the set fields onto p.
func (in UpdatePreferencesInput) Apply(p *Preferences) {
	if in.Theme != nil {
		p.Theme = *in.Theme
	}
	if in.Currency != nil {
		p.Currency = *in.Currency
	}
	if in.EmailNotifications != nil {
		p.EmailNotifications = *in.EmailNotifications
	}
	if in.PushNotifications != nil {
		p.PushNotifications = *in.PushNotifications
	}
	if in.WeeklySummary != nil {
		p.WeeklySummary = *in.WeeklySummary
	}
}

// AvatarUploadInput requests a presigned upload URL.
type AvatarUploadInput struct {
	ContentType string `json:"contentType"`
}

func (in AvatarUploadInput) Validate() error {
	switch in.ContentType {
	case "image/png", "image/jpeg", "image/webp":
		return nil
	}
	var v violations
	v.add("contentType must be image/png, image/jpeg or image/webp")
	return v.err()
}
