package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goalpath/planner-api/internal/domain"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// demoPayload is the JSON body of a demo session token. The token is unsigned,
// so nothing in it may raise privileges: role is informational only.
type demoPayload struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	Iat      int64  `json:"iat"`
	Exp      int64  `json:"exp"`
}

// DemoCodec issues and reads unsigned demo session tokens: base64 encoded
// JSON with an embedded expiry. They carry no signature and must only be
// honoured in non-production environments.
type DemoCodec struct {
	Now func() time.Time
}

// NewDemoCodec returns a codec using the wall clock.
func NewDemoCodec() *DemoCodec {
	return &DemoCodec{Now: time.Now}
}

func (c *DemoCodec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Issue encodes a token for identity that expires after ttl. Demo sessions
// always carry the demo role whatever identity says.
func (c *DemoCodec) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := c.now()
	payload := demoPayload{
		Sub:      identity.UserID,
		Email:    identity.Email,
		Username: identity.Username,
		Role:     RoleDemo,
		Iat:      now.Unix(),
		Exp:      now.Add(ttl).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// IsDemoToken reports whether token has the demo shape. Signed JWTs always
// contain '.' separators; the base64 alphabet never does.
func IsDemoToken(token string) bool {
	return token != "" && !strings.Contains(token, ".")
}

// Validate decodes token and checks its expiry. The identity always gets the
// demo role and its server-side permission set; role or permissions in the
// payload are ignored.
func (c *DemoCodec) Validate(_ context.Context, token string) (*domain.Identity, error) {
	raw, err := decodeBase64(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	var payload demoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(payload.Sub) == "" || payload.Exp == 0 {
		return nil, ErrTokenInvalid
	}
	if payload.Exp < c.now().Unix() {
		return nil, ErrTokenExpired
	}

	role := RoleDemo
	perms := PermissionsFor(role)

	return &domain.Identity{
		UserID:      payload.Sub,
		Email:       payload.Email,
		Username:    payload.Username,
		Role:        role,
		Permissions: perms,
		Claims: map[string]any{
			"sub":         payload.Sub,
			"email":       payload.Email,
			"username":    payload.Username,
			"role":        role,
			"permissions": perms,
			"iat":         payload.Iat,
			"exp":         payload.Exp,
		},
	}, nil
}

func decodeBase64(token string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(token); err == nil {
		return raw, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
}
