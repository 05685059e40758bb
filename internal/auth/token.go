package auth

import (
	"strings"

	"github.com/goalpath/planner-api/internal/rpc"
)

// Session cookie names shared with the web client.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// ExtractToken returns the named cookie's value, falling back to a bearer
// Authorization header. It returns "" when neither carries a token.
func ExtractToken(t rpc.Transport, cookieName string) string {
	if t == nil {
		return ""
	}
	if value, ok := t.Cookie(cookieName); ok {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	if token, ok := bearerToken(strings.TrimSpace(t.Header("Authorization"))); ok {
		return token
	}
	return ""
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}
