package auth

import "strings"

// Roles assignable to a session.
const (
	RoleUser  = "user"
	RoleDemo  = "demo"
	RoleAdmin = "admin"
)

// Permission names checked by RequirePermission.
const (
	PermPlansRead     = "plans:read"
	PermPlansWrite    = "plans:write"
	PermPlansSeed     = "plans:seed"
	PermAccountsRead  = "accounts:read"
	PermAccountsWrite = "accounts:write"
	PermProfileWrite  = "profile:write"
	PermAdminRead     = "admin:read"
)

var userPermissions = []string{
	PermPlansRead,
	PermPlansWrite,
	PermAccountsRead,
	PermAccountsWrite,
	PermProfileWrite,
}

// PermissionsFor returns a fresh copy of the permission set of role. Unknown
// roles get the user set.
func PermissionsFor(role string) []string {
	perms := append([]string(nil), userPermissions...)
	switch role {
	case RoleDemo:
		perms = append(perms, PermPlansSeed)
	case RoleAdmin:
		perms = append(perms, PermPlansSeed, PermAdminRead)
	}
	return perms
}

// RoleFromClaims derives the role from custom:role, then the first
// cognito:groups entry, then defaults to user.
func RoleFromClaims(claims map[string]any) string {
	if role, ok := claims["custom:role"].(string); ok {
		if known, ok := knownRole(role); ok {
			return known
		}
	}
	switch groups := claims["cognito:groups"].(type) {
	case []any:
		for _, g := range groups {
			if s, ok := g.(string); ok {
				if known, ok := knownRole(s); ok {
					return known
				}
			}
		}
	case []string:
		for _, s := range groups {
			if known, ok := knownRole(s); ok {
				return known
			}
		}
	}
	return RoleUser
}

// knownRole returns the normalized form of role if it is assignable.
func knownRole(role string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(role))
	switch normalized {
	case RoleUser, RoleDemo, RoleAdmin:
		return normalized, true
	}
	return "", false
}
