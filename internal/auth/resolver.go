package auth

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
)

// Messages surfaced to clients for authentication failures.
const (
	MsgNoToken      = "Not authenticated: no token provided"
	MsgTokenExpired = "Token expired"
	MsgInvalidToken = "Invalid or expired token"
)

// Resolver turns a request's credential into a session identity.
type Resolver struct {
	cookieName string
	demo       TokenValidator
	verifier   TokenValidator
	logger     *zap.Logger
}

// ResolverConfig wires a Resolver. Demo is ignored unless demo tokens are
// compiled into this build.
type ResolverConfig struct {
	CookieName string
	Demo       TokenValidator
	Verifier   TokenValidator
	Logger     *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	cookie := cfg.CookieName
	if cookie == "" {
		cookie = AccessTokenCookie
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{cookieName: cookie, verifier: cfg.Verifier, logger: logger}
	if DemoBuildEnabled {
		r.demo = cfg.Demo
	}
	return r
}

// DemoEnabled reports whether demo tokens are honoured.
func (r *Resolver) DemoEnabled() bool {
	return r.demo != nil
}

// Resolve extracts and validates the request credential. The raw token is
// recorded in the identity claims under "token".
func (r *Resolver) Resolve(ctx context.Context, t rpc.Transport) (*domain.Identity, error) {
	token := ExtractToken(t, r.cookieName)
	if token == "" {
		return nil, apperr.Unauthorized(MsgNoToken)
	}

	var validator TokenValidator
	if r.demo != nil && IsDemoToken(token) {
		validator = r.demo
	} else {
		validator = r.verifier
	}
	if validator == nil {
		return nil, apperr.Unauthorized(MsgInvalidToken)
	}

	identity, err := validator.Validate(ctx, token)
	if err != nil {
		r.logger.Debug("token rejected", zap.Bool("demo", validator == r.demo), zap.Error(err))
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperr.New(apperr.CodeUnauthorized, MsgTokenExpired, err)
		}
		return nil, apperr.New(apperr.CodeUnauthorized, MsgInvalidToken, err)
	}

	if identity.Claims == nil {
		identity.Claims = map[string]any{}
	}
	identity.Claims["token"] = token
	return identity, nil
}

// Protected requires an authenticated identity, resolving it once per
// request context.
func Protected(resolver *Resolver) rpc.Middleware {
	return func(next rpc.Handler) rpc.Handler {
		return func(ctx context.Context, rc *rpc.Context, input json.RawMessage) (any, error) {
			if rc.User == nil {
				identity, err := resolver.Resolve(ctx, rc.Transport)
				if err != nil {
					return nil, err
				}
				rc.User = identity
			}
			return next(ctx, rc, input)
		}
	}
}

// RequirePermission fails FORBIDDEN unless the resolved identity carries
// permission. It must run after Protected.
func RequirePermission(permission string) rpc.Middleware {
	return func(next rpc.Handler) rpc.Handler {
		return func(ctx context.Context, rc *rpc.Context, input json.RawMessage) (any, error) {
			if rc.User == nil {
				return nil, apperr.Unauthorized(MsgNoToken)
			}
			if len(rc.User.Permissions) == 0 {
				return nil, apperr.Forbidden("No permissions assigned")
			}
			if !rc.User.HasPermission(permission) {
				return nil, apperr.Forbidden("Missing required permission: " + permission)
			}
			return next(ctx, rc, input)
		}
	}
}
