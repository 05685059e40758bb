/**
 * @description
 * AuthService implements the auth.* procedures on top of the selected
 * IdentityProvider. It owns the session cookies: the access token cookie
 * holds the credential the request resolver reads, the refresh token cookie
 * feeds auth.refreshToken.
 *
 * @dependencies
 * - go.uber.org/zap: structured logging.
 * - pkg/mailer: best-effort welcome mail after confirmation.
 */
package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/auth"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/mailer"
)

const signInRateLimitScope = "signin"

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// AuthConfig wires an AuthService.
type AuthConfig struct {
	Identity            IdentityProvider
	Profiles            store.ProfileRepository
	Limiter             RateLimiter
	SignInLimitPerMin   int
	Mailer              mailer.Mailer
	Cookies             CookieOptions
	AllowedEmailDomains []string
	Logger              *zap.Logger
}

// AuthService serves the auth.* procedures.
type AuthService struct {
	identity       IdentityProvider
	profiles       store.ProfileRepository
	limiter        RateLimiter
	signInLimit    int
	mailer         mailer.Mailer
	cookies        CookieOptions
	allowedDomains []string
	logger         *zap.Logger
	now            func() time.Time
}

func NewAuthService(cfg AuthConfig) *AuthService {
	return &AuthService{
		identity:       cfg.Identity,
		profiles:       cfg.Profiles,
		limiter:        cfg.Limiter,
		signInLimit:    cfg.SignInLimitPerMin,
		mailer:         cfg.Mailer,
		cookies:        cfg.Cookies,
		allowedDomains: cfg.AllowedEmailDomains,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// SessionUser is the public part of the signed-in identity.
type SessionUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// SignInResponse is the result of auth.signIn and auth.refreshToken.
type SignInResponse struct {
	Success      bool        `json:"success"`
	User         SessionUser `json:"user"`
	AccessToken  string      `json:"accessToken"`
	IDToken      string      `json:"idToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	ExpiresIn    int32       `json:"expiresIn"`
}

func (s *AuthService) emailAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	_, domainPart, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	for _, d := range s.allowedDomains {
		if domainPart == d {
			return true
		}
	}
	return false
}

func (s *AuthService) setSessionCookies(rc *rpc.Context, session *Session) {
	maxAge := int(s.cookies.MaxAge / time.Second)
	rc.SetCookie(&http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    session.CookieToken(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
		MaxAge:   maxAge,
	})
	if session.RefreshToken != "" {
		rc.SetCookie(&http.Cookie{
			Name:     auth.RefreshTokenCookie,
			Value:    session.RefreshToken,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cookies.Secure,
			SameSite: s.cookies.SameSite,
			MaxAge:   maxAge,
		})
	}
}

func (s *AuthService) clearSessionCookies(rc *rpc.Context) {
	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		rc.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cookies.Secure,
			SameSite: s.cookies.SameSite,
			MaxAge:   -1,
		})
	}
}

func sessionResponse(session *Session) *SignInResponse {
	return &SignInResponse{
		Success: true,
		User: SessionUser{
			ID:       session.User.UserID,
			Email:    session.User.Email,
			Username: session.User.Username,
		},
		AccessToken:  session.AccessToken,
		IDToken:      session.IDToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
	}
}

func (s *AuthService) SignIn(ctx context.Context, rc *rpc.Context, in domain.SignInInput) (*SignInResponse, error) {
	email := domain.NormalizeEmail(in.Email)
	if !s.emailAllowed(email) {
		return nil, apperr.Unauthorized("Email not allowed")
	}

	if s.limiter != nil && s.signInLimit > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, signInRateLimitScope, email, s.signInLimit, time.Minute)
		if err != nil {
			s.logger.Warn("sign-in rate limiter unavailable", zap.Error(err))
		} else if count > s.signInLimit {
			rc.ResponseHeader().Set("Retry-After", strconv.Itoa(retryAfter))
			return nil, apperr.New(apperr.CodeTooManyRequests, "Too many sign-in attempts, try again in "+strconv.Itoa(retryAfter)+" seconds", nil)
		}
	}

	session, err := s.identity.SignIn(ctx, email, in.Password)
	if err != nil {
		s.logger.Info("sign-in rejected", zap.String("email", email), zap.Error(err))
		return nil, identityError(err)
	}

	if _, err := ensureProfile(ctx, s.profiles, &session.User, s.now()); err != nil {
		s.logger.Error("profile provisioning failed", zap.String("user_id", session.User.UserID), zap.Error(err))
	}

	s.setSessionCookies(rc, session)
	s.logger.Info("user signed in", zap.String("user_id", session.User.UserID))
	return sessionResponse(session), nil
}

// SignUpResponse is the result of auth.signUp.
type SignUpResponse struct {
	Success       bool   `json:"success"`
	UserSub       string `json:"userSub"`
	UserConfirmed bool   `json:"userConfirmed"`
	Message       string `json:"message"`
}

func (s *AuthService) SignUp(ctx context.Context, _ *rpc.Context, in domain.SignUpInput) (*SignUpResponse, error) {
	email := domain.NormalizeEmail(in.Email)
	if !s.emailAllowed(email) {
		return nil, apperr.Unauthorized("Email not allowed")
	}
	result, err := s.identity.SignUp(ctx, email, in.Password, strings.TrimSpace(in.Username))
	if err != nil {
		return nil, identityError(err)
	}
	return &SignUpResponse{
		Success:       true,
		UserSub:       result.UserSub,
		UserConfirmed: result.Confirmed,
		Message:       "Check your email for a confirmation code",
	}, nil
}

func (s *AuthService) ConfirmSignUp(ctx context.Context, _ *rpc.Context, in domain.ConfirmSignUpInput) (*SuccessResponse, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := s.identity.ConfirmSignUp(ctx, email, strings.TrimSpace(in.Code)); err != nil {
		return nil, identityError(err)
	}
	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, email, strings.SplitN(email, "@", 2)[0]); err != nil {
			s.logger.Warn("welcome email failed", zap.String("email", email), zap.Error(err))
		}
	}
	return &SuccessResponse{Success: true, Message: "Account confirmed"}, nil
}

func (s *AuthService) ResendConfirmationCode(ctx context.Context, _ *rpc.Context, in domain.EmailInput) (*SuccessResponse, error) {
	if err := s.identity.ResendConfirmationCode(ctx, domain.NormalizeEmail(in.Email)); err != nil {
		return nil, identityError(err)
	}
	return &SuccessResponse{Success: true, Message: "Confirmation code sent"}, nil
}

// ForgotPasswordResponse reports where the reset code was sent.
type ForgotPasswordResponse struct {
	Success     bool   `json:"success"`
	Destination string `json:"destination,omitempty"`
}

func (s *AuthService) ForgotPassword(ctx context.Context, _ *rpc.Context, in domain.EmailInput) (*ForgotPasswordResponse, error) {
	destination, err := s.identity.ForgotPassword(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		return nil, identityError(err)
	}
	return &ForgotPasswordResponse{Success: true, Destination: destination}, nil
}

func (s *AuthService) ConfirmForgotPassword(ctx context.Context, _ *rpc.Context, in domain.ConfirmForgotPasswordInput) (*SuccessResponse, error) {
	if err := s.identity.ConfirmForgotPassword(ctx, domain.NormalizeEmail(in.Email), strings.TrimSpace(in.Code), in.NewPassword); err != nil {
		return nil, identityError(err)
	}
	return &SuccessResponse{Success: true, Message: "Password reset"}, nil
}

func (s *AuthService) refreshTokenFrom(rc *rpc.Context, in domain.RefreshTokenInput) string {
	if token := strings.TrimSpace(in.RefreshToken); token != "" {
		return token
	}
	if rc.Transport != nil {
		if token, ok := rc.Transport.Cookie(auth.RefreshTokenCookie); ok {
			return token
		}
	}
	return ""
}

func (s *AuthService) RefreshToken(ctx context.Context, rc *rpc.Context, in domain.RefreshTokenInput) (*SignInResponse, error) {
	token := s.refreshTokenFrom(rc, in)
	if token == "" {
		return nil, apperr.Unauthorized("No refresh token provided")
	}
	session, err := s.identity.Refresh(ctx, token)
	if err != nil {
		return nil, identityError(err)
	}
	s.setSessionCookies(rc, session)
	return sessionResponse(session), nil
}

// SignOut always succeeds. Revocation is attempted but never blocks the
// cookies from being cleared.
func (s *AuthService) SignOut(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (*SuccessResponse, error) {
	if token := s.refreshTokenFrom(rc, domain.RefreshTokenInput{}); token != "" {
		if err := s.identity.SignOut(ctx, token); err != nil {
			s.logger.Warn("refresh token revocation failed", zap.Error(err))
		}
	}
	s.clearSessionCookies(rc)
	return &SuccessResponse{Success: true}, nil
}

// MeResponse is the result of auth.me.
type MeResponse struct {
	User    SessionUser         `json:"user"`
	Role    string              `json:"role"`
	Profile *domain.UserProfile `json:"profile"`
}

func (s *AuthService) Me(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (*MeResponse, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	profile, err := ensureProfile(ctx, s.profiles, user, s.now())
	if err != nil {
		return nil, storeError(err, "Profile not found")
	}
	return &MeResponse{
		User:    SessionUser{ID: user.UserID, Email: user.Email, Username: user.Username},
		Role:    user.Role,
		Profile: profile,
	}, nil
}
