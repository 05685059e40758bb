package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
)

type transportStub struct {
	headers map[string]string
	cookies map[string]string
}

func (t transportStub) Header(name string) string { return t.headers[name] }

func (t transportStub) Cookie(name string) (string, bool) {
	v, ok := t.cookies[name]
	return v, ok
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name      string
		transport transportStub
		want      string
	}{
		{name: "cookie wins", transport: transportStub{
			cookies: map[string]string{AccessTokenCookie: "from-cookie"},
			headers: map[string]string{"Authorization": "Bearer from-header"},
		}, want: "from-cookie"},
		{name: "bearer fallback", transport: transportStub{
			headers: map[string]string{"Authorization": "Bearer from-header"},
		}, want: "from-header"},
		{name: "empty cookie falls back", transport: transportStub{
			cookies: map[string]string{AccessTokenCookie: " "},
			headers: map[string]string{"Authorization": "Bearer abc"},
		}, want: "abc"},
		{name: "non bearer scheme", transport: transportStub{
			headers: map[string]string{"Authorization": "Basic dXNlcjpwdw=="},
		}, want: ""},
		{name: "nothing", transport: transportStub{}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractToken(tc.transport, AccessTokenCookie); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestDemoCodecRoundTrip(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	codec := &DemoCodec{Now: fixedClock(now)}

	token, err := codec.Issue(domain.Identity{
		UserID:   "demo-user-1",
		Email:    "demo@example.com",
		Username: "demo",
		Role:     RoleDemo,
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !IsDemoToken(token) {
		t.Fatalf("issued token should have the demo shape: %q", token)
	}

	identity, err := codec.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if identity.UserID != "demo-user-1" || identity.Email != "demo@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.HasPermission(PermPlansSeed) {
		t.Fatalf("demo role should carry %s, got %v", PermPlansSeed, identity.Permissions)
	}
}

func TestDemoCodecExpired(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	issuer := &DemoCodec{Now: fixedClock(now.Add(-2 * time.Hour))}
	token, err := issuer.Issue(domain.Identity{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	codec := &DemoCodec{Now: fixedClock(now)}
	if _, err := codec.Validate(context.Background(), token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestDemoCodecRejectsGarbage(t *testing.T) {
	codec := NewDemoCodec()
	for _, token := range []string{"!!!", base64.StdEncoding.EncodeToString([]byte("not json")), base64.StdEncoding.EncodeToString([]byte(`{"exp":1}`))} {
		if _, err := codec.Validate(context.Background(), token); err != ErrTokenInvalid {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", token, err)
		}
	}
}

func TestResolverFailures(t *testing.T) {
	now := time.Now()
	expiredToken, _ := (&DemoCodec{Now: fixedClock(now.Add(-48 * time.Hour))}).Issue(domain.Identity{UserID: "u1"}, time.Hour)

	resolver := NewResolver(ResolverConfig{Demo: NewDemoCodec()})

	tests := []struct {
		name    string
		t       transportStub
		wantMsg string
	}{
		{name: "no token", t: transportStub{}, wantMsg: MsgNoToken},
		{name: "expired demo token", t: transportStub{cookies: map[string]string{AccessTokenCookie: expiredToken}}, wantMsg: MsgTokenExpired},
		{name: "signed token without verifier", t: transportStub{headers: map[string]string{"Authorization": "Bearer a.b.c"}}, wantMsg: MsgInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !DemoBuildEnabled && tc.name == "expired demo token" {
				t.Skip("demo tokens are compiled out")
			}
			_, err := resolver.Resolve(context.Background(), tc.t)
			appErr := apperr.As(err)
			if appErr == nil || appErr.Code != apperr.CodeUnauthorized {
				t.Fatalf("expected UNAUTHORIZED, got %v", err)
			}
			if appErr.Message != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, appErr.Message)
			}
		})
	}
}

func TestResolverDemoDisabledRoutesToVerifier(t *testing.T) {
	token, _ := NewDemoCodec().Issue(domain.Identity{UserID: "u1"}, time.Hour)
	resolver := NewResolver(ResolverConfig{})

	_, err := resolver.Resolve(context.Background(), transportStub{cookies: map[string]string{AccessTokenCookie: token}})
	if !apperr.Is(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected demo token to be rejected when demo is off, got %v", err)
	}
}

// staticVerifier stands in for the JWKS verifier, mapping tokens to identities.
type staticVerifier map[string]*domain.Identity

func (v staticVerifier) Validate(_ context.Context, token string) (*domain.Identity, error) {
	identity, ok := v[token]
	if !ok {
		return nil, ErrTokenInvalid
	}
	copied := *identity
	return &copied, nil
}

func TestProtectedAndRequirePermission(t *testing.T) {
	resolver := NewResolver(ResolverConfig{Verifier: staticVerifier{
		"user.jwt.token": {UserID: "u1", Role: RoleUser, Permissions: PermissionsFor(RoleUser)},
		"bare.jwt.token": {UserID: "u2", Role: RoleUser},
	}})

	called := 0
	final := func(ctx context.Context, rc *rpc.Context, input json.RawMessage) (any, error) {
		called++
		return rc.User.UserID, nil
	}

	plain := Protected(resolver)(final)
	seed := Protected(resolver)(RequirePermission(PermPlansSeed)(final))

	rc := rpc.NewContext(transportStub{cookies: map[string]string{AccessTokenCookie: "user.jwt.token"}})
	out, err := plain(context.Background(), rc, nil)
	if err != nil || out != "u1" {
		t.Fatalf("expected u1, got %v %v", out, err)
	}
	if rc.User.Claims["token"] != "user.jwt.token" {
		t.Fatal("expected raw token annotated on claims")
	}

	if _, err := seed(context.Background(), rc, nil); !apperr.Is(err, apperr.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN for user role, got %v", err)
	}

	rc2 := rpc.NewContext(transportStub{headers: map[string]string{"Authorization": "Bearer bare.jwt.token"}})
	if _, err := Protected(resolver)(RequirePermission(PermPlansRead)(final))(context.Background(), rc2, nil); !apperr.Is(err, apperr.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN without a permission set, got %v", err)
	}

	if called != 1 {
		t.Fatalf("expected final handler called once, got %d", called)
	}

	rcNone := rpc.NewContext(transportStub{})
	if _, err := plain(context.Background(), rcNone, nil); !apperr.Is(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED without token, got %v", err)
	}
}

func TestDemoTokenCannotRaisePrivileges(t *testing.T) {
	if !DemoBuildEnabled {
		t.Skip("demo tokens are compiled out")
	}
	now := time.Now()
	forged := []struct {
		name    string
		payload string
	}{
		{name: "admin role", payload: fmt.Sprintf(`{"sub":"victim","role":"admin","exp":%d}`, now.Add(time.Hour).Unix())},
		{name: "explicit permissions", payload: fmt.Sprintf(`{"sub":"victim","role":"user","permissions":["admin:read"],"exp":%d}`, now.Add(time.Hour).Unix())},
	}
	resolver := NewResolver(ResolverConfig{Demo: NewDemoCodec()})
	admin := Protected(resolver)(RequirePermission(PermAdminRead)(func(ctx context.Context, rc *rpc.Context, input json.RawMessage) (any, error) {
		return nil, nil
	}))

	for _, tc := range forged {
		t.Run(tc.name, func(t *testing.T) {
			token := base64.StdEncoding.EncodeToString([]byte(tc.payload))
			identity, err := resolver.Resolve(context.Background(), transportStub{cookies: map[string]string{AccessTokenCookie: token}})
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if identity.Role != RoleDemo || identity.HasPermission(PermAdminRead) {
				t.Fatalf("expected demo role without admin:read, got %q %v", identity.Role, identity.Permissions)
			}

			rc := rpc.NewContext(transportStub{cookies: map[string]string{AccessTokenCookie: token}})
			if _, err := admin(context.Background(), rc, nil); !apperr.Is(err, apperr.CodeForbidden) {
				t.Fatalf("expected FORBIDDEN on admin procedure, got %v", err)
			}
		})
	}
}

func TestRequirePermissionWithoutPermissionSet(t *testing.T) {
	rc := rpc.NewContext(transportStub{})
	rc.User = &domain.Identity{UserID: "u1"}
	h := RequirePermission(PermPlansRead)(func(ctx context.Context, rc *rpc.Context, input json.RawMessage) (any, error) {
		return nil, nil
	})
	if _, err := h(context.Background(), rc, nil); !apperr.Is(err, apperr.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{name: "custom role", claims: map[string]any{"custom:role": "admin"}, want: RoleAdmin},
		{name: "group", claims: map[string]any{"cognito:groups": []any{"beta-testers", "demo"}}, want: RoleDemo},
		{name: "unknown custom role", claims: map[string]any{"custom:role": "root"}, want: RoleUser},
		{name: "padded custom role", claims: map[string]any{"custom:role": " Admin "}, want: RoleAdmin},
		{name: "padded group", claims: map[string]any{"cognito:groups": []string{" demo"}}, want: RoleDemo},
		{name: "default", claims: map[string]any{}, want: RoleUser},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoleFromClaims(tc.claims); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
	padded := domain.Identity{Permissions: PermissionsFor(RoleFromClaims(map[string]any{"custom:role": " admin"}))}
	if !padded.HasPermission(PermAdminRead) {
		t.Fatal("expected a padded admin role to resolve to the admin permission set")
	}
	if len(PermissionsFor(RoleAdmin)) != len(PermissionsFor(RoleUser))+2 {
		t.Fatal("admin should have user permissions plus plans:seed and admin:read")
	}
}

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": "kid-1",
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"
	testClientID = "client-123"
)

func TestJWKSVerifier(t *testing.T) {
	f := newJWKSFixture(t)
	verifier := NewJWKSVerifier(JWKSConfig{
		JWKSURL:          f.server.URL,
		ExpectedIssuer:   testIssuer,
		ExpectedAudience: testClientID,
	})
	now := time.Now()

	idToken := f.sign(t, jwt.MapClaims{
		"sub":              "user-abc",
		"email":            "Alex@Example.com",
		"cognito:username": "alex",
		"cognito:groups":   []string{"admin"},
		"token_use":        "id",
		"aud":              testClientID,
		"iss":              testIssuer,
		"exp":              now.Add(time.Hour).Unix(),
		"iat":              now.Unix(),
	})

	identity, err := verifier.Validate(context.Background(), idToken)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if identity.UserID != "user-abc" || identity.Email != "alex@example.com" || identity.Username != "alex" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if identity.Role != RoleAdmin || !identity.HasPermission(PermAdminRead) {
		t.Fatalf("expected admin role, got %q %v", identity.Role, identity.Permissions)
	}

	accessToken := f.sign(t, jwt.MapClaims{
		"sub":       "user-abc",
		"username":  "alex",
		"token_use": "access",
		"client_id": testClientID,
		"iss":       testIssuer,
		"exp":       now.Add(time.Hour).Unix(),
	})
	if _, err := verifier.Validate(context.Background(), accessToken); err != nil {
		t.Fatalf("access token should validate, got %v", err)
	}

	if got := atomic.LoadInt32(&f.requests); got != 1 {
		t.Fatalf("expected keys fetched once and cached, got %d fetches", got)
	}
}

func TestJWKSVerifierRejections(t *testing.T) {
	f := newJWKSFixture(t)
	verifier := NewJWKSVerifier(JWKSConfig{
		JWKSURL:          f.server.URL,
		ExpectedIssuer:   testIssuer,
		ExpectedAudience: testClientID,
	})
	now := time.Now()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":       "user-abc",
			"token_use": "id",
			"aud":       testClientID,
			"iss":       testIssuer,
			"exp":       now.Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		want   error
	}{
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Hour).Unix() }, want: ErrTokenExpired},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other" }, want: ErrTokenInvalid},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }, want: ErrTokenInvalid},
		{name: "missing subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }, want: ErrTokenInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims := base()
			tc.mutate(claims)
			_, err := verifier.Validate(context.Background(), f.sign(t, claims))
			if err == nil || !strings.Contains(err.Error(), tc.want.Error()) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	resolver := NewResolver(ResolverConfig{Verifier: verifier})
	claims := base()
	claims["aud"] = "other"
	_, err := resolver.Resolve(context.Background(), transportStub{headers: map[string]string{"Authorization": "Bearer " + f.sign(t, claims)}})
	if appErr := apperr.As(err); appErr == nil || appErr.Message != MsgInvalidToken {
		t.Fatalf("expected %q, got %v", MsgInvalidToken, err)
	}
}
