package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalpath/planner-api/internal/auth"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/pkg/cognitoclient"
)

// CognitoIdentityProvider authenticates against a Cognito user pool.
type CognitoIdentityProvider struct {
	client *cognitoclient.Client
}

func NewCognitoIdentityProvider(client *cognitoclient.Client) *CognitoIdentityProvider {
	return &CognitoIdentityProvider{client: client}
}

func (p *CognitoIdentityProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	tokens, err := p.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return sessionFromTokens(tokens)
}

func (p *CognitoIdentityProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := p.client.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return sessionFromTokens(tokens)
}

func (p *CognitoIdentityProvider) SignUp(ctx context.Context, email, password, username string) (*cognitoclient.SignUpResult, error) {
	return p.client.SignUp(ctx, email, password, username)
}

func (p *CognitoIdentityProvider) ConfirmSignUp(ctx context.Context, email, code string) error {
	return p.client.ConfirmSignUp(ctx, email, code)
}

func (p *CognitoIdentityProvider) ResendConfirmationCode(ctx context.Context, email string) error {
	return p.client.ResendConfirmationCode(ctx, email)
}

func (p *CognitoIdentityProvider) ForgotPassword(ctx context.Context, email string) (string, error) {
	return p.client.ForgotPassword(ctx, email)
}

func (p *CognitoIdentityProvider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return p.client.ConfirmForgotPassword(ctx, email, code, newPassword)
}

func (p *CognitoIdentityProvider) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return p.client.RevokeToken(ctx, refreshToken)
}

// sessionFromTokens reads the user claims from the ID token Cognito just
// issued. The token came straight from the user pool over TLS, so its
// signature is not re-verified here.
func sessionFromTokens(tokens *cognitoclient.Tokens) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.IDToken, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}

	identity := domain.Identity{Claims: map[string]any(claims)}
	identity.UserID, _ = claims["sub"].(string)
	if email, ok := claims["email"].(string); ok {
		identity.Email = domain.NormalizeEmail(email)
	}
	if username, ok := claims["cognito:username"].(string); ok {
		identity.Username = username
	} else if username, ok := claims["preferred_username"].(string); ok {
		identity.Username = username
	}
	identity.Role = auth.RoleFromClaims(claims)
	identity.Permissions = auth.PermissionsFor(identity.Role)

	return &Session{
		User:         identity,
		AccessToken:  tokens.AccessToken,
		IDToken:      tokens.IDToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}

// Demo credentials accepted by the demo identity provider.
const (
	DemoEmail            = "demo@example.com"
	DemoPassword         = "DemoPassword123"
	TestEmail            = "test@example.com"
	TestPassword         = "TestPassword123"
	DemoConfirmationCode = "123456"

	DemoSessionTTL = time.Hour
)

type demoAccount struct {
	id        string
	email     string
	username  string
	role      string
	hash      []byte
	confirmed bool
}

// DemoIdentityProvider is an in-process user directory issuing demo tokens.
type DemoIdentityProvider struct {
	mu         sync.Mutex
	accounts   map[string]*demoAccount
	codec      *auth.DemoCodec
	cost       int
	refreshTTL time.Duration
}

// NewDemoIdentityProvider seeds the fixed demo accounts, hashing their
// passwords with the given bcrypt cost.
func NewDemoIdentityProvider(codec *auth.DemoCodec, cost int, refreshTTL time.Duration) (*DemoIdentityProvider, error) {
	p := &DemoIdentityProvider{
		accounts:   map[string]*demoAccount{},
		codec:      codec,
		cost:       cost,
		refreshTTL: refreshTTL,
	}
	seed := []struct{ email, password, username string }{
		{DemoEmail, DemoPassword, "demo"},
		{TestEmail, TestPassword, "test"},
	}
	for _, s := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash demo password: %w", err)
		}
		p.accounts[s.email] = &demoAccount{
			id:        demoUserID(s.email),
			email:     s.email,
			username:  s.username,
			role:      auth.RoleDemo,
			hash:      hash,
			confirmed: true,
		}
	}
	return p, nil
}

// demoUserID derives a stable id so demo data survives restarts.
func demoUserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("demo-user:"+email)).String()
}

func (a *demoAccount) identity() domain.Identity {
	return domain.Identity{
		UserID:      a.id,
		Email:       a.email,
		Username:    a.username,
		Role:        a.role,
		Permissions: auth.PermissionsFor(a.role),
	}
}

func invalidCredentials() error {
	return &cognitoclient.Error{Kind: cognitoclient.KindInvalidCredentials, Message: "Incorrect email or password"}
}

func (p *DemoIdentityProvider) SignIn(_ context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	acct, ok := p.accounts[domain.NormalizeEmail(email)]
	p.mu.Unlock()
	if !ok {
		return nil, invalidCredentials()
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return nil, invalidCredentials()
	}
	if !acct.confirmed {
		return nil, &cognitoclient.Error{Kind: cognitoclient.KindNotConfirmed, Message: "User is not confirmed"}
	}
	return p.issue(acct)
}

func (p *DemoIdentityProvider) issue(acct *demoAccount) (*Session, error) {
	identity := acct.identity()
	token, err := p.codec.Issue(identity, DemoSessionTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := p.codec.Issue(identity, p.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:         identity,
		AccessToken:  token,
		IDToken:      token,
		RefreshToken: refresh,
		ExpiresIn:    int32(DemoSessionTTL / time.Second),
	}, nil
}

func (p *DemoIdentityProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	identity, err := p.codec.Validate(ctx, refreshToken)
	if err != nil {
		return nil, &cognitoclient.Error{Kind: cognitoclient.KindInvalidCredentials, Message: "Invalid refresh token", Cause: err}
	}
	p.mu.Lock()
	acct, ok := p.accounts[identity.Email]
	p.mu.Unlock()
	if !ok || acct.id != identity.UserID {
		return nil, &cognitoclient.Error{Kind: cognitoclient.KindInvalidCredentials, Message: "Invalid refresh token"}
	}
	return p.issue(acct)
}

func (p *DemoIdentityProvider) SignUp(_ context.Context, email, password, username string) (*cognitoclient.SignUpResult, error) {
	email = domain.NormalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[email]; exists {
		return nil, &cognitoclient.Error{Kind: cognitoclient.KindUserExists, Message: "An account with the given email already exists"}
	}
	acct := &demoAccount{id: uuid.NewString(), email: email, username: username, role: auth.RoleDemo, hash: hash}
	p.accounts[email] = acct
	return &cognitoclient.SignUpResult{UserSub: acct.id, Confirmed: false}, nil
}

func (p *DemoIdentityProvider) lookup(email string) (*demoAccount, error) {
	acct, ok := p.accounts[domain.NormalizeEmail(email)]
	if !ok {
		return nil, &cognitoclient.Error{Kind: cognitoclient.KindOther, Message: "Username/client id combination not found"}
	}
	return acct, nil
}

func (p *DemoIdentityProvider) ConfirmSignUp(_ context.Context, email, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.lookup(email)
	if err != nil {
		return err
	}
	if code != DemoConfirmationCode {
		return &cognitoclient.Error{Kind: cognitoclient.KindInvalidCode, Message: "Invalid verification code provided, please try again"}
	}
	acct.confirmed = true
	return nil
}

func (p *DemoIdentityProvider) ResendConfirmationCode(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.lookup(email)
	return err
}

func (p *DemoIdentityProvider) ForgotPassword(_ context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.lookup(email)
	if err != nil {
		return "", err
	}
	return maskEmail(acct.email), nil
}

func (p *DemoIdentityProvider) ConfirmForgotPassword(_ context.Context, email, code, newPassword string) error {
	if code != DemoConfirmationCode {
		return &cognitoclient.Error{Kind: cognitoclient.KindInvalidCode, Message: "Invalid verification code provided, please try again"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.lookup(email)
	if err != nil {
		return err
	}
	acct.hash = hash
	return nil
}

// SignOut is a no-op; demo tokens cannot be revoked.
func (p *DemoIdentityProvider) SignOut(context.Context, string) error { return nil }

// maskEmail renders an address the way Cognito reports code destinations.
func maskEmail(email string) string {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domainPart
}
