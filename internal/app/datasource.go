/**
 * @description
 * The data source is the one place the environment mode is decided. Handlers
 * receive the providers selected here and never check whether they run in
 * demo or live mode.
 *
 * @dependencies
 * - internal/store: repositories for the single table.
 * - pkg/plaidclient: banking provider result types.
 */
package app

import (
	"context"

	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/cognitoclient"
	"github.com/goalpath/planner-api/pkg/plaidclient"
)

// Mode names the environment a DataSource was built for.
type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

// Session is the outcome of a successful credential exchange.
type Session struct {
	User         domain.Identity
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int32
}

// CookieToken is the credential stored in the access token cookie. Cognito
// ID tokens carry the profile claims the resolver needs.
func (s *Session) CookieToken() string {
	if s.IDToken != "" {
		return s.IDToken
	}
	return s.AccessToken
}

// IdentityProvider authenticates users and manages their credentials.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignUp(ctx context.Context, email, password, username string) (*cognitoclient.SignUpResult, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	ResendConfirmationCode(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
	SignOut(ctx context.Context, refreshToken string) error
}

// BankingProvider links external bank accounts. *plaidclient.Client
// satisfies it.
type BankingProvider interface {
	CreateLinkToken(ctx context.Context, userID string) (*plaidclient.LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaidclient.Exchange, error)
	GetAccounts(ctx context.Context, accessToken string) (*plaidclient.Item, []plaidclient.Account, error)
	GetBalances(ctx context.Context, accessToken string) ([]plaidclient.Account, error)
	InstitutionName(ctx context.Context, institutionID string) (string, error)
	RemoveItem(ctx context.Context, accessToken string) error
	GetTransactions(ctx context.Context, accessToken, start, end string, accountIDs []string, count int) ([]plaidclient.Transaction, error)
}

// DataSource bundles the backends of one environment mode.
type DataSource struct {
	Mode     Mode
	Store    store.Store
	Identity IdentityProvider
	Banking  BankingProvider
}

// NewLiveDataSource wires the production backends.
func NewLiveDataSource(st store.Store, cognito *cognitoclient.Client, plaid *plaidclient.Client) *DataSource {
	return &DataSource{
		Mode:     ModeLive,
		Store:    st,
		Identity: NewCognitoIdentityProvider(cognito),
		Banking:  plaid,
	}
}

// NewDemoDataSource wires the demo identity and banking providers over st.
func NewDemoDataSource(st store.Store, identity *DemoIdentityProvider) *DataSource {
	return &DataSource{
		Mode:     ModeDemo,
		Store:    st,
		Identity: identity,
		Banking:  NewDemoBankingProvider(),
	}
}
