/**
 * @description
 * This package provides a client for the Plaid banking data API. It exposes
 * the handful of calls bank linking needs and converts Plaid's generated
 * models into plain structs so callers never touch the SDK types.
 *
 * @dependencies
 * - github.com/plaid/plaid-go/v20/plaid: Plaid's official Go SDK.
 */
package plaidclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plaid/plaid-go/v20/plaid"
)

// Config selects the Plaid environment and credentials.
type Config struct {
	ClientID   string
	Secret     string
	Env        string
	ClientName string
	WebhookURL string
}

// LinkToken is a short-lived token for initializing Plaid Link.
type LinkToken struct {
	LinkToken  string `json:"linkToken"`
	Expiration string `json:"expiration"`
}

// Exchange is the result of swapping a public token.
type Exchange struct {
	AccessToken string
	ItemID      string
}

// Account is one account of an item with its balance snapshot.
type Account struct {
	ID           string
	Name         string
	OfficialName string
	Mask         string
	Type         string
	Subtype      string
	Current      float64
	Available    *float64
	CurrencyCode string
}

// Item identifies the institution connection behind a set of accounts.
type Item struct {
	ItemID        string
	InstitutionID string
}

// Transaction is a posted or pending account transaction.
type Transaction struct {
	ID           string
	AccountID    string
	Amount       float64
	CurrencyCode string
	Date         string
	Name         string
	MerchantName string
	Category     []string
	Pending      bool
}

// Error carries Plaid's error code and display message.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plaid %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Client calls the Plaid API.
type Client struct {
	api        *plaid.APIClient
	clientName string
	webhookURL string
}

// NewClient builds a client for cfg.Env ("sandbox" or "production").
func NewClient(cfg Config) *Client {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch strings.ToLower(cfg.Env) {
	case "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		configuration.UseEnvironment(plaid.Sandbox)
	}
	name := cfg.ClientName
	if name == "" {
		name = "GoalPath"
	}
	return &Client{api: plaid.NewAPIClient(configuration), clientName: name, webhookURL: cfg.WebhookURL}
}

// CreateLinkToken starts a Link session for userID.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error) {
	req := plaid.NewLinkTokenCreateRequest(
		c.clientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		plaid.LinkTokenCreateRequestUser{ClientUserId: userID},
	)
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	if c.webhookURL != "" {
		req.SetWebhook(c.webhookURL)
	}

	resp, _, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return nil, wrap(err)
	}
	return &LinkToken{LinkToken: resp.GetLinkToken(), Expiration: resp.GetExpiration().Format("2006-01-02T15:04:05Z07:00")}, nil
}

// ExchangePublicToken trades Link's public token for a permanent access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return nil, wrap(err)
	}
	return &Exchange{AccessToken: resp.GetAccessToken(), ItemID: resp.GetItemId()}, nil
}

// GetAccounts lists the item's accounts with cached balances.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*Item, []Account, error) {
	req := plaid.NewAccountsGetRequest(accessToken)
	resp, _, err := c.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	if err != nil {
		return nil, nil, wrap(err)
	}
	item := resp.GetItem()
	return &Item{ItemID: item.GetItemId(), InstitutionID: item.GetInstitutionId()}, convertAccounts(resp.GetAccounts()), nil
}

// GetBalances fetches real-time balances for the item's accounts.
func (c *Client) GetBalances(ctx context.Context, accessToken string) ([]Account, error) {
	req := plaid.NewAccountsBalanceGetRequest(accessToken)
	resp, _, err := c.api.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*req).Execute()
	if err != nil {
		return nil, wrap(err)
	}
	return convertAccounts(resp.GetAccounts()), nil
}

// InstitutionName resolves an institution id to its display name.
func (c *Client) InstitutionName(ctx context.Context, institutionID string) (string, error) {
	req := plaid.NewInstitutionsGetByIdRequest(institutionID, []plaid.CountryCode{plaid.COUNTRYCODE_US})
	resp, _, err := c.api.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*req).Execute()
	if err != nil {
		return "", wrap(err)
	}
	institution := resp.GetInstitution()
	return institution.GetName(), nil
}

// RemoveItem revokes the access token and deletes the item at Plaid.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	req := plaid.NewItemRemoveRequest(accessToken)
	_, _, err := c.api.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*req).Execute()
	return wrap(err)
}

// GetTransactions lists transactions between start and end (YYYY-MM-DD),
// optionally restricted to accountIDs.
func (c *Client) GetTransactions(ctx context.Context, accessToken, start, end string, accountIDs []string, count int) ([]Transaction, error) {
	req := plaid.NewTransactionsGetRequest(accessToken, start, end)
	opts := plaid.NewTransactionsGetRequestOptions()
	if len(accountIDs) > 0 {
		opts.SetAccountIds(accountIDs)
	}
	if count > 0 {
		opts.SetCount(int32(count))
	}
	req.SetOptions(*opts)

	resp, _, err := c.api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]Transaction, 0, len(resp.GetTransactions()))
	for _, t := range resp.GetTransactions() {
		out = append(out, Transaction{
			ID:           t.GetTransactionId(),
			AccountID:    t.GetAccountId(),
			Amount:       t.GetAmount(),
			CurrencyCode: t.GetIsoCurrencyCode(),
			Date:         t.GetDate(),
			Name:         t.GetName(),
			MerchantName: t.GetMerchantName(),
			Category:     t.GetCategory(),
			Pending:      t.GetPending(),
		})
	}
	return out, nil
}

func convertAccounts(accounts []plaid.AccountBase) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		balances := a.GetBalances()
		acct := Account{
			ID:           a.GetAccountId(),
			Name:         a.GetName(),
			OfficialName: a.GetOfficialName(),
			Mask:         a.GetMask(),
			Type:         string(a.GetType()),
			Subtype:      string(a.GetSubtype()),
			Current:      balances.GetCurrent(),
			CurrencyCode: balances.GetIsoCurrencyCode(),
		}
		if available, ok := balances.GetAvailableOk(); ok && available != nil {
			v := *available
			acct.Available = &v
		}
		if acct.CurrencyCode == "" {
			acct.CurrencyCode = "USD"
		}
		out = append(out, acct)
	}
	return out
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *plaid.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return &Error{Code: "REQUEST_FAILED", Message: "Banking provider request failed", Cause: err}
	}
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return &Error{Code: "UNKNOWN", Message: "Banking provider request failed", Cause: err}
	}
	msg := plaidErr.GetDisplayMessage()
	if msg == "" {
		msg = plaidErr.GetErrorMessage()
	}
	return &Error{Code: plaidErr.GetErrorCode(), Message: msg, Cause: err}
}
