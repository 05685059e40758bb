package domain

import "time"

// BankAccount is a linked external account. AccessToken is the provider
// credential for the item and is never serialized to clients.
type BankAccount struct {
	ID               string    `json:"id" dynamodbav:"id"`
	UserID           string    `json:"userId" dynamodbav:"userId"`
	ItemID           string    `json:"itemId" dynamodbav:"itemId"`
	AccessToken      string    `json:"-" dynamodbav:"accessToken"`
	InstitutionID    string    `json:"institutionId,omitempty" dynamodbav:"institutionId,omitempty"`
	InstitutionName  string    `json:"institutionName" dynamodbav:"institutionName"`
	Name             string    `json:"name" dynamodbav:"name"`
	OfficialName     string    `json:"officialName,omitempty" dynamodbav:"officialName,omitempty"`
	Nickname         string    `json:"nickname,omitempty" dynamodbav:"nickname,omitempty"`
	Mask             string    `json:"mask,omitempty" dynamodbav:"mask,omitempty"`
	Type             string    `json:"type" dynamodbav:"type"`
	Subtype          string    `json:"subtype,omitempty" dynamodbav:"subtype,omitempty"`
	CurrentBalance   float64   `json:"currentBalance" dynamodbav:"currentBalance"`
	AvailableBalance *float64  `json:"availableBalance,omitempty" dynamodbav:"availableBalance,omitempty"`
	CurrencyCode     string    `json:"currencyCode" dynamodbav:"currencyCode"`
	IsActive         bool      `json:"isActive" dynamodbav:"isActive"`
	LastSyncedAt     time.Time `json:"lastSyncedAt" dynamodbav:"lastSyncedAt"`
	CreatedAt        time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Transaction is a read-through view of provider transactions; it is not stored.
type Transaction struct {
	ID           string   `json:"id"`
	AccountID    string   `json:"accountId"`
	Amount       float64  `json:"amount"`
	CurrencyCode string   `json:"currencyCode"`
	Date         string   `json:"date"`
	Name         string   `json:"name"`
	MerchantName string   `json:"merchantName,omitempty"`
	Category     []string `json:"category,omitempty"`
	Pending      bool     `json:"pending"`
}

// ExchangePublicTokenInput completes a Link session.
type ExchangePublicTokenInput struct {
	PublicToken string `json:"publicToken"`
}

func (in ExchangePublicTokenInput) Validate() error {
	var v violations
	v.required("publicToken", in.PublicToken)
	return v.err()
}

// AccountIDInput addresses one linked account.
type AccountIDInput struct {
	AccountID string `json:"accountId"`
}

func (in AccountIDInput) Validate() error {
	var v violations
	v.required("accountId", in.AccountID)
	return v.err()
}

// UpdateAccountInput edits the user-controlled fields of a linked account.
type UpdateAccountInput struct {
	AccountID string  `json:"accountId"`
	Nickname  *string `json:"nickname"`
	IsActive  *bool   `json:"isActive"`
}

func (in UpdateAccountInput) Validate() error {
	var v violations
	v.required("accountId", in.AccountID)
	if in.Nickname != nil {
		v.maxLen("nickname", *in.Nickname, 50)
	}
	return v.err()
}

// TransactionsInput selects a window of transactions. Dates default to the
// last 30 days.
type TransactionsInput struct {
	AccountID string `json:"accountId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Count     int    `json:"count"`
}

func (in TransactionsInput) Validate() error {
	var v violations
	v.date("startDate", in.StartDate)
	v.date("endDate", in.EndDate)
	if in.Count < 0 || in.Count > 500 {
		v.add("count must be between 0 and 500")
	}
	if in.StartDate != "" && in.EndDate != "" {
		start, okStart := ParseDate(in.StartDate)
		end, okEnd := ParseDate(in.EndDate)
		if okStart && okEnd && end.Before(start) {
			v.add("endDate must not be before startDate")
		}
	}
	return v.err()
}
