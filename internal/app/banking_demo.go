package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/goalpath/planner-api/pkg/plaidclient"
)

const demoInstitutionID = "ins_demo"

// DemoBankingProvider returns deterministic sandbox-like data without
// contacting a banking provider.
type DemoBankingProvider struct {
	Now func() time.Time
}

func NewDemoBankingProvider() *DemoBankingProvider {
	return &DemoBankingProvider{Now: time.Now}
}

func (p *DemoBankingProvider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *DemoBankingProvider) CreateLinkToken(_ context.Context, userID string) (*plaidclient.LinkToken, error) {
	return &plaidclient.LinkToken{
		LinkToken:  "link-demo-" + userID,
		Expiration: p.now().Add(4 * time.Hour).UTC().Format(time.RFC3339),
	}, nil
}

func (p *DemoBankingProvider) ExchangePublicToken(_ context.Context, publicToken string) (*plaidclient.Exchange, error) {
	suffix := fmt.Sprintf("%08x", seedOf(publicToken))
	return &plaidclient.Exchange{AccessToken: "access-demo-" + suffix, ItemID: "item-demo-" + suffix}, nil
}

func (p *DemoBankingProvider) GetAccounts(_ context.Context, accessToken string) (*plaidclient.Item, []plaidclient.Account, error) {
	item := &plaidclient.Item{
		ItemID:        "item-demo-" + strings.TrimPrefix(accessToken, "access-demo-"),
		InstitutionID: demoInstitutionID,
	}
	return item, demoAccounts(accessToken), nil
}

func (p *DemoBankingProvider) GetBalances(_ context.Context, accessToken string) ([]plaidclient.Account, error) {
	return demoAccounts(accessToken), nil
}

func (p *DemoBankingProvider) InstitutionName(context.Context, string) (string, error) {
	return "Demo Bank", nil
}

func (p *DemoBankingProvider) RemoveItem(context.Context, string) error { return nil }

func (p *DemoBankingProvider) GetTransactions(_ context.Context, accessToken, start, end string, accountIDs []string, count int) ([]plaidclient.Transaction, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	wanted := map[string]bool{}
	for _, id := range accountIDs {
		wanted[id] = true
	}

	merchants := []struct {
		name     string
		category []string
		amount   float64
	}{
		{"Blue Bottle Coffee", []string{"Food and Drink", "Coffee Shop"}, 6.75},
		{"Whole Foods", []string{"Shops", "Supermarkets and Groceries"}, 84.20},
		{"Shell", []string{"Travel", "Gas Stations"}, 45.10},
		{"Payroll Deposit", []string{"Transfer", "Payroll"}, -2450.00},
		{"Netflix", []string{"Service", "Subscription"}, 15.49},
	}

	var out []plaidclient.Transaction
	for _, acct := range demoAccounts(accessToken) {
		if len(wanted) > 0 && !wanted[acct.ID] {
			continue
		}
		i := 0
		for day := to; !day.Before(from); day = day.AddDate(0, 0, -3) {
			m := merchants[i%len(merchants)]
			out = append(out, plaidclient.Transaction{
				ID:           fmt.Sprintf("%s-tx-%s", acct.ID, day.Format("20060102")),
				AccountID:    acct.ID,
				Amount:       m.amount,
				CurrencyCode: acct.CurrencyCode,
				Date:         day.Format("2006-01-02"),
				Name:         m.name,
				MerchantName: m.name,
				Category:     m.category,
				Pending:      i == 0,
			})
			i++
			if count > 0 && len(out) >= count {
				return out, nil
			}
		}
	}
	return out, nil
}

func demoAccounts(accessToken string) []plaidclient.Account {
	seed := seedOf(accessToken)
	checking := 1000 + float64(seed%900000)/100
	savings := 5000 + float64(seed%2500000)/100
	availableChecking := checking - 25
	return []plaidclient.Account{
		{
			ID:           fmt.Sprintf("acc-demo-%08x-chk", seed),
			Name:         "Demo Checking",
			OfficialName: "Demo Bank Everyday Checking",
			Mask:         "0000",
			Type:         "depository",
			Subtype:      "checking",
			Current:      checking,
			Available:    &availableChecking,
			CurrencyCode: "USD",
		},
		{
			ID:           fmt.Sprintf("acc-demo-%08x-sav", seed),
			Name:         "Demo Savings",
			OfficialName: "Demo Bank High Yield Savings",
			Mask:         "1111",
			Type:         "depository",
			Subtype:      "savings",
			Current:      savings,
			CurrencyCode: "USD",
		},
	}
}

func seedOf(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
