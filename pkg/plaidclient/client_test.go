package plaidclient

import (
	"errors"
	"testing"

	"github.com/plaid/plaid-go/v20/plaid"
)

func TestConvertAccounts(t *testing.T) {
	var balances plaid.AccountBalance
	balances.SetAvailable(120.5)
	balances.SetCurrent(1500.25)
	balances.SetIsoCurrencyCode("USD")
	account := plaid.AccountBase{
		AccountId: "acc-1",
		Balances:  balances,
		Name:      "Plaid Checking",
		Type:      plaid.ACCOUNTTYPE_DEPOSITORY,
	}
	account.SetMask("0000")

	got := convertAccounts([]plaid.AccountBase{account})
	if len(got) != 1 {
		t.Fatalf("expected one account, got %d", len(got))
	}
	a := got[0]
	if a.ID != "acc-1" || a.Mask != "0000" || a.Type != "depository" {
		t.Fatalf("unexpected account %+v", a)
	}
	if a.Current != 1500.25 || a.Available == nil || *a.Available != 120.5 {
		t.Fatalf("unexpected balances current=%v available=%v", a.Current, a.Available)
	}
	if a.CurrencyCode != "USD" {
		t.Fatalf("expected USD, got %q", a.CurrencyCode)
	}
}

func TestWrapNonPlaidError(t *testing.T) {
	err := wrap(errors.New("dial tcp: timeout"))
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != "REQUEST_FAILED" {
		t.Fatalf("expected REQUEST_FAILED, got %v", err)
	}
	if wrap(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
