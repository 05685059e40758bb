package app

import (
	"context"
	"testing"
	"time"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
)

// removalSpy wraps the demo provider and counts item removals.
type removalSpy struct {
	*DemoBankingProvider
	removed []string
}

func (r *removalSpy) RemoveItem(_ context.Context, accessToken string) error {
	r.removed = append(r.removed, accessToken)
	return nil
}

func newBanking(t *testing.T) (*BankingService, *removalSpy, *publisherSpy, *store.MemoryStore) {
	t.Helper()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	provider := &removalSpy{DemoBankingProvider: &DemoBankingProvider{Now: fixedClock(now)}}
	spy := &publisherSpy{}
	st := store.NewMemoryStore()
	svc := NewBankingService(st, provider, spy, testLogger())
	svc.now = fixedClock(now)
	return svc, provider, spy, st
}

func TestExchangePublicTokenStoresAccounts(t *testing.T) {
	svc, _, spy, st := newBanking(t)
	rc := userContext("u1")

	linked, err := svc.ExchangePublicToken(context.Background(), rc, domain.ExchangePublicTokenInput{PublicToken: "public-sandbox-1"})
	if err != nil {
		t.Fatalf("ExchangePublicToken returned error: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected 2 linked accounts, got %d", len(linked))
	}
	for _, a := range linked {
		if a.AccessToken == "" || a.InstitutionName != "Demo Bank" || !a.IsActive {
			t.Fatalf("unexpected account %+v", a)
		}
	}
	stored, err := st.ListAccounts(context.Background(), "u1")
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored accounts, got %d %v", len(stored), err)
	}
	if spy.count(domain.EventBankAccountLinked) != 2 {
		t.Fatalf("expected 2 linked events, got %v", spy.events)
	}
}

func TestDisconnectRemovesItemOnlyWithLastAccount(t *testing.T) {
	svc, provider, spy, _ := newBanking(t)
	rc := userContext("u1")
	linked, err := svc.ExchangePublicToken(context.Background(), rc, domain.ExchangePublicTokenInput{PublicToken: "public-sandbox-2"})
	if err != nil {
		t.Fatalf("ExchangePublicToken returned error: %v", err)
	}

	if _, err := svc.DisconnectAccount(context.Background(), rc, domain.AccountIDInput{AccountID: linked[0].ID}); err != nil {
		t.Fatalf("DisconnectAccount returned error: %v", err)
	}
	if len(provider.removed) != 0 {
		t.Fatalf("item removed while another account still uses it")
	}

	if _, err := svc.DisconnectAccount(context.Background(), rc, domain.AccountIDInput{AccountID: linked[1].ID}); err != nil {
		t.Fatalf("DisconnectAccount returned error: %v", err)
	}
	if len(provider.removed) != 1 || provider.removed[0] != linked[1].AccessToken {
		t.Fatalf("expected item removal with the last account, got %v", provider.removed)
	}
	if spy.count(domain.EventBankAccountDisconnected) != 2 {
		t.Fatalf("expected 2 disconnect events, got %v", spy.events)
	}

	if _, err := svc.DisconnectAccount(context.Background(), rc, domain.AccountIDInput{AccountID: linked[1].ID}); codeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for disconnected account, got %v", err)
	}
}

func TestUpdateAccountAndTransactions(t *testing.T) {
	svc, _, _, _ := newBanking(t)
	rc := userContext("u1")
	linked, err := svc.ExchangePublicToken(context.Background(), rc, domain.ExchangePublicTokenInput{PublicToken: "public-sandbox-3"})
	if err != nil {
		t.Fatalf("ExchangePublicToken returned error: %v", err)
	}

	nickname := " Bills "
	inactive := false
	updated, err := svc.UpdateAccount(context.Background(), rc, domain.UpdateAccountInput{AccountID: linked[1].ID, Nickname: &nickname, IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateAccount returned error: %v", err)
	}
	if updated.Nickname != "Bills" || updated.IsActive {
		t.Fatalf("unexpected account %+v", updated)
	}

	txs, err := svc.GetTransactions(context.Background(), rc, domain.TransactionsInput{})
	if err != nil {
		t.Fatalf("GetTransactions returned error: %v", err)
	}
	if len(txs) == 0 {
		t.Fatal("expected transactions for the active account")
	}
	for i, tx := range txs {
		if tx.AccountID != linked[0].ID {
			t.Fatalf("got transaction for inactive account %+v", tx)
		}
		if i > 0 && tx.Date > txs[i-1].Date {
			t.Fatalf("transactions not newest first at %d", i)
		}
	}

	limited, err := svc.GetTransactions(context.Background(), rc, domain.TransactionsInput{AccountID: linked[0].ID, Count: 3})
	if err != nil || len(limited) != 3 {
		t.Fatalf("expected 3 transactions, got %d %v", len(limited), err)
	}
}

func TestRefreshAllBalancesUpdatesActiveAccounts(t *testing.T) {
	svc, _, _, st := newBanking(t)
	for _, user := range []string{"u1", "u2"} {
		if _, err := svc.ExchangePublicToken(context.Background(), userContext(user), domain.ExchangePublicTokenInput{PublicToken: "public-" + user}); err != nil {
			t.Fatalf("ExchangePublicToken returned error: %v", err)
		}
	}
	later := time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC)
	svc.now = fixedClock(later)

	updated, err := svc.RefreshAllBalances(context.Background())
	if err != nil {
		t.Fatalf("RefreshAllBalances returned error: %v", err)
	}
	if updated != 4 {
		t.Fatalf("expected 4 accounts refreshed, got %d", updated)
	}
	accounts, _ := st.ListAccounts(context.Background(), "u2")
	for _, a := range accounts {
		if !a.LastSyncedAt.Equal(later) {
			t.Fatalf("expected sync time %v, got %v", later, a.LastSyncedAt)
		}
	}
}

func TestRefreshBalancesForCaller(t *testing.T) {
	svc, _, _, _ := newBanking(t)
	rc := userContext("u1")
	if _, err := svc.ExchangePublicToken(context.Background(), rc, domain.ExchangePublicTokenInput{PublicToken: "public-x"}); err != nil {
		t.Fatalf("ExchangePublicToken returned error: %v", err)
	}
	accounts, err := svc.RefreshBalances(context.Background(), rc, rpc.NoInput{})
	if err != nil || len(accounts) != 2 {
		t.Fatalf("expected 2 refreshed accounts, got %d %v", len(accounts), err)
	}
}

type refresherStub struct {
	calls int
}

func (r *refresherStub) RefreshAllBalances(context.Context) (int, error) {
	r.calls++
	return 0, nil
}

func TestJobsRefreshBalances(t *testing.T) {
	stub := &refresherStub{}
	NewJobs(stub, testLogger()).RefreshBalances()
	if stub.calls != 1 {
		t.Fatalf("expected one refresh call, got %d", stub.calls)
	}
}
