package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/plaidclient"
	"github.com/goalpath/planner-api/pkg/rabbitmq"
)

const (
	accountNotFound        = "Account not found"
	defaultTransactionDays = 30
)

// BankingService serves the plaid.* procedures and the balance refresh job.
type BankingService struct {
	accounts store.AccountRepository
	provider BankingProvider
	events   rabbitmq.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewBankingService(accounts store.AccountRepository, provider BankingProvider, events rabbitmq.Publisher, logger *zap.Logger) *BankingService {
	return &BankingService{accounts: accounts, provider: provider, events: events, logger: logger, now: time.Now}
}

func (s *BankingService) CreateLinkToken(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (*plaidclient.LinkToken, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	token, err := s.provider.CreateLinkToken(ctx, user.UserID)
	if err != nil {
		return nil, bankingError(err)
	}
	return token, nil
}

// ExchangePublicToken completes a Link session and stores every account of
// the new item.
func (s *BankingService) ExchangePublicToken(ctx context.Context, rc *rpc.Context, in domain.ExchangePublicTokenInput) ([]domain.BankAccount, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	exchange, err := s.provider.ExchangePublicToken(ctx, in.PublicToken)
	if err != nil {
		return nil, bankingError(err)
	}
	item, accounts, err := s.provider.GetAccounts(ctx, exchange.AccessToken)
	if err != nil {
		return nil, bankingError(err)
	}

	institutionName := "Unknown institution"
	if item.InstitutionID != "" {
		if name, err := s.provider.InstitutionName(ctx, item.InstitutionID); err != nil {
			s.logger.Warn("institution lookup failed", zap.String("institution_id", item.InstitutionID), zap.Error(err))
		} else if name != "" {
			institutionName = name
		}
	}

	now := s.now()
	linked := make([]domain.BankAccount, 0, len(accounts))
	for _, a := range accounts {
		account := domain.BankAccount{
			ID:              a.ID,
			UserID:          user.UserID,
			ItemID:          exchange.ItemID,
			AccessToken:     exchange.AccessToken,
			InstitutionID:   item.InstitutionID,
			InstitutionName: institutionName,
			IsActive:        true,
			CreatedAt:       now,
		}
		applyBalances(&account, a, now)
		if err := s.accounts.PutAccount(ctx, &account); err != nil {
			return nil, storeError(err, accountNotFound)
		}
		linked = append(linked, account)
		publish(ctx, s.events, s.logger, domain.EventBankAccountLinked, domain.BankAccountEvent{
			UserID:          user.UserID,
			AccountID:       account.ID,
			ItemID:          account.ItemID,
			InstitutionName: institutionName,
			OccurredAt:      now,
		})
	}
	s.logger.Info("bank item linked", zap.String("user_id", user.UserID), zap.String("item_id", exchange.ItemID), zap.Int("accounts", len(linked)))
	return linked, nil
}

// applyBalances copies provider account details onto account.
func applyBalances(account *domain.BankAccount, a plaidclient.Account, now time.Time) {
	account.Name = a.Name
	account.OfficialName = a.OfficialName
	account.Mask = a.Mask
	account.Type = a.Type
	account.Subtype = a.Subtype
	account.CurrentBalance = a.Current
	account.AvailableBalance = a.Available
	account.CurrencyCode = a.CurrencyCode
	account.LastSyncedAt = now
	account.UpdatedAt = now
}

func (s *BankingService) GetAccounts(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) ([]domain.BankAccount, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListAccounts(ctx, user.UserID)
	if err != nil {
		return nil, storeError(err, accountNotFound)
	}
	if accounts == nil {
		accounts = []domain.BankAccount{}
	}
	return accounts, nil
}

// RefreshBalances pulls live balances for the caller's active accounts.
func (s *BankingService) RefreshBalances(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) ([]domain.BankAccount, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListAccounts(ctx, user.UserID)
	if err != nil {
		return nil, storeError(err, accountNotFound)
	}
	active := accounts[:0:0]
	for _, a := range accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	if _, err := s.refreshAccounts(ctx, active); err != nil {
		return nil, err
	}
	return s.GetAccounts(ctx, rc, rpc.NoInput{})
}

// refreshAccounts fetches balances once per item and writes back every
// account it received. It returns the number of accounts updated.
func (s *BankingService) refreshAccounts(ctx context.Context, accounts []domain.BankAccount) (int, error) {
	byItem := map[string][]domain.BankAccount{}
	var order []string
	for _, a := range accounts {
		key := a.UserID + "|" + a.ItemID
		if _, seen := byItem[key]; !seen {
			order = append(order, key)
		}
		byItem[key] = append(byItem[key], a)
	}

	updated := 0
	now := s.now()
	for _, key := range order {
		group := byItem[key]
		balances, err := s.provider.GetBalances(ctx, group[0].AccessToken)
		if err != nil {
			return updated, bankingError(err)
		}
		fresh := make(map[string]plaidclient.Account, len(balances))
		for _, b := range balances {
			fresh[b.ID] = b
		}
		for i := range group {
			b, ok := fresh[group[i].ID]
			if !ok {
				continue
			}
			applyBalances(&group[i], b, now)
			if err := s.accounts.PutAccount(ctx, &group[i]); err != nil {
				return updated, storeError(err, accountNotFound)
			}
			updated++
		}
	}
	return updated, nil
}

func (s *BankingService) UpdateAccount(ctx context.Context, rc *rpc.Context, in domain.UpdateAccountInput) (*domain.BankAccount, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccount(ctx, user.UserID, in.AccountID)
	if err != nil {
		return nil, storeError(err, accountNotFound)
	}
	if in.Nickname != nil {
		account.Nickname = strings.TrimSpace(*in.Nickname)
	}
	if in.IsActive != nil {
		account.IsActive = *in.IsActive
	}
	account.UpdatedAt = s.now()
	if err := s.accounts.PutAccount(ctx, account); err != nil {
		return nil, storeError(err, accountNotFound)
	}
	return account, nil
}

// DisconnectAccount deletes the account. The provider item is removed only
// when no other account of the caller still uses it.
func (s *BankingService) DisconnectAccount(ctx context.Context, rc *rpc.Context, in domain.AccountIDInput) (*SuccessResponse, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccount(ctx, user.UserID, in.AccountID)
	if err != nil {
		return nil, storeError(err, accountNotFound)
	}
	if err := s.accounts.DeleteAccount(ctx, user.UserID, in.AccountID); err != nil {
		return nil, storeError(err, accountNotFound)
	}

	remaining, err := s.accounts.ListAccounts(ctx, user.UserID)
	if err != nil {
		s.logger.Warn("could not check remaining accounts for item", zap.String("item_id", account.ItemID), zap.Error(err))
	} else if !sharesItem(remaining, account.ItemID) {
		if err := s.provider.RemoveItem(ctx, account.AccessToken); err != nil {
			s.logger.Warn("provider item removal failed", zap.String("item_id", account.ItemID), zap.Error(err))
		}
	}

	publish(ctx, s.events, s.logger, domain.EventBankAccountDisconnected, domain.BankAccountEvent{
		UserID:          user.UserID,
		AccountID:       account.ID,
		ItemID:          account.ItemID,
		InstitutionName: account.InstitutionName,
		OccurredAt:      s.now(),
	})
	return &SuccessResponse{Success: true}, nil
}

func sharesItem(accounts []domain.BankAccount, itemID string) bool {
	for _, a := range accounts {
		if a.ItemID == itemID {
			return true
		}
	}
	return false
}

// GetTransactions reads transactions from the provider for one account or
// for every active account of the caller.
func (s *BankingService) GetTransactions(ctx context.Context, rc *rpc.Context, in domain.TransactionsInput) ([]domain.Transaction, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}

	end := s.now().UTC()
	if t, ok := domain.ParseDate(in.EndDate); ok {
		end = t
	}
	start := end.AddDate(0, 0, -defaultTransactionDays)
	if t, ok := domain.ParseDate(in.StartDate); ok {
		start = t
	}
	if end.Before(start) {
		return nil, apperr.BadRequest("endDate must not be before startDate")
	}

	var accounts []domain.BankAccount
	if in.AccountID != "" {
		account, err := s.accounts.GetAccount(ctx, user.UserID, in.AccountID)
		if err != nil {
			return nil, storeError(err, accountNotFound)
		}
		accounts = []domain.BankAccount{*account}
	} else {
		all, err := s.accounts.ListAccounts(ctx, user.UserID)
		if err != nil {
			return nil, storeError(err, accountNotFound)
		}
		for _, a := range all {
			if a.IsActive {
				accounts = append(accounts, a)
			}
		}
	}

	byToken := map[string][]string{}
	var tokens []string
	for _, a := range accounts {
		if _, seen := byToken[a.AccessToken]; !seen {
			tokens = append(tokens, a.AccessToken)
		}
		byToken[a.AccessToken] = append(byToken[a.AccessToken], a.ID)
	}

	out := []domain.Transaction{}
	for _, token := range tokens {
		txs, err := s.provider.GetTransactions(ctx, token, start.Format("2006-01-02"), end.Format("2006-01-02"), byToken[token], in.Count)
		if err != nil {
			return nil, bankingError(err)
		}
		for _, t := range txs {
			out = append(out, domain.Transaction{
				ID:           t.ID,
				AccountID:    t.AccountID,
				Amount:       t.Amount,
				CurrencyCode: t.CurrencyCode,
				Date:         t.Date,
				Name:         t.Name,
				MerchantName: t.MerchantName,
				Category:     t.Category,
				Pending:      t.Pending,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if in.Count > 0 && len(out) > in.Count {
		out = out[:in.Count]
	}
	return out, nil
}

// RefreshAllBalances refreshes every active linked account. It backs the
// scheduled job and keeps going when one item fails.
func (s *BankingService) RefreshAllBalances(ctx context.Context) (int, error) {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return 0, err
	}
	byItem := map[string][]domain.BankAccount{}
	var order []string
	for _, a := range accounts {
		if _, seen := byItem[a.ItemID]; !seen {
			order = append(order, a.ItemID)
		}
		byItem[a.ItemID] = append(byItem[a.ItemID], a)
	}

	total := 0
	for _, itemID := range order {
		n, err := s.refreshAccounts(ctx, byItem[itemID])
		total += n
		if err != nil {
			s.logger.Warn("balance refresh failed for item", zap.String("item_id", itemID), zap.Error(err))
		}
	}
	return total, nil
}
