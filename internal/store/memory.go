package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goalpath/planner-api/internal/domain"
)

// MemoryStore is an in-process Store used by the demo data source and tests.
// It keeps the same partition/sort key layout as the table so ordering and
// scoping behave identically.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]any
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: map[string]map[string]any{}}
}

func (m *MemoryStore) put(pk, sk string, item any) {
	p, ok := m.partitions[pk]
	if !ok {
		p = map[string]any{}
		m.partitions[pk] = p
	}
	p[sk] = item
}

func (m *MemoryStore) get(pk, sk string) (any, bool) {
	item, ok := m.partitions[pk][sk]
	return item, ok
}

// sortedKeys returns the partition's sort keys having prefix, ascending.
func (m *MemoryStore) sortedKeys(pk, prefix string) []string {
	var keys []string
	for sk := range m.partitions[pk] {
		if strings.HasPrefix(sk, prefix) {
			keys = append(keys, sk)
		}
	}
	sort.Strings(keys)
	return keys
}

func clonePlan(p domain.Plan) domain.Plan {
	p.Milestones = append([]domain.Milestone(nil), p.Milestones...)
	p.Expenses = append([]domain.Expense(nil), p.Expenses...)
	return p
}

func cloneAccount(a domain.BankAccount) domain.BankAccount {
	if a.AvailableBalance != nil {
		v := *a.AvailableBalance
		a.AvailableBalance = &v
	}
	return a
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.get(UserPK(userID), ProfileSK(userID))
	if !ok {
		return nil, ErrNotFound
	}
	profile := item.(domain.UserProfile)
	return &profile, nil
}

func (m *MemoryStore) PutProfile(ctx context.Context, profile *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(UserPK(profile.ID), ProfileSK(profile.ID), *profile)
	return nil
}

func (m *MemoryStore) CreateProfileIfAbsent(ctx context.Context, profile *domain.UserProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(UserPK(profile.ID), ProfileSK(profile.ID)); ok {
		return false, nil
	}
	m.put(UserPK(profile.ID), ProfileSK(profile.ID), *profile)
	return true, nil
}

func (m *MemoryStore) ListPlans(ctx context.Context, userID string) ([]domain.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pk := UserPK(userID)
	var plans []domain.Plan
	for _, sk := range m.sortedKeys(pk, planPrefix) {
		plans = append(plans, clonePlan(m.partitions[pk][sk].(domain.Plan)))
	}
	sortPlansNewestFirst(plans)
	return plans, nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, userID, planID string) (*domain.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.get(UserPK(userID), PlanSK(planID))
	if !ok {
		return nil, ErrNotFound
	}
	plan := clonePlan(item.(domain.Plan))
	return &plan, nil
}

func (m *MemoryStore) PutPlan(ctx context.Context, plan *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(UserPK(plan.UserID), PlanSK(plan.ID), clonePlan(*plan))
	return nil
}

func (m *MemoryStore) UpdatePlan(ctx context.Context, plan *domain.Plan, setCurrentAmount bool) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.get(UserPK(plan.UserID), PlanSK(plan.ID))
	if !ok {
		return nil, ErrNotFound
	}
	stored := item.(domain.Plan)
	next := clonePlan(*plan)
	next.CreatedAt = stored.CreatedAt
	if !setCurrentAmount {
		next.CurrentAmount = stored.CurrentAmount
	}
	m.put(UserPK(plan.UserID), PlanSK(plan.ID), next)
	out := clonePlan(next)
	return &out, nil
}

func (m *MemoryStore) DeletePlan(ctx context.Context, userID, planID string) error {
	return m.deleteExisting(UserPK(userID), PlanSK(planID))
}

func (m *MemoryStore) deleteExisting(pk, sk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(pk, sk); !ok {
		return ErrNotFound
	}
	delete(m.partitions[pk], sk)
	return nil
}

func (m *MemoryStore) AddToCurrentAmount(ctx context.Context, userID, planID string, amount float64, updatedAt time.Time) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.get(UserPK(userID), PlanSK(planID))
	if !ok {
		return nil, ErrNotFound
	}
	plan := item.(domain.Plan)
	plan.CurrentAmount += amount
	plan.UpdatedAt = updatedAt
	m.put(UserPK(userID), PlanSK(planID), plan)
	out := clonePlan(plan)
	return &out, nil
}

func (m *MemoryStore) PutProgress(ctx context.Context, entry *domain.ProgressEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(UserPK(entry.UserID), ProgressSK(entry.PlanID, entry.ID), *entry)
	return nil
}

func (m *MemoryStore) ListProgress(ctx context.Context, userID, planID string, limit int) ([]domain.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pk := UserPK(userID)
	keys := m.sortedKeys(pk, ProgressSKPrefix(planID))
	var entries []domain.ProgressEntry
	for i := len(keys) - 1; i >= 0; i-- {
		entries = append(entries, m.partitions[pk][keys[i]].(domain.ProgressEntry))
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pk := UserPK(userID)
	var accounts []domain.BankAccount
	for _, sk := range m.sortedKeys(pk, accountPrefix) {
		accounts = append(accounts, cloneAccount(m.partitions[pk][sk].(domain.BankAccount)))
	}
	return accounts, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.get(UserPK(userID), AccountSK(accountID))
	if !ok {
		return nil, ErrNotFound
	}
	account := cloneAccount(item.(domain.BankAccount))
	return &account, nil
}

func (m *MemoryStore) PutAccount(ctx context.Context, account *domain.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(UserPK(account.UserID), AccountSK(account.ID), cloneAccount(*account))
	return nil
}

func (m *MemoryStore) DeleteAccount(ctx context.Context, userID, accountID string) error {
	return m.deleteExisting(UserPK(userID), AccountSK(accountID))
}

func (m *MemoryStore) ListActiveAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []domain.BankAccount
	for _, partition := range m.partitions {
		for _, item := range partition {
			if a, ok := item.(domain.BankAccount); ok && a.IsActive {
				accounts = append(accounts, cloneAccount(a))
			}
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (m *MemoryStore) ListUserKeys(ctx context.Context, userID string) ([]ItemKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pk := UserPK(userID)
	var keys []ItemKey
	for _, sk := range m.sortedKeys(pk, "") {
		keys = append(keys, ItemKey{PK: pk, SK: sk})
	}
	return keys, nil
}

func (m *MemoryStore) DeleteKeys(ctx context.Context, keys []ItemKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.partitions[k.PK], k.SK)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
