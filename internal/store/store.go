/**
 * @description
 * Data access for the planner's single-table layout. Every item of a user
 * lives in partition USER#<userId>; the sort key namespaces the entity:
 *
 *   PROFILE#<userId>
 *   PLAN#<planId>
 *   PROGRESS#<planId>#<entryId>
 *   ACCOUNT#<accountId>
 *
 * Queries are always scoped by the caller's partition key, so there is no
 * path for one user to read another user's items.
 */
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goalpath/planner-api/internal/domain"
)

// ErrNotFound is returned when an addressed item does not exist.
var ErrNotFound = errors.New("store: item not found")

const (
	userPrefix     = "USER#"
	profilePrefix  = "PROFILE#"
	planPrefix     = "PLAN#"
	progressPrefix = "PROGRESS#"
	accountPrefix  = "ACCOUNT#"
)

// Entity type attribute values, stored alongside pk/sk for operators.
const (
	EntityProfile  = "PROFILE"
	EntityPlan     = "PLAN"
	EntityProgress = "PROGRESS"
	EntityAccount  = "ACCOUNT"
)

func UserPK(userID string) string           { return userPrefix + userID }
func ProfileSK(userID string) string        { return profilePrefix + userID }
func PlanSK(planID string) string           { return planPrefix + planID }
func ProgressSKPrefix(planID string) string { return progressPrefix + planID + "#" }
func AccountSK(accountID string) string     { return accountPrefix + accountID }

func ProgressSK(planID, entryID string) string {
	return ProgressSKPrefix(planID) + entryID
}

// UserIDFromPK strips the USER# prefix.
func UserIDFromPK(pk string) string {
	return strings.TrimPrefix(pk, userPrefix)
}

// ItemKey is the primary key of one table item.
type ItemKey struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
}

// ProfileRepository persists user profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	PutProfile(ctx context.Context, profile *domain.UserProfile) error
	// CreateProfileIfAbsent writes profile unless one exists; it reports
	// whether the write happened.
	CreateProfileIfAbsent(ctx context.Context, profile *domain.UserProfile) (bool, error)
}

// PlanRepository persists plans and their progress history.
type PlanRepository interface {
	ListPlans(ctx context.Context, userID string) ([]domain.Plan, error)
	GetPlan(ctx context.Context, userID, planID string) (*domain.Plan, error)
	// PutPlan creates or overwrites a plan.
	PutPlan(ctx context.Context, plan *domain.Plan) error
	// UpdatePlan writes the editable attributes of an existing plan and returns
	// the stored result, failing with ErrNotFound if it is gone. currentAmount
	// is left to AddToCurrentAmount unless setCurrentAmount is true.
	UpdatePlan(ctx context.Context, plan *domain.Plan, setCurrentAmount bool) (*domain.Plan, error)
	DeletePlan(ctx context.Context, userID, planID string) error
	// AddToCurrentAmount atomically adds amount to the plan's currentAmount
	// and returns the updated plan.
	AddToCurrentAmount(ctx context.Context, userID, planID string, amount float64, updatedAt time.Time) (*domain.Plan, error)
	PutProgress(ctx context.Context, entry *domain.ProgressEntry) error
	// ListProgress returns up to limit entries, most recent first. A limit of
	// zero returns all entries.
	ListProgress(ctx context.Context, userID, planID string, limit int) ([]domain.ProgressEntry, error)
}

// AccountRepository persists linked bank accounts.
type AccountRepository interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error)
	PutAccount(ctx context.Context, account *domain.BankAccount) error
	DeleteAccount(ctx context.Context, userID, accountID string) error
	// ListActiveAccounts walks every partition; it backs the scheduled
	// balance refresh only.
	ListActiveAccounts(ctx context.Context) ([]domain.BankAccount, error)
}

// Store is the full set of repositories backed by one table.
type Store interface {
	ProfileRepository
	PlanRepository
	AccountRepository
	// ListUserKeys returns the key of every item in the user's partition.
	ListUserKeys(ctx context.Context, userID string) ([]ItemKey, error)
	DeleteKeys(ctx context.Context, keys []ItemKey) error
}
