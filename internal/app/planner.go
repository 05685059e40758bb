/**
 * @description
 * PlannerService implements the planner.* procedures: plan CRUD, progress
 * contributions, embedded milestones and expenses, the derived summary and
 * the demo seed.
 *
 * Progress recording is two independent writes: an atomic ADD on the plan
 * followed by a PutItem of the history entry. A failure between them leaves
 * the amount updated without its history row; the error is logged and the
 * updated plan still returned.
 *
 * @dependencies
 * - github.com/google/uuid: plan, milestone and expense ids; time-ordered
 *   (v7) ids for progress entries so sort keys order by recency.
 * - pkg/rabbitmq: plan.* domain events.
 */
package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/rabbitmq"
)

const planNotFound = "Plan not found"

// PlannerService serves the planner.* procedures.
type PlannerService struct {
	plans  store.PlanRepository
	events rabbitmq.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewPlannerService(plans store.PlanRepository, events rabbitmq.Publisher, logger *zap.Logger) *PlannerService {
	return &PlannerService{plans: plans, events: events, logger: logger, now: time.Now}
}

func (s *PlannerService) GetPlans(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) ([]domain.Plan, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	plans, err := s.plans.ListPlans(ctx, user.UserID)
	if err != nil {
		return nil, storeError(err, planNotFound)
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	return plans, nil
}

func (s *PlannerService) GetPlan(ctx context.Context, rc *rpc.Context, in domain.PlanIDInput) (*domain.Plan, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, user.UserID, in.PlanID)
}

func (s *PlannerService) load(ctx context.Context, userID, planID string) (*domain.Plan, error) {
	plan, err := s.plans.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, storeError(err, planNotFound)
	}
	return plan, nil
}

func (s *PlannerService) CreatePlan(ctx context.Context, rc *rpc.Context, in domain.CreatePlanInput) (*domain.Plan, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	plan := &domain.Plan{
		ID:                  uuid.NewString(),
		UserID:              user.UserID,
		Type:                in.Type,
		Title:               strings.TrimSpace(in.Title),
		Description:         in.Description,
		TargetAmount:        in.TargetAmount,
		CurrentAmount:       in.CurrentAmount,
		TargetDate:          in.TargetDate,
		MonthlyIncome:       in.MonthlyIncome,
		MonthlySavingsGoal:  in.MonthlySavingsGoal,
		PartnerContribution: in.PartnerContribution,
		IsActive:            true,
		Milestones:          make([]domain.Milestone, 0, len(in.Milestones)),
		Expenses:            make([]domain.Expense, 0, len(in.Expenses)),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, m := range in.Milestones {
		plan.Milestones = append(plan.Milestones, newMilestone(m))
	}
	for _, e := range in.Expenses {
		plan.Expenses = append(plan.Expenses, newExpense(e))
	}

	if err := s.plans.PutPlan(ctx, plan); err != nil {
		return nil, storeError(err, planNotFound)
	}
	s.logger.Info("plan created", zap.String("user_id", user.UserID), zap.String("plan_id", plan.ID))
	publish(ctx, s.events, s.logger, domain.EventPlanCreated, domain.PlanEvent{
		UserID:       user.UserID,
		PlanID:       plan.ID,
		Type:         plan.Type,
		TargetAmount: plan.TargetAmount,
		OccurredAt:   now,
	})
	return plan, nil
}

func newMilestone(in domain.MilestoneInput) domain.Milestone {
	return domain.Milestone{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(in.Title),
		TargetAmount: in.TargetAmount,
		TargetDate:   in.TargetDate,
	}
}

func newExpense(in domain.ExpenseInput) domain.Expense {
	recurrence := in.Recurrence
	if recurrence == "" {
		recurrence = domain.RecurrenceNone
	}
	return domain.Expense{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(in.Title),
		Amount:     in.Amount,
		Category:   in.Category,
		Date:       in.Date,
		Recurrence: recurrence,
	}
}

// mutate is the read-modify-write cycle shared by the plan editing
// procedures. The write fails NOT_FOUND if the plan was deleted meanwhile.
// currentAmount is only written for an explicit edit of it; otherwise the
// stored value, including any progress recorded since the read, is kept.
func (s *PlannerService) mutate(ctx context.Context, rc *rpc.Context, planID string, setCurrentAmount bool, edit func(*domain.Plan) error) (*domain.Plan, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	plan, err := s.load(ctx, user.UserID, planID)
	if err != nil {
		return nil, err
	}
	if err := edit(plan); err != nil {
		return nil, err
	}
	plan.UpdatedAt = s.now()
	saved, err := s.plans.UpdatePlan(ctx, plan, setCurrentAmount)
	if err != nil {
		return nil, storeError(err, planNotFound)
	}
	return saved, nil
}

func (s *PlannerService) UpdatePlan(ctx context.Context, rc *rpc.Context, in domain.UpdatePlanInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, in.CurrentAmount != nil, func(p *domain.Plan) error {
		in.Apply(p)
		return nil
	})
}

func (s *PlannerService) DeletePlan(ctx context.Context, rc *rpc.Context, in domain.PlanIDInput) (*SuccessResponse, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	if err := s.plans.DeletePlan(ctx, user.UserID, in.PlanID); err != nil {
		return nil, storeError(err, planNotFound)
	}
	s.logger.Info("plan deleted", zap.String("user_id", user.UserID), zap.String("plan_id", in.PlanID))
	publish(ctx, s.events, s.logger, domain.EventPlanDeleted, domain.PlanEvent{
		UserID:     user.UserID,
		PlanID:     in.PlanID,
		OccurredAt: s.now(),
	})
	return &SuccessResponse{Success: true}, nil
}

// ProgressResponse is the result of planner.updateProgress.
type ProgressResponse struct {
	Plan  *domain.Plan          `json:"plan"`
	Entry *domain.ProgressEntry `json:"entry"`
}

func (s *PlannerService) UpdateProgress(ctx context.Context, rc *rpc.Context, in domain.UpdateProgressInput) (*ProgressResponse, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	plan, err := s.plans.AddToCurrentAmount(ctx, user.UserID, in.PlanID, in.Amount, now)
	if err != nil {
		return nil, storeError(err, planNotFound)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entry := &domain.ProgressEntry{
		ID:        id.String(),
		PlanID:    in.PlanID,
		UserID:    user.UserID,
		Amount:    in.Amount,
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: now,
	}
	if err := s.plans.PutProgress(ctx, entry); err != nil {
		s.logger.Error("progress entry write failed after amount update",
			zap.String("user_id", user.UserID),
			zap.String("plan_id", in.PlanID),
			zap.Float64("amount", in.Amount),
			zap.Error(err),
		)
		return nil, apperr.Internal("Progress was applied but could not be recorded", err)
	}

	publish(ctx, s.events, s.logger, domain.EventPlanProgressRecorded, domain.ProgressRecordedEvent{
		UserID:        user.UserID,
		PlanID:        plan.ID,
		EntryID:       entry.ID,
		Amount:        entry.Amount,
		CurrentAmount: plan.CurrentAmount,
		TargetReached: plan.IsComplete(),
		OccurredAt:    now,
	})
	return &ProgressResponse{Plan: plan, Entry: entry}, nil
}

func (s *PlannerService) GetProgressHistory(ctx context.Context, rc *rpc.Context, in domain.ProgressHistoryInput) ([]domain.ProgressEntry, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, user.UserID, in.PlanID); err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit == 0 {
		limit = 50
	}
	entries, err := s.plans.ListProgress(ctx, user.UserID, in.PlanID, limit)
	if err != nil {
		return nil, storeError(err, planNotFound)
	}
	if entries == nil {
		entries = []domain.ProgressEntry{}
	}
	return entries, nil
}

func (s *PlannerService) AddMilestone(ctx context.Context, rc *rpc.Context, in domain.AddMilestoneInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, false, func(p *domain.Plan) error {
		if len(p.Milestones) >= 50 {
			return apperr.BadRequest("milestones must not exceed 50 entries")
		}
		p.Milestones = append(p.Milestones, newMilestone(in.Milestone))
		return nil
	})
}

func (s *PlannerService) UpdateMilestone(ctx context.Context, rc *rpc.Context, in domain.UpdateMilestoneInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, false, func(p *domain.Plan) error {
		for i := range p.Milestones {
			m := &p.Milestones[i]
			if m.ID != in.MilestoneID {
				continue
			}
			if in.Title != nil {
				m.Title = strings.TrimSpace(*in.Title)
			}
			if in.TargetAmount != nil {
				m.TargetAmount = *in.TargetAmount
			}
			if in.TargetDate != nil {
				m.TargetDate = *in.TargetDate
			}
			if in.IsCompleted != nil && *in.IsCompleted != m.IsCompleted {
				m.IsCompleted = *in.IsCompleted
				if m.IsCompleted {
					completed := s.now()
					m.CompletedAt = &completed
				} else {
					m.CompletedAt = nil
				}
			}
			return nil
		}
		return apperr.NotFound("Milestone not found")
	})
}

func (s *PlannerService) RemoveMilestone(ctx context.Context, rc *rpc.Context, in domain.RemoveMilestoneInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, false, func(p *domain.Plan) error {
		for i, m := range p.Milestones {
			if m.ID == in.MilestoneID {
				p.Milestones = append(p.Milestones[:i], p.Milestones[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("Milestone not found")
	})
}

func (s *PlannerService) AddExpense(ctx context.Context, rc *rpc.Context, in domain.AddExpenseInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, false, func(p *domain.Plan) error {
		if len(p.Expenses) >= 200 {
			return apperr.BadRequest("expenses must not exceed 200 entries")
		}
		p.Expenses = append(p.Expenses, newExpense(in.Expense))
		return nil
	})
}

func (s *PlannerService) RemoveExpense(ctx context.Context, rc *rpc.Context, in domain.RemoveExpenseInput) (*domain.Plan, error) {
	return s.mutate(ctx, rc, in.PlanID, false, func(p *domain.Plan) error {
		for i, e := range p.Expenses {
			if e.ID == in.ExpenseID {
				p.Expenses = append(p.Expenses[:i], p.Expenses[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("Expense not found")
	})
}

func (s *PlannerService) GetPlanSummary(ctx context.Context, rc *rpc.Context, in domain.PlanIDInput) (*domain.PlanSummary, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	plan, err := s.load(ctx, user.UserID, in.PlanID)
	if err != nil {
		return nil, err
	}
	summary := domain.Summarize(*plan, s.now())
	return &summary, nil
}

// SeedResponse reports the plans written by planner.seedDemoData.
type SeedResponse struct {
	Success      bool          `json:"success"`
	PlansCreated int           `json:"plansCreated"`
	Plans        []domain.Plan `json:"plans"`
}

// SeedDemoData writes the fixed demo plans. Ids are deterministic so
// repeated calls overwrite instead of duplicating.
func (s *PlannerService) SeedDemoData(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (*SeedResponse, error) {
	user, err := caller(rc)
	if err != nil {
		return nil, err
	}
	plans := demoPlans(user.UserID, s.now())
	for i := range plans {
		if err := s.plans.PutPlan(ctx, &plans[i]); err != nil {
			return nil, storeError(err, planNotFound)
		}
	}
	s.logger.Info("demo data seeded", zap.String("user_id", user.UserID), zap.Int("plans", len(plans)))
	return &SeedResponse{Success: true, PlansCreated: len(plans), Plans: plans}, nil
}

func demoPlans(userID string, now time.Time) []domain.Plan {
	date := func(months int) string { return now.AddDate(0, months, 0).Format("2006-01-02") }
	// Distinct creation times keep the newest-first order stable.
	created := func(daysAgo int) time.Time { return now.AddDate(0, 0, -daysAgo).UTC().Truncate(time.Second) }

	trip := domain.Plan{
		ID:                  "demo-summer-trip",
		UserID:              userID,
		Type:                domain.PlanTypeTrip,
		Title:               "Summer Trip to Japan",
		Description:         "Two weeks in Tokyo, Kyoto and Osaka.",
		TargetAmount:        8000,
		CurrentAmount:       3200,
		TargetDate:          date(8),
		MonthlyIncome:       6500,
		MonthlySavingsGoal:  600,
		PartnerContribution: 200,
		IsActive:            true,
		Milestones: []domain.Milestone{
			{ID: "demo-summer-trip-m1", Title: "Flights booked", TargetAmount: 2400, IsCompleted: true},
			{ID: "demo-summer-trip-m2", Title: "Hotels booked", TargetAmount: 5000, TargetDate: date(4)},
		},
		Expenses: []domain.Expense{
			{ID: "demo-summer-trip-e1", Title: "Flights", Amount: 2400, Category: "travel", Recurrence: domain.RecurrenceNone},
			{ID: "demo-summer-trip-e2", Title: "Rail pass", Amount: 450, Category: "travel", Recurrence: domain.RecurrenceNone},
		},
		CreatedAt: created(60),
	}
	house := domain.Plan{
		ID:                  "demo-house-down-payment",
		UserID:              userID,
		Type:                domain.PlanTypeHouse,
		Title:               "House Down Payment",
		Description:         "20% down payment on a starter home.",
		TargetAmount:        60000,
		CurrentAmount:       22500,
		TargetDate:          date(30),
		MonthlyIncome:       6500,
		MonthlySavingsGoal:  1000,
		PartnerContribution: 500,
		IsActive:            true,
		Milestones: []domain.Milestone{
			{ID: "demo-house-m1", Title: "First 25%", TargetAmount: 15000, IsCompleted: true},
			{ID: "demo-house-m2", Title: "Halfway there", TargetAmount: 30000, TargetDate: date(6)},
		},
		Expenses: []domain.Expense{
			{ID: "demo-house-e1", Title: "Home inspection", Amount: 500, Category: "housing", Recurrence: domain.RecurrenceNone},
			{ID: "demo-house-e2", Title: "Mortgage pre-approval fee", Amount: 300, Category: "housing", Recurrence: domain.RecurrenceNone},
		},
		CreatedAt: created(45),
	}
	emergency := domain.Plan{
		ID:                 "demo-emergency-fund",
		UserID:             userID,
		Type:               domain.PlanTypeEmergency,
		Title:              "Emergency Fund",
		Description:        "Six months of essential expenses.",
		TargetAmount:       15000,
		CurrentAmount:      15000,
		MonthlyIncome:      6500,
		MonthlySavingsGoal: 0,
		IsActive:           false,
		Milestones: []domain.Milestone{
			{ID: "demo-emergency-m1", Title: "Three months covered", TargetAmount: 7500, IsCompleted: true},
			{ID: "demo-emergency-m2", Title: "Six months covered", TargetAmount: 15000, IsCompleted: true},
		},
		Expenses:  []domain.Expense{},
		CreatedAt: created(365),
	}

	plans := []domain.Plan{trip, house, emergency}
	for i := range plans {
		plans[i].UpdatedAt = now
	}
	return plans
}
