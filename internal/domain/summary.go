package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanSummary is the derived progress view returned by planner.getPlanSummary.
type PlanSummary struct {
	PlanID                  string  `json:"planId"`
	TargetAmount            float64 `json:"targetAmount"`
	CurrentAmount           float64 `json:"currentAmount"`
	RemainingAmount         float64 `json:"remainingAmount"`
	PercentComplete         float64 `json:"percentComplete"`
	MonthsRemaining         *int    `json:"monthsRemaining"`
	RequiredMonthly         float64 `json:"requiredMonthly"`
	PlannedMonthly          float64 `json:"plannedMonthly"`
	MonthlyExpenses         float64 `json:"monthlyExpenses"`
	OneOffExpenses          float64 `json:"oneOffExpenses"`
	OnTrack                 bool    `json:"onTrack"`
	ProjectedCompletionDate string  `json:"projectedCompletionDate,omitempty"`
	MilestonesCompleted     int     `json:"milestonesCompleted"`
	MilestonesTotal         int     `json:"milestonesTotal"`
}

var (
	hundred      = decimal.NewFromInt(100)
	weeksPerYear = decimal.NewFromInt(52)
	monthsInYear = decimal.NewFromInt(12)
)

// Summarize computes the summary of p as of now. Money is rounded to cents and
// the percentage to one decimal place.
func Summarize(p Plan, now time.Time) PlanSummary {
	target := decimal.NewFromFloat(p.TargetAmount)
	current := decimal.NewFromFloat(p.CurrentAmount)

	remaining := target.Sub(current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	percent := decimal.Zero
	if target.IsPositive() {
		percent = current.Div(target).Mul(hundred)
		if percent.GreaterThan(hundred) {
			percent = hundred
		}
	}

	planned := decimal.NewFromFloat(p.MonthlySavingsGoal).Add(decimal.NewFromFloat(p.PartnerContribution))

	summary := PlanSummary{
		PlanID:          p.ID,
		TargetAmount:    p.TargetAmount,
		CurrentAmount:   p.CurrentAmount,
		RemainingAmount: remaining.Round(2).InexactFloat64(),
		PercentComplete: percent.Round(1).InexactFloat64(),
		PlannedMonthly:  planned.Round(2).InexactFloat64(),
		MilestonesTotal: len(p.Milestones),
	}
	for _, m := range p.Milestones {
		if m.IsCompleted {
			summary.MilestonesCompleted++
		}
	}

	monthly, oneOff := expenseTotals(p.Expenses)
	summary.MonthlyExpenses = monthly.Round(2).InexactFloat64()
	summary.OneOffExpenses = oneOff.Round(2).InexactFloat64()

	required := remaining
	if due, ok := ParseDate(p.TargetDate); ok {
		months := monthsUntil(now, due)
		summary.MonthsRemaining = &months
		if months > 0 {
			required = remaining.Div(decimal.NewFromInt(int64(months)))
		}
	}
	summary.RequiredMonthly = required.Round(2).InexactFloat64()

	switch {
	case remaining.IsZero():
		summary.OnTrack = true
	case summary.MonthsRemaining == nil:
		summary.OnTrack = planned.IsPositive()
	default:
		summary.OnTrack = *summary.MonthsRemaining > 0 && planned.GreaterThanOrEqual(required)
	}

	if remaining.IsPositive() && planned.IsPositive() {
		needed := remaining.Div(planned).Ceil().IntPart()
		summary.ProjectedCompletionDate = now.AddDate(0, int(needed), 0).Format("2006-01-02")
	}

	return summary
}

// expenseTotals splits expenses into a monthly-normalized recurring total and
// a one-off total.
func expenseTotals(expenses []Expense) (monthly, oneOff decimal.Decimal) {
	monthly, oneOff = decimal.Zero, decimal.Zero
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		switch e.Recurrence {
		case RecurrenceWeekly:
			monthly = monthly.Add(amount.Mul(weeksPerYear).Div(monthsInYear))
		case RecurrenceMonthly:
			monthly = monthly.Add(amount)
		case RecurrenceYearly:
			monthly = monthly.Add(amount.Div(monthsInYear))
		default:
			oneOff = oneOff.Add(amount)
		}
	}
	return monthly, oneOff
}

// monthsUntil counts started calendar months between now and target. A target
// in the past yields 0.
func monthsUntil(now, target time.Time) int {
	if !target.After(now) {
		return 0
	}
	months := (target.Year()-now.Year())*12 + int(target.Month()-now.Month())
	if target.Day() > now.Day() {
		months++
	}
	if months < 1 {
		months = 1
	}
	return months
}

// ComputeStats aggregates the profile statistics over a user's plans.
func ComputeStats(plans []Plan) ProfileStats {
	saved, target := decimal.Zero, decimal.Zero
	stats := ProfileStats{TotalPlans: len(plans)}
	for i := range plans {
		p := &plans[i]
		if p.IsActive {
			stats.ActivePlans++
		}
		if p.IsComplete() {
			stats.CompletedPlans++
		}
		saved = saved.Add(decimal.NewFromFloat(p.CurrentAmount))
		target = target.Add(decimal.NewFromFloat(p.TargetAmount))
	}
	stats.TotalSaved = saved.Round(2).InexactFloat64()
	stats.TotalTarget = target.Round(2).InexactFloat64()
	return stats
}
