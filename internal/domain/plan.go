/**
 * @description
 * This file defines the savings plan model and the inputs accepted by the
 * planner procedures. Milestones and expenses are embedded in their plan and
 * have no independent key.
 *
 * @notes
 * - CurrentAmount only moves through UpdateProgress (additive) or an explicit
 *   UpdatePlan edit.
 */
package domain

import (
	"strings"
	"time"
)

// PlanType categorizes a savings goal.
type PlanType string

const (
	PlanTypeTrip      PlanType = "trip"
	PlanTypeHouse     PlanType = "house"
	PlanTypeCar       PlanType = "car"
	PlanTypeEducation PlanType = "education"
	PlanTypeEmergency PlanType = "emergency"
	PlanTypeOther     PlanType = "other"
)

// Valid reports whether t is a known plan type.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeTrip, PlanTypeHouse, PlanTypeCar, PlanTypeEducation, PlanTypeEmergency, PlanTypeOther:
		return true
	}
	return false
}

// Recurrence describes how often an expense repeats.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

func (r Recurrence) valid() bool {
	switch r {
	case "", RecurrenceNone, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

// Milestone is a named sub-target within a plan.
type Milestone struct {
	ID           string     `json:"id" dynamodbav:"id"`
	Title        string     `json:"title" dynamodbav:"title"`
	TargetAmount float64    `json:"targetAmount" dynamodbav:"targetAmount"`
	TargetDate   string     `json:"targetDate,omitempty" dynamodbav:"targetDate,omitempty"`
	IsCompleted  bool       `json:"isCompleted" dynamodbav:"isCompleted"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
}

// Expense is a cost attached to a plan.
type Expense struct {
	ID         string     `json:"id" dynamodbav:"id"`
	Title      string     `json:"title" dynamodbav:"title"`
	Amount     float64    `json:"amount" dynamodbav:"amount"`
	Category   string     `json:"category" dynamodbav:"category"`
	Date       string     `json:"date,omitempty" dynamodbav:"date,omitempty"`
	Recurrence Recurrence `json:"recurrence" dynamodbav:"recurrence"`
}

// Plan is a user-defined savings goal.
type Plan struct {
	ID                  string      `json:"id" dynamodbav:"id"`
	UserID              string      `json:"userId" dynamodbav:"userId"`
	Type                PlanType    `json:"type" dynamodbav:"type"`
	Title               string      `json:"title" dynamodbav:"title"`
	Description         string      `json:"description,omitempty" dynamodbav:"description,omitempty"`
	TargetAmount        float64     `json:"targetAmount" dynamodbav:"targetAmount"`
	CurrentAmount       float64     `json:"currentAmount" dynamodbav:"currentAmount"`
	TargetDate          string      `json:"targetDate,omitempty" dynamodbav:"targetDate,omitempty"`
	MonthlyIncome       float64     `json:"monthlyIncome" dynamodbav:"monthlyIncome"`
	MonthlySavingsGoal  float64     `json:"monthlySavingsGoal" dynamodbav:"monthlySavingsGoal"`
	PartnerContribution float64     `json:"partnerContribution" dynamodbav:"partnerContribution"`
	IsActive            bool        `json:"isActive" dynamodbav:"isActive"`
	Milestones          []Milestone `json:"milestones" dynamodbav:"milestones"`
	Expenses            []Expense   `json:"expenses" dynamodbav:"expenses"`
	CreatedAt           time.Time   `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt" dynamodbav:"updatedAt"`
}

// IsComplete reports whether the plan has reached its target.
func (p *Plan) IsComplete() bool {
	return p.CurrentAmount >= p.TargetAmount
}

// ProgressEntry is an immutable record of one contribution toward a plan.
type ProgressEntry struct {
	ID        string    `json:"id" dynamodbav:"id"`
	PlanID    string    `json:"planId" dynamodbav:"planId"`
	UserID    string    `json:"userId" dynamodbav:"userId"`
	Amount    float64   `json:"amount" dynamodbav:"amount"`
	Note      string    `json:"note,omitempty" dynamodbav:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// MilestoneInput describes a new milestone.
type MilestoneInput struct {
	Title        string  `json:"title"`
	TargetAmount float64 `json:"targetAmount"`
	TargetDate   string  `json:"targetDate"`
}

func (in MilestoneInput) validateInto(v *violations, prefix string) {
	v.required(prefix+"title", in.Title)
	v.maxLen(prefix+"title", in.Title, 100)
	v.positive(prefix+"targetAmount", in.TargetAmount)
	v.date(prefix+"targetDate", in.TargetDate)
}

// ExpenseInput describes a new expense.
type ExpenseInput struct {
	Title      string     `json:"title"`
	Amount     float64    `json:"amount"`
	Category   string     `json:"category"`
	Date       string     `json:"date"`
	Recurrence Recurrence `json:"recurrence"`
}

func (in ExpenseInput) validateInto(v *violations, prefix string) {
	v.required(prefix+"title", in.Title)
	v.maxLen(prefix+"title", in.Title, 100)
	v.positive(prefix+"amount", in.Amount)
	v.maxLen(prefix+"category", in.Category, 50)
	v.date(prefix+"date", in.Date)
	if !in.Recurrence.valid() {
		v.add(prefix + "recurrence must be one of none, weekly, monthly, yearly")
	}
}

// CreatePlanInput is the payload of planner.createPlan.
type CreatePlanInput struct {
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Type                PlanType         `json:"type"`
	TargetAmount        float64          `json:"targetAmount"`
	CurrentAmount       float64          `json:"currentAmount"`
	TargetDate          string           `json:"targetDate"`
	MonthlyIncome       float64          `json:"monthlyIncome"`
	MonthlySavingsGoal  float64          `json:"monthlySavingsGoal"`
	PartnerContribution float64          `json:"partnerContribution"`
	Milestones          []MilestoneInput `json:"milestones"`
	Expenses            []ExpenseInput   `json:"expenses"`
}

func (in CreatePlanInput) Validate() error {
	var v violations
	v.required("title", in.Title)
	v.maxLen("title", in.Title, 100)
	v.maxLen("description", in.Description, 1000)
	if !in.Type.Valid() {
		v.add("type must be one of trip, house, car, education, emergency, other")
	}
	v.positive("targetAmount", in.TargetAmount)
	v.nonNegative("currentAmount", in.CurrentAmount)
	v.date("targetDate", in.TargetDate)
	v.nonNegative("monthlyIncome", in.MonthlyIncome)
	v.nonNegative("monthlySavingsGoal", in.MonthlySavingsGoal)
	v.nonNegative("partnerContribution", in.PartnerContribution)
	if len(in.Milestones) > 50 {
		v.add("milestones must not exceed 50 entries")
	}
	for _, m := range in.Milestones {
		m.validateInto(&v, "milestones.")
	}
	if len(in.Expenses) > 200 {
		v.add("expenses must not exceed 200 entries")
	}
	for _, e := range in.Expenses {
		e.validateInto(&v, "expenses.")
	}
	return v.err()
}

// UpdatePlanInput edits plan fields. Nil fields are left untouched.
type UpdatePlanInput struct {
	PlanID              string    `json:"planId"`
	Title               *string   `json:"title"`
	Description         *string   `json:"description"`
	Type                *PlanType `json:"type"`
	TargetAmount        *float64  `json:"targetAmount"`
	CurrentAmount       *float64  `json:"currentAmount"`
	TargetDate          *string   `json:"targetDate"`
	MonthlyIncome       *float64  `json:"monthlyIncome"`
	MonthlySavingsGoal  *float64  `json:"monthlySavingsGoal"`
	PartnerContribution *float64  `json:"partnerContribution"`
	IsActive            *bool     `json:"isActive"`
}

func (in UpdatePlanInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	if in.Title != nil {
		v.required("title", *in.Title)
		v.maxLen("title", *in.Title, 100)
	}
	if in.Description != nil {
		v.maxLen("description", *in.Description, 1000)
	}
	if in.Type != nil && !in.Type.Valid() {
		v.add("type must be one of trip, house, car, education, emergency, other")
	}
	if in.TargetAmount != nil {
		v.positive("targetAmount", *in.TargetAmount)
	}
	if in.CurrentAmount != nil {
		v.nonNegative("currentAmount", *in.CurrentAmount)
	}
	if in.TargetDate != nil {
		v.date("targetDate", *in.TargetDate)
	}
	if in.MonthlyIncome != nil {
		v.nonNegative("monthlyIncome", *in.MonthlyIncome)
	}
	if in.MonthlySavingsGoal != nil {
		v.nonNegative("monthlySavingsGoal", *in.MonthlySavingsGoal)
	}
	if in.PartnerContribution != nil {
		v.nonNegative("partnerContribution", *in.PartnerContribution)
	}
	return v.err()
}

// Apply copies the set fields onto p.
func (in UpdatePlanInput) Apply(p *Plan) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Type != nil {
		p.Type = *in.Type
	}
	if in.TargetAmount != nil {
		p.TargetAmount = *in.TargetAmount
	}
	if in.CurrentAmount != nil {
		p.CurrentAmount = *in.CurrentAmount
	}
	if in.TargetDate != nil {
		p.TargetDate = *in.TargetDate
	}
	if in.MonthlyIncome != nil {
		p.MonthlyIncome = *in.MonthlyIncome
	}
	if in.MonthlySavingsGoal != nil {
		p.MonthlySavingsGoal = *in.MonthlySavingsGoal
	}
	if in.PartnerContribution != nil {
		p.PartnerContribution = *in.PartnerContribution
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// PlanIDInput addresses a single plan.
type PlanIDInput struct {
	PlanID string `json:"planId"`
}

func (in PlanIDInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	return v.err()
}

// UpdateProgressInput records a contribution.
type UpdateProgressInput struct {
	PlanID string  `json:"planId"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

func (in UpdateProgressInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	v.positive("amount", in.Amount)
	v.maxLen("note", in.Note, 500)
	return v.err()
}

// ProgressHistoryInput pages through a plan's contributions.
type ProgressHistoryInput struct {
	PlanID string `json:"planId"`
	Limit  int    `json:"limit"`
}

func (in ProgressHistoryInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	if in.Limit < 0 || in.Limit > 500 {
		v.add("limit must be between 0 and 500")
	}
	return v.err()
}

// AddMilestoneInput appends a milestone.
type AddMilestoneInput struct {
	PlanID    string         `json:"planId"`
	Milestone MilestoneInput `json:"milestone"`
}

func (in AddMilestoneInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	in.Milestone.validateInto(&v, "milestone.")
	return v.err()
}

// UpdateMilestoneInput edits or completes a milestone.
type UpdateMilestoneInput struct {
	PlanID       string   `json:"planId"`
	MilestoneID  string   `json:"milestoneId"`
	Title        *string  `json:"title"`
	TargetAmount *float64 `json:"targetAmount"`
	TargetDate   *string  `json:"targetDate"`
	IsCompleted  *bool    `json:"isCompleted"`
}

func (in UpdateMilestoneInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	v.required("milestoneId", in.MilestoneID)
	if in.Title != nil {
		v.required("title", *in.Title)
		v.maxLen("title", *in.Title, 100)
	}
	if in.TargetAmount != nil {
		v.positive("targetAmount", *in.TargetAmount)
	}
	if in.TargetDate != nil {
		v.date("targetDate", *in.TargetDate)
	}
	return v.err()
}

// RemoveMilestoneInput deletes a milestone from its plan.
type RemoveMilestoneInput struct {
	PlanID      string `json:"planId"`
	MilestoneID string `json:"milestoneId"`
}

func (in RemoveMilestoneInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	v.required("milestoneId", in.MilestoneID)
	return v.err()
}

// AddExpenseInput appends an expense.
type AddExpenseInput struct {
	PlanID  string       `json:"planId"`
	Expense ExpenseInput `json:"expense"`
}

func (in AddExpenseInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	in.Expense.validateInto(&v, "expense.")
	return v.err()
}

// RemoveExpenseInput deletes an expense from its plan.
type RemoveExpenseInput struct {
	PlanID    string `json:"planId"`
	ExpenseID string `json:"expenseId"`
}

func (in RemoveExpenseInput) Validate() error {
	var v violations
	v.required("planId", in.PlanID)
	v.required("expenseId", in.ExpenseID)
	return v.err()
}
