package domain

import "time"

// EventsExchange is the topic exchange every domain event is published to.
const EventsExchange = "planner.events"

// Routing keys of the domain events.
const (
	EventPlanCreated             = "plan.created"
	EventPlanDeleted             = "plan.deleted"
	EventPlanProgressRecorded    = "plan.progress_recorded"
	EventBankAccountLinked       = "bank_account.linked"
	EventBankAccountDisconnected = "bank_account.disconnected"
)

// PlanEvent is the payload of plan.created and plan.deleted.
type PlanEvent struct {
	UserID       string    `json:"userId"`
	PlanID       string    `json:"planId"`
	Type         PlanType  `json:"type,omitempty"`
	TargetAmount float64   `json:"targetAmount,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// ProgressRecordedEvent is the payload of plan.progress_recorded.
type ProgressRecordedEvent struct {
	UserID        string    `json:"userId"`
	PlanID        string    `json:"planId"`
	EntryID       string    `json:"entryId"`
	Amount        float64   `json:"amount"`
	CurrentAmount float64   `json:"currentAmount"`
	TargetReached bool      `json:"targetReached"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// BankAccountEvent is the payload of the bank_account.* events.
type BankAccountEvent struct {
	UserID          string    `json:"userId"`
	AccountID       string    `json:"accountId"`
	ItemID          string    `json:"itemId"`
	InstitutionName string    `json:"institutionName,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}
