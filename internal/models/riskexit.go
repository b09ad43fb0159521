package models

import "time"

// RiskExitStatus is the lifecycle state of a protective exit record.
type RiskExitStatus string

const (
	ExitPending   RiskExitStatus = "PENDING"
	ExitExecuting RiskExitStatus = "EXECUTING"
	ExitCompleted RiskExitStatus = "COMPLETED"
	ExitFailed    RiskExitStatus = "FAILED"
)

// PlannedOrder is one close order materialized for a risk exit.
type PlannedOrder struct {
	LegID    string      `json:"leg_id"`
	Symbol   string      `json:"symbol"`
	Exchange Exchange    `json:"exchange"`
	Side     OrderSide   `json:"side"`
	Quantity int         `json:"quantity"`
	Product  ProductType `json:"product"`
}

// ExecutionSummary records the outcome of submitting a risk exit's orders.
type ExecutionSummary struct {
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// RiskExit is one triggered protective exit. Created exactly once per trigger
// event; only status and summary fields mutate afterwards. TriggerID carries
// the durable idempotency guarantee via a storage uniqueness constraint.
type RiskExit struct {
	ID           int64
	TriggerID    string
	LegID        string
	InstanceID   string
	Kind         TriggerKind
	Scope        ExitScope
	TriggerPrice float64
	TargetPrice  float64
	Quantity     int
	EntryPrice   float64
	UnitPnL      float64
	TotalPnL     float64
	Status       RiskExitStatus
	Orders       []PlannedOrder
	Summary      *ExecutionSummary
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
