// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-terminal/internal/models"
)

// LegStore persists per-leg position state. Updates are narrow and single-row:
// the fill pipeline and the risk engine both write here concurrently.
type LegStore interface {
	UpsertLeg(ctx context.Context, leg *models.Leg) error
	GetLeg(ctx context.Context, id string) (*models.Leg, error)
	GetLegByKey(ctx context.Context, instanceID, symbol string, exchange models.Exchange) (*models.Leg, error)
	ListRiskEnabledLegs(ctx context.Context) ([]models.Leg, error)
	// ListActiveLegs returns non-zero-quantity legs for one instance and
	// underlying at the given expiry, used for exit-scope expansion.
	ListActiveLegs(ctx context.Context, instanceID, underlying string, expiry time.Time) ([]models.Leg, error)
	SetRiskEnabled(ctx context.Context, legID string, enabled bool) error
	UpdateTrailing(ctx context.Context, legID string, stop float64, armed bool, lastTrailPrice float64) error
	UpdateLegPrice(ctx context.Context, legID string, last, bestFavorable float64) error
}

// RiskExitStore persists triggered protective exits. CreateRiskExit enforces
// uniqueness on the trigger id; a duplicate returns ErrDuplicateTrigger, the
// durable idempotency guarantee behind the in-memory guard.
type RiskExitStore interface {
	CreateRiskExit(ctx context.Context, exit *models.RiskExit) error
	SetPlannedOrders(ctx context.Context, triggerID string, orders []models.PlannedOrder) error
	UpdateRiskExitStatus(ctx context.Context, triggerID string, status models.RiskExitStatus, summary *models.ExecutionSummary) error
	GetRiskExit(ctx context.Context, triggerID string) (*models.RiskExit, error)
	ListPendingRiskExits(ctx context.Context) ([]models.RiskExit, error)
}

// InstanceStore persists broker instance records. The web CRUD that edits
// them lives upstream; the core only reads.
type InstanceStore interface {
	SaveInstance(ctx context.Context, inst *models.Instance) error
	GetInstance(ctx context.Context, id string) (*models.Instance, error)
	ListInstancesByWatchlist(ctx context.Context, watchlistID string) ([]models.Instance, error)
}

// OrderAudit is one audit-log row for a placed order. Writing it is
// best-effort: the financial action already happened.
type OrderAudit struct {
	RequestID  string
	InstanceID string
	Symbol     string
	Exchange   models.Exchange
	Side       models.OrderSide
	Quantity   int
	Product    models.ProductType
	OrderID    string
	Status     string
	Strategy   string
	Error      string
	PlacedAt   time.Time
}

// AuditStore persists the order audit trail.
type AuditStore interface {
	LogOrder(ctx context.Context, entry *OrderAudit) error
}

// Store is the full persistence surface of the terminal core.
type Store interface {
	LegStore
	RiskExitStore
	InstanceStore
	AuditStore
	Close() error
}
