package store

import (
	"context"
	"sync"
	"time"

	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// MemoryStore implements Store in memory. It backs tests and ephemeral runs;
// the trigger-id uniqueness check mirrors the SQLite constraint so engine
// idempotency behaves identically against either implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	legs      map[string]*models.Leg
	exits     map[string]*models.RiskExit // by trigger id
	exitSeq   int64
	instances map[string]*models.Instance
	audits    []OrderAudit
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		legs:      make(map[string]*models.Leg),
		exits:     make(map[string]*models.RiskExit),
		instances: make(map[string]*models.Instance),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func copyLeg(l *models.Leg) *models.Leg {
	c := *l
	return &c
}

// UpsertLeg inserts or replaces a leg.
func (m *MemoryStore) UpsertLeg(ctx context.Context, leg *models.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if leg.CreatedAt.IsZero() {
		leg.CreatedAt = now
	}
	leg.UpdatedAt = now
	m.legs[leg.ID] = copyLeg(leg)
	return nil
}

// GetLeg fetches one leg by id.
func (m *MemoryStore) GetLeg(ctx context.Context, id string) (*models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	leg, ok := m.legs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("leg", id, apperrors.ErrLegNotFound)
	}
	return copyLeg(leg), nil
}

// GetLegByKey fetches one leg by its (instance, symbol, exchange) key.
func (m *MemoryStore) GetLegByKey(ctx context.Context, instanceID, symbol string, exchange models.Exchange) (*models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, leg := range m.legs {
		if leg.InstanceID == instanceID && leg.Symbol == symbol && leg.Exchange == exchange {
			return copyLeg(leg), nil
		}
	}
	return nil, apperrors.NewNotFoundError("leg", instanceID+"/"+symbol, apperrors.ErrLegNotFound)
}

// ListRiskEnabledLegs returns all evaluable legs.
func (m *MemoryStore) ListRiskEnabledLegs(ctx context.Context) ([]models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Leg
	for _, leg := range m.legs {
		if leg.RiskEnabled && leg.NetQty != 0 {
			out = append(out, *leg)
		}
	}
	return out, nil
}

// ListActiveLegs returns non-zero legs for one instance and underlying.
func (m *MemoryStore) ListActiveLegs(ctx context.Context, instanceID, underlying string, expiry time.Time) ([]models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Leg
	for _, leg := range m.legs {
		if leg.InstanceID == instanceID && leg.Underlying == underlying &&
			leg.Expiry.Equal(expiry) && leg.NetQty != 0 {
			out = append(out, *leg)
		}
	}
	return out, nil
}

// SetRiskEnabled flips one leg's risk flag.
func (m *MemoryStore) SetRiskEnabled(ctx context.Context, legID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	leg, ok := m.legs[legID]
	if !ok {
		return apperrors.NewNotFoundError("leg", legID, apperrors.ErrLegNotFound)
	}
	leg.RiskEnabled = enabled
	leg.UpdatedAt = time.Now()
	return nil
}

// UpdateTrailing writes one leg's trailing runtime state.
func (m *MemoryStore) UpdateTrailing(ctx context.Context, legID string, stop float64, armed bool, lastTrailPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	leg, ok := m.legs[legID]
	if !ok {
		return apperrors.NewNotFoundError("leg", legID, apperrors.ErrLegNotFound)
	}
	leg.TrailingStopPrice = stop
	leg.TrailingArmed = armed
	leg.LastTrailPrice = lastTrailPrice
	leg.UpdatedAt = time.Now()
	return nil
}

// UpdateLegPrice writes one leg's price bookkeeping.
func (m *MemoryStore) UpdateLegPrice(ctx context.Context, legID string, last, bestFavorable float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	leg, ok := m.legs[legID]
	if !ok {
		return apperrors.NewNotFoundError("leg", legID, apperrors.ErrLegNotFound)
	}
	leg.LastPrice = last
	leg.BestFavorablePrice = bestFavorable
	leg.UpdatedAt = time.Now()
	return nil
}

// CreateRiskExit inserts a new exit, enforcing trigger-id uniqueness.
func (m *MemoryStore) CreateRiskExit(ctx context.Context, exit *models.RiskExit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.exits[exit.TriggerID]; exists {
		return apperrors.ErrDuplicateTrigger
	}
	m.exitSeq++
	exit.ID = m.exitSeq
	now := time.Now()
	exit.CreatedAt = now
	exit.UpdatedAt = now
	c := *exit
	m.exits[exit.TriggerID] = &c
	return nil
}

// SetPlannedOrders persists the close-order list for an exit.
func (m *MemoryStore) SetPlannedOrders(ctx context.Context, triggerID string, orders []models.PlannedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exit, ok := m.exits[triggerID]
	if !ok {
		return apperrors.NewNotFoundError("risk exit", triggerID, apperrors.ErrExitNotFound)
	}
	exit.Orders = append([]models.PlannedOrder(nil), orders...)
	exit.UpdatedAt = time.Now()
	return nil
}

// UpdateRiskExitStatus advances the exit lifecycle.
func (m *MemoryStore) UpdateRiskExitStatus(ctx context.Context, triggerID string, status models.RiskExitStatus, summary *models.ExecutionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exit, ok := m.exits[triggerID]
	if !ok {
		return apperrors.NewNotFoundError("risk exit", triggerID, apperrors.ErrExitNotFound)
	}
	exit.Status = status
	if summary != nil {
		s := *summary
		exit.Summary = &s
	}
	exit.UpdatedAt = time.Now()
	return nil
}

// GetRiskExit fetches one exit by trigger id.
func (m *MemoryStore) GetRiskExit(ctx context.Context, triggerID string) (*models.RiskExit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exit, ok := m.exits[triggerID]
	if !ok {
		return nil, apperrors.NewNotFoundError("risk exit", triggerID, apperrors.ErrExitNotFound)
	}
	c := *exit
	return &c, nil
}

// ListPendingRiskExits returns exits awaiting or undergoing execution.
func (m *MemoryStore) ListPendingRiskExits(ctx context.Context) ([]models.RiskExit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RiskExit
	for _, exit := range m.exits {
		if exit.Status == models.ExitPending || exit.Status == models.ExitExecuting {
			out = append(out, *exit)
		}
	}
	return out, nil
}

// SaveInstance inserts or replaces an instance record.
func (m *MemoryStore) SaveInstance(ctx context.Context, inst *models.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	c := *inst
	m.instances[inst.ID] = &c
	return nil
}

// GetInstance fetches one instance by id.
func (m *MemoryStore) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("instance", id, apperrors.ErrInstanceNotFound)
	}
	c := *inst
	return &c, nil
}

// ListInstancesByWatchlist returns instances assigned to a watchlist.
func (m *MemoryStore) ListInstancesByWatchlist(ctx context.Context, watchlistID string) ([]models.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Instance
	for _, inst := range m.instances {
		if inst.WatchlistID == watchlistID {
			out = append(out, *inst)
		}
	}
	return out, nil
}

// LogOrder appends one order audit row.
func (m *MemoryStore) LogOrder(ctx context.Context, entry *OrderAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *entry)
	return nil
}

// OrderAudits returns a copy of the audit trail, oldest first.
func (m *MemoryStore) OrderAudits() []OrderAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderAudit, len(m.audits))
	copy(out, m.audits)
	return out
}
