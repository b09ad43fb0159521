// Package risk evaluates take-profit, stop-loss and trailing-stop conditions
// over risk-enabled legs and emits idempotent exit intents. Order submission
// for triggered exits is delegated to the execution layer.
package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-terminal/internal/config"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/logging"
	"options-terminal/internal/metrics"
	"options-terminal/internal/models"
	"options-terminal/internal/store"
)

type guardKey struct {
	legID string
	kind  models.TriggerKind
}

// Engine is the recurring risk evaluation loop. Leg evaluations within one
// tick run concurrently; one leg's failure never aborts the others.
type Engine struct {
	store   store.Store
	cfg     config.EngineConfig
	metrics *metrics.Metrics
	log     zerolog.Logger

	// In-memory de-duplication across overlapping ticks. Best-effort only:
	// the durable guarantee is the trigger-id uniqueness constraint.
	guardMu sync.Mutex
	guard   map[guardKey]struct{}

	killSwitch atomic.Bool
	enabled    atomic.Bool
}

// NewEngine creates a risk engine over the given store.
func NewEngine(s store.Store, cfg config.EngineConfig, m *metrics.Metrics, log zerolog.Logger) *Engine {
	e := &Engine{
		store:   s,
		cfg:     cfg,
		metrics: m,
		guard:   make(map[guardKey]struct{}),
		log:     log.With().Str("component", "risk_engine").Logger(),
	}
	e.killSwitch.Store(cfg.KillSwitch)
	e.enabled.Store(cfg.Enabled)
	return e
}

// Run drives the evaluation loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", interval).Msg("Risk engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Risk engine stopped")
			return
		case <-ticker.C:
			if !e.enabled.Load() {
				continue
			}
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every risk-enabled leg once, with bounded concurrency.
func (e *Engine) Tick(ctx context.Context) {
	legs, err := e.store.ListRiskEnabledLegs(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("Listing risk-enabled legs failed")
		return
	}
	e.metrics.EngineTicks.Inc()
	if len(legs) == 0 {
		return
	}

	limit := e.cfg.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := range legs {
		leg := legs[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					e.metrics.EvaluationErrors.Inc()
					e.log.Error().Interface("panic", r).Str("leg", leg.ID).Msg("Leg evaluation panicked")
				}
			}()
			if err := e.EvaluateLeg(ctx, &leg); err != nil {
				e.metrics.EvaluationErrors.Inc()
				llog := logging.WithLeg(e.log, leg.ID, leg.Symbol)
				llog.Error().Err(err).Msg("Leg evaluation failed")
			}
		}()
	}
	wg.Wait()
}

// EvaluateLeg runs one leg through the target/stop/trailing state machine
// and fires at most one trigger.
func (e *Engine) EvaluateLeg(ctx context.Context, leg *models.Leg) error {
	if !leg.Evaluable() {
		return nil
	}
	e.metrics.LegEvaluations.Inc()

	v := evaluate(leg)

	if v.TrailChanged {
		if err := e.store.UpdateTrailing(ctx, leg.ID, v.Stop, v.Armed, v.LastTrail); err != nil {
			return err
		}
		leg.TrailingStopPrice = v.Stop
		leg.TrailingArmed = v.Armed
		leg.LastTrailPrice = v.LastTrail
	}

	if v.Trigger == "" {
		return nil
	}
	return e.trigger(ctx, leg, v.Trigger, v.TriggerPrice)
}

// TriggerManual fires a manual exit for one leg at its last price.
func (e *Engine) TriggerManual(ctx context.Context, legID string) error {
	leg, err := e.store.GetLeg(ctx, legID)
	if err != nil {
		return err
	}
	if leg.NetQty == 0 || leg.LastPrice <= 0 {
		return apperrors.NewValidationError("leg", legID, "no evaluable position to exit")
	}
	return e.trigger(ctx, leg, models.TriggerManual, leg.LastPrice)
}

// trigger creates the Risk Exit record for a fired condition. The in-memory
// guard absorbs concurrent duplicates; the store uniqueness constraint
// absorbs the rest.
func (e *Engine) trigger(ctx context.Context, leg *models.Leg, kind models.TriggerKind, price float64) error {
	if e.killSwitch.Load() {
		e.metrics.TriggersSuppressed.Inc()
		llog := logging.WithLeg(e.log, leg.ID, leg.Symbol)
		llog.Warn().
			Str("kind", string(kind)).
			Msg("Trigger suppressed by kill switch")
		return nil
	}

	key := guardKey{legID: leg.ID, kind: kind}
	e.guardMu.Lock()
	if _, active := e.guard[key]; active {
		e.guardMu.Unlock()
		e.metrics.TriggersSuppressed.Inc()
		return nil
	}
	e.guard[key] = struct{}{}
	e.guardMu.Unlock()
	// Released once the record is written, success or not.
	defer func() {
		e.guardMu.Lock()
		delete(e.guard, key)
		e.guardMu.Unlock()
	}()

	// A stale leg snapshot may arrive after an earlier trigger already
	// cleared the flag; the store is the authority.
	if kind != models.TriggerManual {
		current, err := e.store.GetLeg(ctx, leg.ID)
		if err == nil && !current.RiskEnabled {
			e.metrics.TriggersSuppressed.Inc()
			return nil
		}
	}

	unitPnL := leg.UnitPnL(price)
	exit := &models.RiskExit{
		TriggerID:    uuid.NewString(),
		LegID:        leg.ID,
		InstanceID:   leg.InstanceID,
		Kind:         kind,
		Scope:        leg.Scope,
		TriggerPrice: price,
		TargetPrice:  leg.TargetPrice,
		Quantity:     leg.AbsQty(),
		EntryPrice:   leg.AvgEntryPrice,
		UnitPnL:      unitPnL,
		TotalPnL:     unitPnL * float64(leg.AbsQty()),
		Status:       models.ExitPending,
	}

	if err := e.store.CreateRiskExit(ctx, exit); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicateTrigger) {
			e.metrics.TriggersSuppressed.Inc()
			return nil
		}
		return apperrors.Wrap(err, "persisting risk exit")
	}

	// Cleared in the same step as trigger creation so slow downstream
	// execution cannot re-trigger this leg.
	if err := e.store.SetRiskEnabled(ctx, leg.ID, false); err != nil {
		e.log.Error().Err(err).Str("leg", leg.ID).Msg("Clearing risk flag failed")
	}

	targets, err := e.expandScope(ctx, leg)
	if err != nil {
		e.log.Error().Err(err).Str("leg", leg.ID).Msg("Scope expansion failed, closing triggering leg only")
		targets = []models.Leg{*leg}
	}

	orders := make([]models.PlannedOrder, 0, len(targets))
	for _, t := range targets {
		orders = append(orders, models.PlannedOrder{
			LegID:    t.ID,
			Symbol:   t.Symbol,
			Exchange: t.Exchange,
			Side:     t.CloseSide(),
			Quantity: t.AbsQty(),
			Product:  t.Product,
		})
	}
	if err := e.store.SetPlannedOrders(ctx, exit.TriggerID, orders); err != nil {
		return apperrors.Wrap(err, "persisting planned orders")
	}
	if err := e.store.UpdateRiskExitStatus(ctx, exit.TriggerID, models.ExitExecuting, nil); err != nil {
		return apperrors.Wrap(err, "marking risk exit executing")
	}

	e.metrics.RecordTrigger(string(kind))
	logging.LogTrigger(e.log, leg.ID, string(kind), price, exit.TotalPnL)
	return nil
}

// expandScope resolves the legs to close for a triggered exit.
func (e *Engine) expandScope(ctx context.Context, leg *models.Leg) ([]models.Leg, error) {
	switch leg.Scope {
	case models.ScopeType, models.ScopeIndex:
		legs, err := e.store.ListActiveLegs(ctx, leg.InstanceID, leg.Underlying, leg.Expiry)
		if err != nil {
			return nil, err
		}
		if leg.Scope == models.ScopeIndex {
			return legs, nil
		}
		var sameRight []models.Leg
		for _, l := range legs {
			if l.Right == leg.Right {
				sameRight = append(sameRight, l)
			}
		}
		return sameRight, nil
	default:
		return []models.Leg{*leg}, nil
	}
}

// GetPendingRiskExits returns exits awaiting or undergoing execution.
func (e *Engine) GetPendingRiskExits(ctx context.Context) ([]models.RiskExit, error) {
	return e.store.ListPendingRiskExits(ctx)
}

// MarkExitCompleted records the execution outcome for a finished exit.
func (e *Engine) MarkExitCompleted(ctx context.Context, triggerID string, summary *models.ExecutionSummary) error {
	return e.store.UpdateRiskExitStatus(ctx, triggerID, models.ExitCompleted, summary)
}

// MarkExitFailed records a failed execution for an exit.
func (e *Engine) MarkExitFailed(ctx context.Context, triggerID string, summary *models.ExecutionSummary) error {
	return e.store.UpdateRiskExitStatus(ctx, triggerID, models.ExitFailed, summary)
}

// SetKillSwitch suppresses new triggers without halting evaluation.
func (e *Engine) SetKillSwitch(on bool) {
	e.killSwitch.Store(on)
	e.log.Warn().Bool("kill_switch", on).Msg("Kill switch changed")
}

// KillSwitch reports whether new triggers are suppressed.
func (e *Engine) KillSwitch() bool { return e.killSwitch.Load() }

// SetEnabled gates the evaluation loop entirely.
func (e *Engine) SetEnabled(on bool) { e.enabled.Store(on) }

// Enabled reports whether the loop runs.
func (e *Engine) Enabled() bool { return e.enabled.Load() }
