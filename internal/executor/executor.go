// Package executor translates one user action into one or more broker orders
// across instances, with per-instance isolation.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-terminal/internal/broker"
	"options-terminal/internal/config"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/logging"
	"options-terminal/internal/metrics"
	"options-terminal/internal/models"
	"options-terminal/internal/resilience"
	"options-terminal/internal/store"
	"options-terminal/pkg/utils"
)

// QuickOrderRequest is one user action from the quick order panel. Risk and
// strike settings arrive pre-resolved from the settings layer.
type QuickOrderRequest struct {
	LegID      string
	InstanceID string // empty = broadcast to the leg's watchlist instances
	Action     models.QuickAction
	Mode       models.TradeMode
	Quantity   int // lots for options, units otherwise
	Product    models.ProductType

	// Options-mode parameters
	OperatingMode models.OperatingMode
	StrikePolicy  models.StrikePolicy
	Offset        models.StrikeOffset
	Expiry        time.Time // zero = nearest listed expiry

	// Pre-validated futures contract for futures mode
	FuturesSymbol string
}

// InstanceResult is the outcome of one instance's share of a quick order.
type InstanceResult struct {
	InstanceID      string   `json:"instance_id"`
	Success         bool     `json:"success"`
	OrderIDs        []string `json:"order_ids,omitempty"`
	ReconcileOrders int      `json:"reconcile_orders,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// QuickOrderResult is the aggregate outcome of a quick order.
type QuickOrderResult struct {
	RequestID  string           `json:"request_id"`
	Strategy   string           `json:"strategy"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []InstanceResult `json:"results"`
}

// Executor is the quick order executor.
type Executor struct {
	store   store.Store
	brokers *broker.Registry
	cfg     config.ExecutorConfig
	metrics *metrics.Metrics
	log     zerolog.Logger

	// Pinned strikes for the Anchor strike policy, keyed per leg and right.
	anchorMu sync.Mutex
	anchors  map[anchorKey]float64

	// One breaker per instance; a degraded connection fails fast instead
	// of consuming the call timeout on every broadcast.
	breakers *resilience.Set
}

type anchorKey struct {
	legID  string
	right  models.OptionRight
	expiry string
}

// New creates an executor.
func New(s store.Store, brokers *broker.Registry, cfg config.ExecutorConfig, m *metrics.Metrics, log zerolog.Logger) *Executor {
	return &Executor{
		store:    s,
		brokers:  brokers,
		cfg:      cfg,
		metrics:  m,
		anchors:  make(map[anchorKey]float64),
		breakers: resilience.NewSet(resilience.DefaultBreakerConfig()),
		log:      log.With().Str("component", "executor").Logger(),
	}
}

// PlaceQuickOrder validates, classifies and executes one quick order. A pure
// validation failure returns an error with no partial results; once
// execution starts, per-instance failures are reported in the result.
func (x *Executor) PlaceQuickOrder(ctx context.Context, req QuickOrderRequest) (*QuickOrderResult, error) {
	strategy, err := Classify(req.Action, req.Mode)
	if err != nil {
		x.metrics.RecordQuickOrder("unknown", "rejected")
		return nil, err
	}
	if strategy != StrategyClose && req.Quantity <= 0 {
		x.metrics.RecordQuickOrder(strategy.String(), "rejected")
		return nil, apperrors.NewValidationError("quantity", req.Quantity, "must be positive")
	}

	leg, err := x.store.GetLeg(ctx, req.LegID)
	if err != nil {
		x.metrics.RecordQuickOrder(strategy.String(), "rejected")
		return nil, err
	}

	instances, err := x.resolveInstances(ctx, req, leg)
	if err != nil {
		x.metrics.RecordQuickOrder(strategy.String(), "rejected")
		return nil, err
	}

	result := &QuickOrderResult{
		RequestID: uuid.NewString(),
		Strategy:  strategy.String(),
		Total:     len(instances),
	}

	// Per-instance execution is independent and timeout-bounded: a stalled
	// instance neither blocks its siblings nor fails the batch.
	results := make([]InstanceResult, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst models.Instance) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, x.callTimeout())
			defer cancel()
			results[i] = x.executeOnInstance(callCtx, strategy, req, leg, inst, result.RequestID)
		}(i, inst)
	}
	wg.Wait()

	for _, r := range results {
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}
	result.Results = results

	outcome := "ok"
	if result.Failed > 0 {
		outcome = "partial"
		if result.Successful == 0 {
			outcome = "failed"
		}
	}
	x.metrics.RecordQuickOrder(strategy.String(), outcome)

	x.log.Info().
		Str("request", result.RequestID).
		Str("strategy", result.Strategy).
		Int("total", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("Quick order finished")

	return result, nil
}

// GetExecutionStats returns the executor's counters snapshot.
func (x *Executor) GetExecutionStats() metrics.ExecutionStats {
	return x.metrics.Snapshot()
}

func (x *Executor) callTimeout() time.Duration {
	if x.cfg.CallTimeout > 0 {
		return x.cfg.CallTimeout
	}
	return 10 * time.Second
}

// retryConfig governs read-path broker calls (quotes, chains). Order
// placement is never retried.
func (x *Executor) retryConfig() utils.RetryConfig {
	return utils.DefaultRetryConfig().WithAttempts(x.cfg.RetryAttempts)
}

// resolveInstances picks the named instance or expands the broadcast set:
// every instance assigned to the leg's watchlist that is active,
// order-enabled and not in analyzer mode.
func (x *Executor) resolveInstances(ctx context.Context, req QuickOrderRequest, leg *models.Leg) ([]models.Instance, error) {
	if req.InstanceID != "" {
		inst, err := x.store.GetInstance(ctx, req.InstanceID)
		if err != nil {
			return nil, err
		}
		return []models.Instance{*inst}, nil
	}

	owner, err := x.store.GetInstance(ctx, leg.InstanceID)
	if err != nil {
		return nil, err
	}
	all, err := x.store.ListInstancesByWatchlist(ctx, owner.WatchlistID)
	if err != nil {
		return nil, err
	}
	var eligible []models.Instance
	for _, inst := range all {
		if inst.Active && inst.OrderEnabled && !inst.Analyzer {
			eligible = append(eligible, inst)
		}
	}
	if len(eligible) == 0 {
		return nil, apperrors.ErrNoEligibleInstances
	}
	return eligible, nil
}

// executeOnInstance runs one strategy against one instance; every failure is
// captured as a per-instance result.
func (x *Executor) executeOnInstance(ctx context.Context, strategy Strategy, req QuickOrderRequest, leg *models.Leg, inst models.Instance, requestID string) InstanceResult {
	res := InstanceResult{InstanceID: inst.ID}

	b, err := x.brokers.Get(inst.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	err = x.breakers.For(inst.ID).Do(func() error {
		switch strategy {
		case StrategyDirect:
			return x.executeDirect(ctx, b, req, leg, inst, requestID, &res)
		case StrategyReconciledOptions:
			return x.executeReconciled(ctx, b, req, leg, inst, requestID, &res)
		case StrategyClose:
			return x.executeClose(ctx, b, req, leg, inst, requestID, &res)
		}
		return nil
	})
	if err != nil {
		res.Error = err.Error()
		ilog := logging.WithInstance(x.log, inst.ID)
		ilog.Error().Err(err).
			Str("strategy", strategy.String()).
			Msg("Instance execution failed")
		return res
	}
	res.Success = true
	return res
}

// placeOrder submits one order and records the audit row. The audit write is
// best-effort: a failure after successful placement is logged and swallowed.
func (x *Executor) placeOrder(ctx context.Context, b broker.Broker, inst models.Instance, order *models.Order, strategy, requestID string) (*broker.OrderResult, error) {
	result, err := b.PlaceOrder(ctx, order)

	audit := &store.OrderAudit{
		RequestID:  requestID,
		InstanceID: inst.ID,
		Symbol:     order.Symbol,
		Exchange:   order.Exchange,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Product:    order.Product,
		Strategy:   strategy,
		PlacedAt:   time.Now(),
	}

	if err != nil {
		x.metrics.RecordOrderFailure()
		audit.Status = "ERROR"
		audit.Error = err.Error()
		x.auditBestEffort(ctx, audit)
		return nil, apperrors.NewBrokerError(inst.ID, "place_order", err)
	}
	if result.Status == "REJECTED" {
		x.metrics.RecordOrderFailure()
		audit.OrderID = result.OrderID
		audit.Status = result.Status
		audit.Error = result.Message
		x.auditBestEffort(ctx, audit)
		return nil, apperrors.NewOrderError(inst.ID, order.Symbol, string(order.Side), result.Message, apperrors.ErrOrderRejected)
	}

	x.metrics.RecordOrderPlaced()
	audit.OrderID = result.OrderID
	audit.Status = result.Status
	x.auditBestEffort(ctx, audit)

	logging.LogOrder(x.log, inst.ID, order.Symbol, string(order.Side), order.Quantity, result.Status)
	return result, nil
}

func (x *Executor) auditBestEffort(ctx context.Context, audit *store.OrderAudit) {
	if err := x.store.LogOrder(ctx, audit); err != nil {
		x.log.Warn().Err(err).Str("symbol", audit.Symbol).Msg("Order audit write failed")
	}
}
