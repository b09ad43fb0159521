// Package metrics exposes engine and executor counters via Prometheus and a
// snapshot struct served to the request layer.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all terminal-core instrumentation.
type Metrics struct {
	EngineTicks        prometheus.Counter
	LegEvaluations     prometheus.Counter
	EvaluationErrors   prometheus.Counter
	Triggers           *prometheus.CounterVec
	TriggersSuppressed prometheus.Counter
	QuickOrders        *prometheus.CounterVec
	OrdersPlaced       prometheus.Counter
	OrderFailures      prometheus.Counter

	// Snapshot counters for GetExecutionStats.
	quickOrderRequests atomic.Int64
	ordersPlaced       atomic.Int64
	orderFailures      atomic.Int64
	exitsTriggered     atomic.Int64
}

// New registers and returns the terminal metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EngineTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_risk_engine_ticks_total",
			Help: "Risk engine evaluation ticks completed.",
		}),
		LegEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_risk_leg_evaluations_total",
			Help: "Individual leg evaluations performed.",
		}),
		EvaluationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_risk_evaluation_errors_total",
			Help: "Leg evaluations that failed without aborting the tick.",
		}),
		Triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_risk_triggers_total",
			Help: "Risk exits triggered, by trigger kind.",
		}, []string{"kind"}),
		TriggersSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_risk_triggers_suppressed_total",
			Help: "Triggers suppressed by the kill switch or idempotency guard.",
		}),
		QuickOrders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_quick_orders_total",
			Help: "Quick order requests, by strategy and outcome.",
		}, []string{"strategy", "result"}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_orders_placed_total",
			Help: "Broker orders placed successfully.",
		}),
		OrderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "terminal_order_failures_total",
			Help: "Broker order placements that failed.",
		}),
	}
}

// NewForTest returns metrics bound to a throwaway registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordQuickOrder counts one quick order request.
func (m *Metrics) RecordQuickOrder(strategy, result string) {
	m.QuickOrders.WithLabelValues(strategy, result).Inc()
	m.quickOrderRequests.Add(1)
}

// RecordOrderPlaced counts one successful broker order.
func (m *Metrics) RecordOrderPlaced() {
	m.OrdersPlaced.Inc()
	m.ordersPlaced.Add(1)
}

// RecordOrderFailure counts one failed broker order.
func (m *Metrics) RecordOrderFailure() {
	m.OrderFailures.Inc()
	m.orderFailures.Add(1)
}

// RecordTrigger counts one risk exit trigger.
func (m *Metrics) RecordTrigger(kind string) {
	m.Triggers.WithLabelValues(kind).Inc()
	m.exitsTriggered.Add(1)
}

// ExecutionStats is the counters snapshot exposed to the request layer.
type ExecutionStats struct {
	QuickOrderRequests int64 `json:"quick_order_requests"`
	OrdersPlaced       int64 `json:"orders_placed"`
	OrderFailures      int64 `json:"order_failures"`
	RiskExitsTriggered int64 `json:"risk_exits_triggered"`
}

// Snapshot returns the current execution stats.
func (m *Metrics) Snapshot() ExecutionStats {
	return ExecutionStats{
		QuickOrderRequests: m.quickOrderRequests.Load(),
		OrdersPlaced:       m.ordersPlaced.Load(),
		OrderFailures:      m.orderFailures.Load(),
		RiskExitsTriggered: m.exitsTriggered.Load(),
	}
}
