package models

import "time"

// TrailingConfig is the pre-resolved trailing-stop configuration for a leg.
// The settings-precedence resolver produces it; this core only consumes it.
type TrailingConfig struct {
	Enabled        bool
	TrailDistance  float64 // absolute distance between best price and stop
	Step           float64 // favorable move required before a recompute
	ArmAfter       float64 // per-unit profit required before arming
	BreakevenAfter float64 // per-unit profit after which the stop clamps to entry
}

// Leg is one tradable instrument's position stream within one broker instance.
// Keyed by (InstanceID, Symbol, Exchange). Created on first fill, updated on
// every fill and price tick, retired logically once risk is satisfied.
type Leg struct {
	ID         string
	InstanceID string
	Symbol     string
	Exchange   Exchange

	// Classification
	Underlying string
	Expiry     time.Time
	Right      OptionRight
	Strike     float64
	Kind       InstrumentKind
	Product    ProductType
	LotSize    int

	// Position arithmetic. AvgEntryPrice = net notional / NetQty whenever
	// NetQty != 0.
	NetQty        int
	AvgEntryPrice float64
	BuyQty        int
	SellQty       int
	BuyNotional   float64
	SellNotional  float64

	// Price bookkeeping
	LastPrice          float64
	BestFavorablePrice float64
	LastTrailPrice     float64

	// Risk configuration snapshot
	RiskEnabled bool
	TargetPrice float64 // absolute, 0 = unset
	StopPrice   float64 // absolute, 0 = unset
	Trailing    TrailingConfig
	Scope       ExitScope
	Pyramiding  bool

	// Trailing runtime state
	TrailingStopPrice float64
	TrailingArmed     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLong reports whether the leg holds net long exposure.
func (l *Leg) IsLong() bool { return l.NetQty > 0 }

// AbsQty returns the absolute net quantity.
func (l *Leg) AbsQty() int {
	if l.NetQty < 0 {
		return -l.NetQty
	}
	return l.NetQty
}

// UnitPnL computes direction-aware per-unit P&L at the given price.
func (l *Leg) UnitPnL(price float64) float64 {
	if l.IsLong() {
		return price - l.AvgEntryPrice
	}
	return l.AvgEntryPrice - price
}

// CloseSide returns the order side that flattens the leg.
func (l *Leg) CloseSide() OrderSide {
	if l.IsLong() {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Evaluable reports whether the risk engine can run this leg this tick.
func (l *Leg) Evaluable() bool {
	return l.RiskEnabled && l.NetQty != 0 && l.LastPrice > 0 && l.AvgEntryPrice > 0
}
