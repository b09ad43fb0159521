// Package ledger maintains per-leg position state: fill arithmetic, price
// bookkeeping, and risk-configuration snapshots. It is the single write path
// for the fill pipeline and is read by the risk engine and executor.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-terminal/internal/config"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
	"options-terminal/internal/store"
)

// Fill is one executed trade reported by the fill pipeline.
type Fill struct {
	InstanceID string
	Symbol     string
	Exchange   models.Exchange
	Side       models.OrderSide
	Quantity   int
	Price      float64

	// Classification, used only when the fill creates the leg.
	Underlying string
	Expiry     time.Time
	Right      models.OptionRight
	Strike     float64
	Kind       models.InstrumentKind
	Product    models.ProductType
	LotSize    int
}

// Ledger applies fills and price ticks to leg state.
type Ledger struct {
	store    store.LegStore
	defaults config.LegDefaults
	log      zerolog.Logger
}

// New creates a ledger over the given leg store.
func New(s store.LegStore, defaults config.LegDefaults, log zerolog.Logger) *Ledger {
	return &Ledger{store: s, defaults: defaults, log: log.With().Str("component", "ledger").Logger()}
}

// ApplyFill updates (or creates) the leg for a fill and returns the new
// state. Average entry is kept equal to net notional over net quantity for
// any non-zero net quantity.
func (l *Ledger) ApplyFill(ctx context.Context, fill Fill) (*models.Leg, error) {
	if fill.Quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", fill.Quantity, "fill quantity must be positive")
	}
	if fill.Price <= 0 {
		return nil, apperrors.NewValidationError("price", fill.Price, "fill price must be positive")
	}

	leg, err := l.store.GetLegByKey(ctx, fill.InstanceID, fill.Symbol, fill.Exchange)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrLegNotFound) {
			return nil, err
		}
		leg = l.newLeg(fill)
	}

	prevNet := leg.NetQty

	if fill.Side == models.OrderSideBuy {
		leg.BuyQty += fill.Quantity
		leg.BuyNotional += fill.Price * float64(fill.Quantity)
	} else {
		leg.SellQty += fill.Quantity
		leg.SellNotional += fill.Price * float64(fill.Quantity)
	}
	leg.NetQty = leg.BuyQty - leg.SellQty

	if leg.NetQty != 0 {
		netNotional := leg.BuyNotional - leg.SellNotional
		leg.AvgEntryPrice = netNotional / float64(leg.NetQty)
	}

	leg.LastPrice = fill.Price

	// A flat-to-open or direction flip starts a fresh excursion.
	if prevNet == 0 || (prevNet > 0) != (leg.NetQty > 0) {
		leg.BestFavorablePrice = fill.Price
		leg.LastTrailPrice = fill.Price
		leg.TrailingArmed = false
		leg.TrailingStopPrice = 0
	} else {
		l.trackFavorable(leg, fill.Price)
	}

	if err := l.store.UpsertLeg(ctx, leg); err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("leg", leg.ID).
		Str("symbol", leg.Symbol).
		Int("net_qty", leg.NetQty).
		Float64("avg_entry", leg.AvgEntryPrice).
		Msg("Fill applied")

	return leg, nil
}

// ApplyTick records the latest market price for a leg and advances its
// best-favorable excursion.
func (l *Ledger) ApplyTick(ctx context.Context, instanceID, symbol string, exchange models.Exchange, price float64) error {
	if price <= 0 {
		return apperrors.NewValidationError("price", price, "tick price must be positive")
	}
	leg, err := l.store.GetLegByKey(ctx, instanceID, symbol, exchange)
	if err != nil {
		return err
	}
	if leg.NetQty == 0 {
		return nil
	}
	l.trackFavorable(leg, price)
	return l.store.UpdateLegPrice(ctx, leg.ID, price, leg.BestFavorablePrice)
}

// Get returns the current state of one leg.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Leg, error) {
	return l.store.GetLeg(ctx, id)
}

// GetByKey returns one leg by its (instance, symbol, exchange) key.
func (l *Ledger) GetByKey(ctx context.Context, instanceID, symbol string, exchange models.Exchange) (*models.Leg, error) {
	return l.store.GetLegByKey(ctx, instanceID, symbol, exchange)
}

// EnableRisk snapshots a pre-resolved risk configuration onto a leg and arms
// the engine for it. Defaults are applied in one place.
func (l *Ledger) EnableRisk(ctx context.Context, legID string, target, stop float64, trailing models.TrailingConfig, scope models.ExitScope, pyramiding bool) error {
	leg, err := l.store.GetLeg(ctx, legID)
	if err != nil {
		return err
	}
	leg.TargetPrice = target
	leg.StopPrice = stop
	leg.Trailing = trailing
	leg.Scope = scope
	leg.Pyramiding = pyramiding
	leg.RiskEnabled = true
	leg.TrailingArmed = false
	leg.TrailingStopPrice = 0
	config.ApplyLegDefaults(leg, l.defaults)
	return l.store.UpsertLeg(ctx, leg)
}

func (l *Ledger) newLeg(fill Fill) *models.Leg {
	lot := fill.LotSize
	if lot <= 0 {
		lot = 1
	}
	leg := &models.Leg{
		ID:         uuid.NewString(),
		InstanceID: fill.InstanceID,
		Symbol:     fill.Symbol,
		Exchange:   fill.Exchange,
		Underlying: fill.Underlying,
		Expiry:     fill.Expiry,
		Right:      fill.Right,
		Strike:     fill.Strike,
		Kind:       fill.Kind,
		Product:    fill.Product,
		LotSize:    lot,
	}
	config.ApplyLegDefaults(leg, l.defaults)
	return leg
}

func (l *Ledger) trackFavorable(leg *models.Leg, price float64) {
	if leg.BestFavorablePrice == 0 {
		leg.BestFavorablePrice = price
		return
	}
	if leg.IsLong() {
		if price > leg.BestFavorablePrice {
			leg.BestFavorablePrice = price
		}
	} else if price < leg.BestFavorablePrice {
		leg.BestFavorablePrice = price
	}
}
