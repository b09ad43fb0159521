package executor

import (
	"context"
	"fmt"

	"options-terminal/internal/broker"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/logging"
	"options-terminal/internal/models"
)

// executeClose flattens exposure. EXIT closes the single target leg;
// EXIT_ALL in options mode closes every active option leg at the governing
// expiry, both rights, continuing past individual order failures.
func (x *Executor) executeClose(ctx context.Context, b broker.Broker, req QuickOrderRequest, leg *models.Leg, inst models.Instance, requestID string, res *InstanceResult) error {
	if req.Action == models.ActionExitAll && req.Mode == models.TradeModeOptions {
		return x.closeAllOptions(ctx, b, req, leg, inst, requestID, res)
	}
	return x.closeLeg(ctx, b, leg, inst, requestID, res)
}

// closeLeg closes whatever the broker reports open on the leg's contract. A
// flat position is a successful no-op.
func (x *Executor) closeLeg(ctx context.Context, b broker.Broker, leg *models.Leg, inst models.Instance, requestID string, res *InstanceResult) error {
	product := leg.Product
	if product == "" {
		product = models.ProductNRML
	}
	current, err := b.GetOpenPosition(ctx, leg.Symbol, leg.Exchange, product)
	if err != nil {
		return apperrors.NewBrokerError(inst.ID, "get_open_position", err)
	}
	if current == 0 {
		ilog := logging.WithInstance(x.log, inst.ID)
		ilog.Debug().
			Str("symbol", leg.Symbol).
			Msg("Nothing open to close")
		return nil
	}

	side := models.OrderSideSell
	qty := current
	if current < 0 {
		side = models.OrderSideBuy
		qty = -current
	}
	order := &models.Order{
		Symbol:              leg.Symbol,
		Exchange:            leg.Exchange,
		Side:                side,
		Type:                models.OrderTypeMarket,
		Product:             product,
		Quantity:            qty,
		CurrentPositionSize: current,
		Tag:                 "quick_exit",
	}
	result, err := x.placeOrder(ctx, b, inst, order, StrategyClose.String(), requestID)
	if err != nil {
		return err
	}
	res.OrderIDs = append(res.OrderIDs, result.OrderID)
	return nil
}

// closeAllOptions sweeps the full option book for the leg's underlying at
// the governing expiry. Each leg gets its own close order; failures are
// collected and reported after the sweep completes.
func (x *Executor) closeAllOptions(ctx context.Context, b broker.Broker, req QuickOrderRequest, leg *models.Leg, inst models.Instance, requestID string, res *InstanceResult) error {
	expiry, err := x.resolveExpiry(ctx, b, req, leg)
	if err != nil {
		return err
	}
	legs, err := x.store.ListActiveLegs(ctx, inst.ID, leg.Underlying, expiry)
	if err != nil {
		return err
	}
	if len(legs) == 0 {
		ilog := logging.WithInstance(x.log, inst.ID)
		ilog.Debug().
			Str("underlying", leg.Underlying).
			Msg("No active option legs to close")
		return nil
	}

	var failed int
	var firstErr error
	for i := range legs {
		target := &legs[i]
		order := &models.Order{
			Symbol:              target.Symbol,
			Exchange:            target.Exchange,
			Side:                target.CloseSide(),
			Type:                models.OrderTypeMarket,
			Product:             target.Product,
			Quantity:            target.AbsQty(),
			CurrentPositionSize: target.NetQty,
			Tag:                 "quick_exit_all",
		}
		result, cerr := x.placeOrder(ctx, b, inst, order, StrategyClose.String(), requestID)
		if cerr != nil {
			failed++
			if firstErr == nil {
				firstErr = cerr
			}
			ilog := logging.WithInstance(x.log, inst.ID)
			ilog.Warn().Err(cerr).
				Str("symbol", target.Symbol).
				Msg("Close order failed, continuing sweep")
			continue
		}
		res.OrderIDs = append(res.OrderIDs, result.OrderID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d close orders failed: %w", failed, len(legs), firstErr)
	}
	return nil
}
