package executor

import (
	"context"

	"options-terminal/internal/broker"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// executeDirect submits one order on the leg's own symbol, or on a
// pre-validated futures contract, sized toward the requested delta.
func (x *Executor) executeDirect(ctx context.Context, b broker.Broker, req QuickOrderRequest, leg *models.Leg, inst models.Instance, requestID string, res *InstanceResult) error {
	symbol := leg.Symbol
	exchange := leg.Exchange
	if req.Mode == models.TradeModeFutures {
		if req.FuturesSymbol == "" {
			return apperrors.NewValidationError("futures_symbol", "", "futures mode requires a validated contract")
		}
		symbol = req.FuturesSymbol
		exchange = models.NFO
	}

	side := models.OrderSideBuy
	if req.Action == models.ActionSell {
		side = models.OrderSideSell
	}
	product := x.product(req)

	current, err := b.GetOpenPosition(ctx, symbol, exchange, product)
	if err != nil {
		return apperrors.NewBrokerError(inst.ID, "get_open_position", err)
	}

	order := &models.Order{
		Symbol:              symbol,
		Exchange:            exchange,
		Side:                side,
		Type:                models.OrderTypeMarket,
		Product:             product,
		Quantity:            req.Quantity,
		CurrentPositionSize: current,
		Tag:                 "quick_direct",
	}
	result, err := x.placeOrder(ctx, b, inst, order, StrategyDirect.String(), requestID)
	if err != nil {
		return err
	}
	res.OrderIDs = append(res.OrderIDs, result.OrderID)
	return nil
}

func (x *Executor) product(req QuickOrderRequest) models.ProductType {
	if req.Product != "" {
		return req.Product
	}
	if x.cfg.DefaultProduct != "" {
		return models.ProductType(x.cfg.DefaultProduct)
	}
	return models.ProductNRML
}
