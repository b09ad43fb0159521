package executor

import (
	"context"
	"fmt"
	"time"

	"options-terminal/internal/broker"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/logging"
	"options-terminal/internal/models"
	"options-terminal/internal/options"
	"options-terminal/pkg/utils"
)

// executeReconciled resolves a concrete option contract from the chain and,
// before opening new exposure, closes every open position on the opposite
// side for the same underlying, expiry and right.
func (x *Executor) executeReconciled(ctx context.Context, b broker.Broker, req QuickOrderRequest, leg *models.Leg, inst models.Instance, requestID string, res *InstanceResult) error {
	right, enter, ok := optionIntent(req.Action)
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnsupportedAction, "action %s is not an options action", req.Action)
	}
	side := orderSide(enter, req.OperatingMode)
	product := x.product(req)

	spot, err := x.resolveSpot(ctx, b, leg)
	if err != nil {
		return err
	}
	expiry, err := x.resolveExpiry(ctx, b, req, leg)
	if err != nil {
		return err
	}

	chain, err := utils.RetryWithResult(ctx, x.retryConfig(), func() (*models.OptionChain, error) {
		return b.GetOptionChain(ctx, leg.Underlying, expiry)
	})
	if err != nil {
		return apperrors.NewBrokerError(inst.ID, "get_option_chain", err)
	}
	snap, err := options.NewSnapshot(chain)
	if err != nil {
		return err
	}

	contract, err := x.resolveContract(snap, leg, req, right, spot, expiry)
	if err != nil {
		return err
	}

	// Reconciliation: buying closes shorts, selling closes longs. Each
	// opposing position gets its own close order; individual failures are
	// logged and do not stop the sweep.
	opposing, err := x.store.ListActiveLegs(ctx, inst.ID, leg.Underlying, expiry)
	if err != nil {
		return err
	}
	for _, opp := range opposing {
		if opp.Right != right {
			continue
		}
		if side == models.OrderSideBuy && opp.NetQty >= 0 {
			continue
		}
		if side == models.OrderSideSell && opp.NetQty <= 0 {
			continue
		}
		closeOrder := &models.Order{
			Symbol:              opp.Symbol,
			Exchange:            opp.Exchange,
			Side:                opp.CloseSide(),
			Type:                models.OrderTypeMarket,
			Product:             opp.Product,
			Quantity:            opp.AbsQty(),
			CurrentPositionSize: opp.NetQty,
			Tag:                 "quick_reconcile",
		}
		result, cerr := x.placeOrder(ctx, b, inst, closeOrder, StrategyReconciledOptions.String(), requestID)
		if cerr != nil {
			ilog := logging.WithInstance(x.log, inst.ID)
			ilog.Warn().Err(cerr).
				Str("symbol", opp.Symbol).
				Msg("Reconciliation close failed, continuing")
			continue
		}
		res.OrderIDs = append(res.OrderIDs, result.OrderID)
		res.ReconcileOrders++
	}

	current, err := b.GetOpenPosition(ctx, contract.Symbol, contract.Exchange, product)
	if err != nil {
		return apperrors.NewBrokerError(inst.ID, "get_open_position", err)
	}

	lot := contract.LotSize
	if lot <= 0 {
		lot = 1
	}
	order := &models.Order{
		Symbol:              contract.Symbol,
		Exchange:            contract.Exchange,
		Side:                side,
		Type:                models.OrderTypeMarket,
		Product:             product,
		Quantity:            req.Quantity * lot,
		CurrentPositionSize: current,
		Tag:                 "quick_options",
	}
	result, err := x.placeOrder(ctx, b, inst, order, StrategyReconciledOptions.String(), requestID)
	if err != nil {
		return err
	}
	res.OrderIDs = append(res.OrderIDs, result.OrderID)
	return nil
}

// resolveSpot reads the underlying's last price. Derivative legs quote their
// underlying on the cash segment.
func (x *Executor) resolveSpot(ctx context.Context, b broker.Broker, leg *models.Leg) (float64, error) {
	exchange := leg.Exchange
	if exchange == models.NFO {
		exchange = models.NSE
	}
	quotes, err := utils.RetryWithResult(ctx, x.retryConfig(), func() ([]models.Quote, error) {
		return b.GetQuote(ctx, []broker.QuoteRef{{Exchange: exchange, Symbol: leg.Underlying}})
	})
	if err != nil {
		return 0, fmt.Errorf("underlying %s: %w: %w", leg.Underlying, apperrors.ErrQuoteUnavailable, err)
	}
	if len(quotes) == 0 || quotes[0].LastPrice <= 0 {
		return 0, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "underlying %s", leg.Underlying)
	}
	return quotes[0].LastPrice, nil
}

// resolveExpiry picks the explicit expiry, the leg's own, or the nearest
// listed one, in that order.
func (x *Executor) resolveExpiry(ctx context.Context, b broker.Broker, req QuickOrderRequest, leg *models.Leg) (time.Time, error) {
	if !req.Expiry.IsZero() {
		return req.Expiry, nil
	}
	if !leg.Expiry.IsZero() {
		return leg.Expiry, nil
	}
	expiries, err := b.GetExpiries(ctx, leg.Underlying)
	if err != nil {
		return time.Time{}, apperrors.Wrapf(err, "list expiries for %s", leg.Underlying)
	}
	if len(expiries) == 0 {
		return time.Time{}, apperrors.Wrapf(apperrors.ErrContractNotFound, "no listed expiry for %s", leg.Underlying)
	}
	return expiries[0], nil
}

// resolveContract applies the strike policy. Float re-resolves from spot on
// every action; Anchor pins the first-resolved strike per (leg, right,
// expiry) and reuses it until the process restarts.
func (x *Executor) resolveContract(snap *options.Snapshot, leg *models.Leg, req QuickOrderRequest, right models.OptionRight, spot float64, expiry time.Time) (*models.ContractRef, error) {
	offset := req.Offset
	if offset == "" {
		offset = models.OffsetATM
	}

	if req.StrikePolicy == models.StrikeAnchor {
		key := anchorKey{legID: leg.ID, right: right, expiry: expiry.Format("2006-01-02")}
		x.anchorMu.Lock()
		pinned, ok := x.anchors[key]
		x.anchorMu.Unlock()
		if ok {
			return snap.ResolveSymbol(pinned, right)
		}
		contract, err := snap.Resolve(spot, offset, right)
		if err != nil {
			return nil, err
		}
		x.anchorMu.Lock()
		x.anchors[key] = contract.Strike
		x.anchorMu.Unlock()
		return contract, nil
	}

	return snap.Resolve(spot, offset, right)
}
