package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-terminal/internal/broker"
	"options-terminal/internal/config"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/metrics"
	"options-terminal/internal/models"
	"options-terminal/internal/store"
)

var testExpiry = time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC)

func newTestExecutor(s store.Store, brokers *broker.Registry) *Executor {
	cfg := config.ExecutorConfig{
		CallTimeout:    2 * time.Second,
		DefaultProduct: "NRML",
		RetryAttempts:  1,
	}
	return New(s, brokers, cfg, metrics.NewForTest(), zerolog.Nop())
}

func seedInstance(t *testing.T, s store.Store, id string, active, orderEnabled, analyzer bool) {
	t.Helper()
	err := s.SaveInstance(context.Background(), &models.Instance{
		ID:           id,
		Name:         id,
		BrokerName:   "paper",
		WatchlistID:  "wl-1",
		Active:       active,
		OrderEnabled: orderEnabled,
		Analyzer:     analyzer,
	})
	require.NoError(t, err)
}

func seedLeg(t *testing.T, s store.Store, leg *models.Leg) {
	t.Helper()
	require.NoError(t, s.UpsertLeg(context.Background(), leg))
}

func equityLeg(id, instanceID string) *models.Leg {
	return &models.Leg{
		ID:         id,
		InstanceID: instanceID,
		Symbol:     "RELIANCE",
		Exchange:   models.NSE,
		Underlying: "RELIANCE",
		Kind:       models.KindEquity,
		Product:    models.ProductMIS,
	}
}

func optionLeg(id, instanceID, symbol string, right models.OptionRight, strike float64, netQty int) *models.Leg {
	return &models.Leg{
		ID:            id,
		InstanceID:    instanceID,
		Symbol:        symbol,
		Exchange:      models.NFO,
		Underlying:    "NIFTY",
		Expiry:        testExpiry,
		Right:         right,
		Strike:        strike,
		Kind:          models.KindOption,
		Product:       models.ProductNRML,
		LotSize:       75,
		NetQty:        netQty,
		AvgEntryPrice: 100,
	}
}

// niftyChain builds a five-strike chain around 24900 with both rights listed.
func niftyChain() *models.OptionChain {
	chain := &models.OptionChain{
		Underlying: "NIFTY",
		Exchange:   models.NFO,
		SpotPrice:  24900,
		Expiry:     testExpiry,
	}
	for strike := 24800.0; strike <= 25000; strike += 50 {
		chain.Strikes = append(chain.Strikes, models.OptionStrike{
			Strike: strike,
			Call:   &models.OptionContract{Symbol: callSymbol(strike), LotSize: 75, LTP: 120},
			Put:    &models.OptionContract{Symbol: putSymbol(strike), LotSize: 75, LTP: 95},
		})
	}
	return chain
}

func callSymbol(strike float64) string { return fmt.Sprintf("NIFTY25O30%dCE", int(strike)) }
func putSymbol(strike float64) string  { return fmt.Sprintf("NIFTY25O30%dPE", int(strike)) }

func resultFor(t *testing.T, res *QuickOrderResult, instanceID string) InstanceResult {
	t.Helper()
	for _, r := range res.Results {
		if r.InstanceID == instanceID {
			return r
		}
	}
	t.Fatalf("no result for instance %s", instanceID)
	return InstanceResult{}
}

func TestBroadcastIsolatesInstanceFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()

	brokers := map[string]*broker.PaperBroker{}
	for _, id := range []string{"inst-1", "inst-2", "inst-3"} {
		seedInstance(t, s, id, true, true, false)
		pb := broker.NewPaperBroker()
		brokers[id] = pb
		registry.Register(id, pb)
	}
	brokers["inst-2"].PlaceErr = errors.New("gateway timeout")
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeDirect,
		Quantity: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)

	failed := resultFor(t, res, "inst-2")
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "gateway timeout")
	assert.Empty(t, brokers["inst-2"].PlacedOrders())

	for _, id := range []string{"inst-1", "inst-3"} {
		r := resultFor(t, res, id)
		assert.True(t, r.Success, id)
		orders := brokers[id].PlacedOrders()
		require.Len(t, orders, 1, id)
		assert.Equal(t, "RELIANCE", orders[0].Symbol)
		assert.Equal(t, models.OrderSideBuy, orders[0].Side)
		assert.Equal(t, 10, orders[0].Quantity)
		assert.Equal(t, "quick_direct", orders[0].Tag)
	}
}

func TestBroadcastSkipsIneligibleInstances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()

	seedInstance(t, s, "inst-1", true, true, false)
	seedInstance(t, s, "inst-2", false, true, false) // inactive
	seedInstance(t, s, "inst-3", true, false, false) // orders disabled
	seedInstance(t, s, "inst-4", true, true, true)   // analyzer
	for _, id := range []string{"inst-1", "inst-2", "inst-3", "inst-4"} {
		registry.Register(id, broker.NewPaperBroker())
	}
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeDirect,
		Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "inst-1", res.Results[0].InstanceID)
}

func TestBroadcastWithNoEligibleInstances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()

	seedInstance(t, s, "inst-1", true, true, true) // analyzer only
	registry.Register("inst-1", broker.NewPaperBroker())
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	_, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeDirect,
		Quantity: 5,
	})
	assert.ErrorIs(t, err, apperrors.ErrNoEligibleInstances)
}

func TestNamedInstanceBypassesEligibility(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()

	// An analyzer instance is excluded from broadcasts but can be targeted
	// explicitly for paper fills.
	seedInstance(t, s, "inst-paper", true, true, true)
	pb := broker.NewPaperBroker()
	registry.Register("inst-paper", pb)
	seedLeg(t, s, equityLeg("leg-1", "inst-paper"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:      "leg-1",
		InstanceID: "inst-paper",
		Action:     models.ActionSell,
		Mode:       models.TradeModeDirect,
		Quantity:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Successful)
	orders := pb.PlacedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderSideSell, orders[0].Side)
}

func TestRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	registry.Register("inst-1", broker.NewPaperBroker())
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	_, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeDirect,
		Quantity: 0,
	})
	require.Error(t, err)
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExitFlatPositionIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	registry.Register("inst-1", pb)
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:  "leg-1",
		Action: models.ActionExit,
		Mode:   models.TradeModeDirect,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Empty(t, pb.PlacedOrders())
}

func TestExitClosesBrokerReportedPosition(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetPosition("RELIANCE", models.NSE, models.ProductMIS, -40)
	registry.Register("inst-1", pb)
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:  "leg-1",
		Action: models.ActionExit,
		Mode:   models.TradeModeDirect,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderSideBuy, orders[0].Side)
	assert.Equal(t, 40, orders[0].Quantity)
	assert.Equal(t, "quick_exit", orders[0].Tag)
}

func TestExitAllSweepsBothRights(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	registry.Register("inst-1", pb)

	seedLeg(t, s, optionLeg("leg-c1", "inst-1", callSymbol(24900), models.RightCall, 24900, 75))
	seedLeg(t, s, optionLeg("leg-c2", "inst-1", callSymbol(25000), models.RightCall, 25000, 150))
	seedLeg(t, s, optionLeg("leg-p1", "inst-1", putSymbol(24800), models.RightPut, 24800, -75))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:  "leg-c1",
		Action: models.ActionExitAll,
		Mode:   models.TradeModeOptions,
		Expiry: testExpiry,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 3)
	bySymbol := map[string]models.Order{}
	for _, o := range orders {
		assert.Equal(t, "quick_exit_all", o.Tag)
		bySymbol[o.Symbol] = o
	}
	// Long calls sell to close, the short put buys back.
	assert.Equal(t, models.OrderSideSell, bySymbol[callSymbol(24900)].Side)
	assert.Equal(t, 75, bySymbol[callSymbol(24900)].Quantity)
	assert.Equal(t, models.OrderSideSell, bySymbol[callSymbol(25000)].Side)
	assert.Equal(t, 150, bySymbol[callSymbol(25000)].Quantity)
	assert.Equal(t, models.OrderSideBuy, bySymbol[putSymbol(24800)].Side)
	assert.Equal(t, 75, bySymbol[putSymbol(24800)].Quantity)
}

func TestReconciledBuyClosesShortSameRightFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetQuote("NIFTY", 24900)
	pb.SetChain(niftyChain())
	registry.Register("inst-1", pb)

	// A short call must be bought back before the new long call opens; the
	// short put is a different right and stays untouched.
	seedLeg(t, s, optionLeg("leg-short-ce", "inst-1", callSymbol(25000), models.RightCall, 25000, -75))
	seedLeg(t, s, optionLeg("leg-short-pe", "inst-1", putSymbol(24800), models.RightPut, 24800, -75))
	seedLeg(t, s, optionLeg("leg-anchor", "inst-1", "NIFTY", models.RightCall, 0, 0))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:         "leg-anchor",
		Action:        models.ActionBuyCE,
		Mode:          models.TradeModeOptions,
		Quantity:      1,
		OperatingMode: models.ModeBuyer,
		Expiry:        testExpiry,
	})
	require.NoError(t, err)

	r := resultFor(t, res, "inst-1")
	assert.True(t, r.Success)
	assert.Equal(t, 1, r.ReconcileOrders)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, callSymbol(25000), orders[0].Symbol)
	assert.Equal(t, models.OrderSideBuy, orders[0].Side)
	assert.Equal(t, 75, orders[0].Quantity)
	assert.Equal(t, "quick_reconcile", orders[0].Tag)

	assert.Equal(t, callSymbol(24900), orders[1].Symbol)
	assert.Equal(t, models.OrderSideBuy, orders[1].Side)
	assert.Equal(t, 75, orders[1].Quantity) // 1 lot of 75
	assert.Equal(t, "quick_options", orders[1].Tag)
}

func TestReconciledWriterModeSellsToEnter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetQuote("NIFTY", 24900)
	pb.SetChain(niftyChain())
	registry.Register("inst-1", pb)

	// Writer-mode entry sells, so it is long exposure that gets reconciled.
	seedLeg(t, s, optionLeg("leg-long-ce", "inst-1", callSymbol(24850), models.RightCall, 24850, 75))
	seedLeg(t, s, optionLeg("leg-anchor", "inst-1", "NIFTY", models.RightCall, 0, 0))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:         "leg-anchor",
		Action:        models.ActionBuyCE,
		Mode:          models.TradeModeOptions,
		Quantity:      2,
		OperatingMode: models.ModeWriter,
		Offset:        models.OffsetOTM1,
		Expiry:        testExpiry,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resultFor(t, res, "inst-1").ReconcileOrders)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, callSymbol(24850), orders[0].Symbol)
	assert.Equal(t, models.OrderSideSell, orders[0].Side)

	// OTM1 for a call is one strike above ATM.
	assert.Equal(t, callSymbol(24950), orders[1].Symbol)
	assert.Equal(t, models.OrderSideSell, orders[1].Side)
	assert.Equal(t, 150, orders[1].Quantity) // 2 lots of 75
}

func TestAnchorPolicyPinsStrikeAcrossActions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetQuote("NIFTY", 24900)
	pb.SetChain(niftyChain())
	registry.Register("inst-1", pb)
	seedLeg(t, s, optionLeg("leg-anchor", "inst-1", "NIFTY", models.RightCall, 0, 0))

	x := newTestExecutor(s, registry)
	req := QuickOrderRequest{
		LegID:         "leg-anchor",
		Action:        models.ActionBuyCE,
		Mode:          models.TradeModeOptions,
		Quantity:      1,
		OperatingMode: models.ModeBuyer,
		StrikePolicy:  models.StrikeAnchor,
		Expiry:        testExpiry,
	}
	_, err := x.PlaceQuickOrder(ctx, req)
	require.NoError(t, err)

	// Spot drifts two strikes; the anchored action must stay on the first
	// resolved contract.
	pb.SetQuote("NIFTY", 25010)
	_, err = x.PlaceQuickOrder(ctx, req)
	require.NoError(t, err)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, callSymbol(24900), orders[0].Symbol)
	assert.Equal(t, callSymbol(24900), orders[1].Symbol)
}

func TestFloatPolicyReResolvesStrike(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetQuote("NIFTY", 24900)
	pb.SetChain(niftyChain())
	registry.Register("inst-1", pb)
	seedLeg(t, s, optionLeg("leg-float", "inst-1", "NIFTY", models.RightCall, 0, 0))

	x := newTestExecutor(s, registry)
	req := QuickOrderRequest{
		LegID:         "leg-float",
		Action:        models.ActionBuyCE,
		Mode:          models.TradeModeOptions,
		Quantity:      1,
		OperatingMode: models.ModeBuyer,
		StrikePolicy:  models.StrikeFloat,
		Expiry:        testExpiry,
	}
	_, err := x.PlaceQuickOrder(ctx, req)
	require.NoError(t, err)

	pb.SetQuote("NIFTY", 25010)
	_, err = x.PlaceQuickOrder(ctx, req)
	require.NoError(t, err)

	orders := pb.PlacedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, callSymbol(24900), orders[0].Symbol)
	assert.Equal(t, callSymbol(25000), orders[1].Symbol)
}

func TestFuturesModeRequiresContract(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	registry.Register("inst-1", broker.NewPaperBroker())
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeFutures,
		Quantity: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, resultFor(t, res, "inst-1").Error, "futures mode requires")
}

func TestQuickOrderWritesAuditTrail(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	registry.Register("inst-1", broker.NewPaperBroker())
	seedLeg(t, s, equityLeg("leg-1", "inst-1"))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:    "leg-1",
		Action:   models.ActionBuy,
		Mode:     models.TradeModeDirect,
		Quantity: 10,
	})
	require.NoError(t, err)

	audits := s.OrderAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, res.RequestID, audits[0].RequestID)
	assert.Equal(t, "inst-1", audits[0].InstanceID)
	assert.Equal(t, "RELIANCE", audits[0].Symbol)
	assert.Equal(t, "COMPLETE", audits[0].Status)
}

func TestSpotQuoteFailureCarriesBrokerCause(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	registry := broker.NewRegistry()
	seedInstance(t, s, "inst-1", true, true, false)
	pb := broker.NewPaperBroker()
	pb.SetChain(niftyChain()) // chain seeded, underlying quote deliberately not
	registry.Register("inst-1", pb)
	seedLeg(t, s, optionLeg("leg-1", "inst-1", "NIFTY", models.RightCall, 0, 0))

	x := newTestExecutor(s, registry)
	res, err := x.PlaceQuickOrder(ctx, QuickOrderRequest{
		LegID:         "leg-1",
		Action:        models.ActionBuyCE,
		Mode:          models.TradeModeOptions,
		Quantity:      1,
		OperatingMode: models.ModeBuyer,
		StrikePolicy:  models.StrikeFloat,
		Expiry:        testExpiry,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got := resultFor(t, res, "inst-1").Error
	assert.Contains(t, got, apperrors.ErrQuoteUnavailable.Error())
	assert.Contains(t, got, "no quote for NIFTY", "the broker's underlying failure must survive wrapping")
}
