package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-terminal/internal/config"
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
	"options-terminal/internal/store"
)

func newTestLedger() (*Ledger, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return New(s, config.DefaultLegDefaults(), zerolog.Nop()), s
}

func fill(side models.OrderSide, qty int, price float64) Fill {
	return Fill{
		InstanceID: "inst-1",
		Symbol:     "NIFTY25O3024900CE",
		Exchange:   models.NFO,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Underlying: "NIFTY",
		Right:      models.RightCall,
		Strike:     24900,
		Kind:       models.KindOption,
		Product:    models.ProductNRML,
		LotSize:    75,
	}
}

func TestApplyFillCreatesLeg(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	leg, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)

	assert.NotEmpty(t, leg.ID)
	assert.Equal(t, 75, leg.NetQty)
	assert.Equal(t, 100.0, leg.AvgEntryPrice)
	assert.Equal(t, 100.0, leg.LastPrice)
	assert.Equal(t, 100.0, leg.BestFavorablePrice)
	assert.Equal(t, models.ScopeLeg, leg.Scope)
	assert.Equal(t, 75, leg.LotSize)
}

func TestApplyFillAveragesEntry(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)
	leg, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 110))
	require.NoError(t, err)

	assert.Equal(t, 150, leg.NetQty)
	assert.InDelta(t, 105.0, leg.AvgEntryPrice, 1e-9)
}

func TestApplyFillPartialCloseAdjustsBasis(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 150, 100))
	require.NoError(t, err)
	leg, err := l.ApplyFill(ctx, fill(models.OrderSideSell, 75, 120))
	require.NoError(t, err)

	assert.Equal(t, 75, leg.NetQty)
	// (150*100 - 75*120) / 75 = 80: net notional accounting realizes the
	// profit into the remaining position's basis.
	assert.InDelta(t, 80.0, leg.AvgEntryPrice, 1e-9)
}

func TestApplyFillShortEntry(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	leg, err := l.ApplyFill(ctx, fill(models.OrderSideSell, 75, 95))
	require.NoError(t, err)

	assert.Equal(t, -75, leg.NetQty)
	assert.InDelta(t, 95.0, leg.AvgEntryPrice, 1e-9)
	assert.False(t, leg.IsLong())
}

func TestApplyFillFlatLeavesEntryUntouched(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)
	leg, err := l.ApplyFill(ctx, fill(models.OrderSideSell, 75, 110))
	require.NoError(t, err)

	assert.Equal(t, 0, leg.NetQty)
	// AvgEntryPrice is only defined for non-zero quantity; a flat leg keeps
	// the last computed value rather than dividing by zero.
	assert.InDelta(t, 100.0, leg.AvgEntryPrice, 1e-9)
}

func TestDirectionFlipResetsExcursion(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)
	require.NoError(t, l.ApplyTick(ctx, "inst-1", "NIFTY25O3024900CE", models.NFO, 130))

	// Sell through to a net short: best favorable must restart at the flip
	// price, not carry the long side's high.
	leg, err := l.ApplyFill(ctx, fill(models.OrderSideSell, 150, 120))
	require.NoError(t, err)

	assert.Equal(t, -75, leg.NetQty)
	assert.Equal(t, 120.0, leg.BestFavorablePrice)
	assert.Equal(t, 120.0, leg.LastTrailPrice)
	assert.False(t, leg.TrailingArmed)
	assert.Zero(t, leg.TrailingStopPrice)
}

func TestFlatToOpenResetsExcursion(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)
	require.NoError(t, l.ApplyTick(ctx, "inst-1", "NIFTY25O3024900CE", models.NFO, 140))
	_, err = l.ApplyFill(ctx, fill(models.OrderSideSell, 75, 135))
	require.NoError(t, err)

	leg, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 90))
	require.NoError(t, err)

	assert.Equal(t, 75, leg.NetQty)
	assert.Equal(t, 90.0, leg.BestFavorablePrice)
}

func TestApplyTickTracksBestFavorable(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()

	created, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)

	for _, price := range []float64{105, 112, 108, 111} {
		require.NoError(t, l.ApplyTick(ctx, "inst-1", "NIFTY25O3024900CE", models.NFO, price))
	}

	leg, err := s.GetLeg(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 111.0, leg.LastPrice)
	assert.Equal(t, 112.0, leg.BestFavorablePrice)
}

func TestApplyTickShortTracksLow(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()

	created, err := l.ApplyFill(ctx, fill(models.OrderSideSell, 75, 95))
	require.NoError(t, err)

	for _, price := range []float64{90, 84, 88} {
		require.NoError(t, l.ApplyTick(ctx, "inst-1", "NIFTY25O3024900CE", models.NFO, price))
	}

	leg, err := s.GetLeg(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 88.0, leg.LastPrice)
	assert.Equal(t, 84.0, leg.BestFavorablePrice)
}

func TestApplyTickUnknownLeg(t *testing.T) {
	l, _ := newTestLedger()
	err := l.ApplyTick(context.Background(), "inst-1", "UNKNOWN", models.NSE, 100)
	assert.ErrorIs(t, err, apperrors.ErrLegNotFound)
}

func TestApplyFillValidation(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 0, 100))
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 0))
	assert.ErrorAs(t, err, &verr)

	err = l.ApplyTick(ctx, "inst-1", "X", models.NSE, -1)
	assert.ErrorAs(t, err, &verr)
}

func TestEnableRiskSnapshotsConfig(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()

	created, err := l.ApplyFill(ctx, fill(models.OrderSideBuy, 75, 100))
	require.NoError(t, err)

	trailing := models.TrailingConfig{Enabled: true, TrailDistance: 5}
	require.NoError(t, l.EnableRisk(ctx, created.ID, 120, 90, trailing, models.ScopeType, false))

	leg, err := s.GetLeg(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, leg.RiskEnabled)
	assert.Equal(t, 120.0, leg.TargetPrice)
	assert.Equal(t, 90.0, leg.StopPrice)
	assert.Equal(t, models.ScopeType, leg.Scope)
	assert.False(t, leg.TrailingArmed)
	assert.Zero(t, leg.TrailingStopPrice)
	// Unset trailing step falls back to the configured default.
	assert.InDelta(t, 0.05, leg.Trailing.Step, 1e-9)
	assert.InDelta(t, 5.0, leg.Trailing.TrailDistance, 1e-9)
}

func TestEnableRiskUnknownLeg(t *testing.T) {
	l, _ := newTestLedger()
	err := l.EnableRisk(context.Background(), "missing", 0, 0, models.TrailingConfig{}, models.ScopeLeg, false)
	assert.ErrorIs(t, err, apperrors.ErrLegNotFound)
}
