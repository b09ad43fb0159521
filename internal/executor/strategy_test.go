package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		action models.QuickAction
		mode   models.TradeMode
		want   Strategy
		err    bool
	}{
		{models.ActionBuy, models.TradeModeDirect, StrategyDirect, false},
		{models.ActionSell, models.TradeModeDirect, StrategyDirect, false},
		{models.ActionBuy, models.TradeModeFutures, StrategyDirect, false},
		{models.ActionBuyCE, models.TradeModeOptions, StrategyReconciledOptions, false},
		{models.ActionSellCE, models.TradeModeOptions, StrategyReconciledOptions, false},
		{models.ActionBuyPE, models.TradeModeOptions, StrategyReconciledOptions, false},
		{models.ActionSellPE, models.TradeModeOptions, StrategyReconciledOptions, false},
		{models.ActionExit, models.TradeModeDirect, StrategyClose, false},
		{models.ActionExit, models.TradeModeOptions, StrategyClose, false},
		{models.ActionExitAll, models.TradeModeOptions, StrategyClose, false},
		// Option actions outside options mode are invalid.
		{models.ActionBuyCE, models.TradeModeDirect, 0, true},
		{models.ActionSellPE, models.TradeModeFutures, 0, true},
		// Plain buy/sell in options mode is invalid: strikes are unresolved.
		{models.ActionBuy, models.TradeModeOptions, 0, true},
	}
	for _, tt := range tests {
		got, err := Classify(tt.action, tt.mode)
		if tt.err {
			assert.ErrorIs(t, err, apperrors.ErrUnsupportedAction, "%s/%s", tt.action, tt.mode)
			continue
		}
		assert.NoError(t, err, "%s/%s", tt.action, tt.mode)
		assert.Equal(t, tt.want, got, "%s/%s", tt.action, tt.mode)
	}
}

func TestOptionIntent(t *testing.T) {
	tests := []struct {
		action models.QuickAction
		right  models.OptionRight
		enter  bool
		ok     bool
	}{
		{models.ActionBuyCE, models.RightCall, true, true},
		{models.ActionSellCE, models.RightCall, false, true},
		{models.ActionBuyPE, models.RightPut, true, true},
		{models.ActionSellPE, models.RightPut, false, true},
		{models.ActionBuy, "", false, false},
		{models.ActionExit, "", false, false},
	}
	for _, tt := range tests {
		right, enter, ok := optionIntent(tt.action)
		assert.Equal(t, tt.ok, ok, string(tt.action))
		if ok {
			assert.Equal(t, tt.right, right, string(tt.action))
			assert.Equal(t, tt.enter, enter, string(tt.action))
		}
	}
}

func TestOrderSideByOperatingMode(t *testing.T) {
	// Buyer mode: BUY_* buys to enter, SELL_* sells to exit.
	assert.Equal(t, models.OrderSideBuy, orderSide(true, models.ModeBuyer))
	assert.Equal(t, models.OrderSideSell, orderSide(false, models.ModeBuyer))
	// Writer mode: BUY_* writes (sells) to enter, SELL_* buys back.
	assert.Equal(t, models.OrderSideSell, orderSide(true, models.ModeWriter))
	assert.Equal(t, models.OrderSideBuy, orderSide(false, models.ModeWriter))
}
