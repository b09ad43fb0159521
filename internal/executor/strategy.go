package executor

import (
	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// Strategy is the closed set of quick-order execution strategies.
type Strategy int

const (
	// StrategyDirect submits a single order on the leg's own symbol (or a
	// pre-validated futures contract).
	StrategyDirect Strategy = iota + 1
	// StrategyReconciledOptions resolves a contract from the chain and
	// closes opposite-side exposure before opening.
	StrategyReconciledOptions
	// StrategyClose flattens existing positions.
	StrategyClose
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyReconciledOptions:
		return "reconciled_options"
	case StrategyClose:
		return "close"
	}
	return "unknown"
}

// Classify maps (action, trade mode) to a strategy. Unsupported combinations
// are rejected here, before any side effect.
func Classify(action models.QuickAction, mode models.TradeMode) (Strategy, error) {
	switch action {
	case models.ActionExit, models.ActionExitAll:
		return StrategyClose, nil
	case models.ActionBuyCE, models.ActionSellCE, models.ActionBuyPE, models.ActionSellPE:
		if mode == models.TradeModeOptions {
			return StrategyReconciledOptions, nil
		}
	case models.ActionBuy, models.ActionSell:
		if mode == models.TradeModeDirect || mode == models.TradeModeFutures {
			return StrategyDirect, nil
		}
	}
	return 0, apperrors.Wrapf(apperrors.ErrUnsupportedAction, "action %s in mode %s", action, mode)
}

// optionIntent decodes an options action into the right it trades and whether
// it enters or exits exposure.
func optionIntent(action models.QuickAction) (right models.OptionRight, enter bool, ok bool) {
	switch action {
	case models.ActionBuyCE:
		return models.RightCall, true, true
	case models.ActionSellCE:
		return models.RightCall, false, true
	case models.ActionBuyPE:
		return models.RightPut, true, true
	case models.ActionSellPE:
		return models.RightPut, false, true
	}
	return "", false, false
}

// orderSide resolves the wire-level side for an options action under an
// operating mode. Buyer mode enters long premium and exits by selling;
// Writer mode enters short premium and exits by buying back.
func orderSide(enter bool, mode models.OperatingMode) models.OrderSide {
	entrySide := models.OrderSideBuy
	if mode == models.ModeWriter {
		entrySide = models.OrderSideSell
	}
	if enter {
		return entrySide
	}
	return entrySide.Opposite()
}
