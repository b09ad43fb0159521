package risk

import (
	"options-terminal/internal/models"
)

// verdict is the outcome of evaluating one leg for one tick. At most one
// trigger fires per leg per tick; the first satisfied condition wins.
type verdict struct {
	Trigger      models.TriggerKind // empty when nothing fired
	TriggerPrice float64

	// Trailing state to persist when it changed, trigger or not.
	TrailChanged bool
	Stop         float64
	Armed        bool
	LastTrail    float64
}

// evaluate runs the per-leg state machine: target, then stop, then trailing,
// short-circuiting on the first satisfied condition.
func evaluate(leg *models.Leg) verdict {
	price := leg.LastPrice

	if leg.TargetPrice > 0 && targetReached(leg, price) {
		return verdict{Trigger: models.TriggerTarget, TriggerPrice: price}
	}

	if leg.StopPrice > 0 && stopBreached(leg, price, leg.StopPrice) {
		return verdict{Trigger: models.TriggerStop, TriggerPrice: price}
	}

	if leg.Trailing.Enabled {
		return evaluateTrailing(leg, price)
	}

	return verdict{}
}

func targetReached(leg *models.Leg, price float64) bool {
	if leg.IsLong() {
		return price >= leg.TargetPrice
	}
	return price <= leg.TargetPrice
}

// stopBreached uses the same inequality for hard and trailing stops.
func stopBreached(leg *models.Leg, price, stop float64) bool {
	if leg.IsLong() {
		return price <= stop
	}
	return price >= stop
}

// evaluateTrailing arms and ratchets the trailing stop, then checks breach.
// The stop only ever improves: a recompute that would loosen it is discarded,
// regardless of evaluation order or retries.
func evaluateTrailing(leg *models.Leg, price float64) verdict {
	best := leg.BestFavorablePrice
	if best == 0 {
		return verdict{}
	}

	// Per-unit profit at the best favorable excursion.
	bestProfit := best - leg.AvgEntryPrice
	if !leg.IsLong() {
		bestProfit = leg.AvgEntryPrice - best
	}

	v := verdict{
		Stop:      leg.TrailingStopPrice,
		Armed:     leg.TrailingArmed,
		LastTrail: leg.LastTrailPrice,
	}

	if !v.Armed {
		if bestProfit < leg.Trailing.ArmAfter {
			return verdict{}
		}
		v.Armed = true
		v.Stop = initialStop(leg, best)
		v.Stop = breakevenClamp(leg, v.Stop, bestProfit)
		v.LastTrail = best
		v.TrailChanged = true
	} else if favorableMove(leg, best, v.LastTrail) >= leg.Trailing.Step && leg.Trailing.Step > 0 {
		candidate := initialStop(leg, best)
		candidate = breakevenClamp(leg, candidate, bestProfit)
		if improves(leg, candidate, v.Stop) {
			v.Stop = candidate
			v.TrailChanged = true
		}
		// The trail point advances even when the ratchet rejects the
		// candidate, so the next recompute measures from here.
		v.LastTrail = best
		v.TrailChanged = true
	}

	if v.Stop > 0 && stopBreached(leg, price, v.Stop) {
		v.Trigger = models.TriggerTrailingStop
		v.TriggerPrice = price
	}
	return v
}

// initialStop places the stop one trail distance behind the best price.
func initialStop(leg *models.Leg, best float64) float64 {
	if leg.IsLong() {
		return best - leg.Trailing.TrailDistance
	}
	return best + leg.Trailing.TrailDistance
}

// breakevenClamp pins the stop at entry once profit crosses the breakeven
// threshold. It reapplies on every recompute.
func breakevenClamp(leg *models.Leg, stop, bestProfit float64) float64 {
	if leg.Trailing.BreakevenAfter <= 0 || bestProfit < leg.Trailing.BreakevenAfter {
		return stop
	}
	if leg.IsLong() {
		if stop < leg.AvgEntryPrice {
			return leg.AvgEntryPrice
		}
	} else if stop > leg.AvgEntryPrice {
		return leg.AvgEntryPrice
	}
	return stop
}

func favorableMove(leg *models.Leg, best, lastTrail float64) float64 {
	if leg.IsLong() {
		return best - lastTrail
	}
	return lastTrail - best
}

func improves(leg *models.Leg, candidate, current float64) bool {
	if current == 0 {
		return true
	}
	if leg.IsLong() {
		return candidate > current
	}
	return candidate < current
}
