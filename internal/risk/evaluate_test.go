package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"options-terminal/internal/models"
)

func longLeg(entry, last float64) *models.Leg {
	return &models.Leg{
		ID:            "leg-long",
		NetQty:        75,
		AvgEntryPrice: entry,
		LastPrice:     last,
		RiskEnabled:   true,
	}
}

func shortLeg(entry, last float64) *models.Leg {
	return &models.Leg{
		ID:            "leg-short",
		NetQty:        -75,
		AvgEntryPrice: entry,
		LastPrice:     last,
		RiskEnabled:   true,
	}
}

func TestTargetLong(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		fired bool
	}{
		{"below target", 119.95, false},
		{"exactly at target", 120, true},
		{"beyond target", 125, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := longLeg(100, tt.price)
			leg.TargetPrice = 120
			v := evaluate(leg)
			if tt.fired {
				assert.Equal(t, models.TriggerTarget, v.Trigger)
				assert.Equal(t, tt.price, v.TriggerPrice)
			} else {
				assert.Empty(t, v.Trigger)
			}
		})
	}
}

func TestTargetShort(t *testing.T) {
	leg := shortLeg(100, 80)
	leg.TargetPrice = 80
	v := evaluate(leg)
	assert.Equal(t, models.TriggerTarget, v.Trigger)

	leg = shortLeg(100, 80.05)
	leg.TargetPrice = 80
	assert.Empty(t, evaluate(leg).Trigger)
}

func TestStopLong(t *testing.T) {
	leg := longLeg(100, 90)
	leg.StopPrice = 90
	assert.Equal(t, models.TriggerStop, evaluate(leg).Trigger)

	leg = longLeg(100, 90.05)
	leg.StopPrice = 90
	assert.Empty(t, evaluate(leg).Trigger)
}

func TestStopShort(t *testing.T) {
	tests := []struct {
		price float64
		fired bool
	}{
		{110, true},
		{111, true},
		{109.95, false},
	}
	for _, tt := range tests {
		leg := shortLeg(100, tt.price)
		leg.StopPrice = 110
		v := evaluate(leg)
		if tt.fired {
			assert.Equal(t, models.TriggerStop, v.Trigger, "price %.2f", tt.price)
		} else {
			assert.Empty(t, v.Trigger, "price %.2f", tt.price)
		}
	}
}

func TestTargetWinsOverStop(t *testing.T) {
	// Degenerate configuration where both rules read as satisfied: the
	// fixed order makes the target win.
	leg := longLeg(100, 120)
	leg.TargetPrice = 120
	leg.StopPrice = 130
	assert.Equal(t, models.TriggerTarget, evaluate(leg).Trigger)
}

func TestUnsetRulesNeverFire(t *testing.T) {
	leg := longLeg(100, 1)
	assert.Empty(t, evaluate(leg).Trigger)

	leg = longLeg(100, 100000)
	assert.Empty(t, evaluate(leg).Trigger)
}

func TestTrailingArmsAtThreshold(t *testing.T) {
	leg := longLeg(100, 109)
	leg.BestFavorablePrice = 110
	leg.LastTrailPrice = 100
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.True(t, v.Armed)
	assert.True(t, v.TrailChanged)
	assert.Equal(t, 105.0, v.Stop)
	assert.Equal(t, 110.0, v.LastTrail)
	assert.Empty(t, v.Trigger)
}

func TestTrailingBelowArmThresholdDoesNothing(t *testing.T) {
	leg := longLeg(100, 108)
	leg.BestFavorablePrice = 109.95
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.False(t, v.Armed)
	assert.False(t, v.TrailChanged)
	assert.Empty(t, v.Trigger)
}

func TestTrailingRecomputeRatchets(t *testing.T) {
	leg := longLeg(100, 114)
	leg.BestFavorablePrice = 115
	leg.LastTrailPrice = 110
	leg.TrailingArmed = true
	leg.TrailingStopPrice = 105
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.True(t, v.TrailChanged)
	assert.Equal(t, 110.0, v.Stop)
	assert.Equal(t, 115.0, v.LastTrail)
}

func TestTrailingRecomputeGatedByStep(t *testing.T) {
	leg := longLeg(100, 110.4)
	leg.BestFavorablePrice = 110.5
	leg.LastTrailPrice = 110
	leg.TrailingArmed = true
	leg.TrailingStopPrice = 105
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.False(t, v.TrailChanged)
	assert.Equal(t, 105.0, v.Stop)
}

func TestTrailingStopNeverLoosens(t *testing.T) {
	// The stop was tightened by an earlier breakeven clamp; a recompute
	// from a lower best must not push it back down.
	leg := longLeg(100, 111)
	leg.BestFavorablePrice = 112
	leg.LastTrailPrice = 110
	leg.TrailingArmed = true
	leg.TrailingStopPrice = 109
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	// Candidate 112-5=107 loses to the current 109; the trail point still
	// advances.
	assert.True(t, v.TrailChanged)
	assert.Equal(t, 109.0, v.Stop)
	assert.Equal(t, 112.0, v.LastTrail)
}

func TestTrailingBreakevenClamp(t *testing.T) {
	leg := longLeg(100, 107)
	leg.BestFavorablePrice = 108
	leg.LastTrailPrice = 100
	leg.Trailing = models.TrailingConfig{
		Enabled: true, TrailDistance: 10, Step: 1, ArmAfter: 5, BreakevenAfter: 8,
	}

	v := evaluate(leg)
	assert.True(t, v.Armed)
	// Raw stop 108-10=98 is below entry; the clamp lifts it to entry.
	assert.Equal(t, 100.0, v.Stop)
}

func TestTrailingBreachShortPosition(t *testing.T) {
	leg := shortLeg(100, 88)
	leg.BestFavorablePrice = 85
	leg.LastTrailPrice = 85
	leg.TrailingArmed = true
	leg.TrailingStopPrice = 88
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 3, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.Equal(t, models.TriggerTrailingStop, v.Trigger)
	assert.Equal(t, 88.0, v.TriggerPrice)
}

func TestTrailingArmAndBreachSameTick(t *testing.T) {
	// Best excursion arms the stop; the current price has already fallen
	// through it.
	leg := longLeg(100, 104)
	leg.BestFavorablePrice = 110
	leg.LastTrailPrice = 100
	leg.Trailing = models.TrailingConfig{Enabled: true, TrailDistance: 5, Step: 1, ArmAfter: 10}

	v := evaluate(leg)
	assert.True(t, v.Armed)
	assert.Equal(t, 105.0, v.Stop)
	assert.Equal(t, models.TriggerTrailingStop, v.Trigger)
}
