// Package options resolves concrete option contracts from relative strike
// offsets against an option-chain snapshot. All functions are pure; the
// snapshot is built once per chain fetch and shared.
package options

import (
	"math"
	"sort"
	"time"

	"options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// Snapshot is a transient, query-optimized view of one option chain.
type Snapshot struct {
	Underlying string
	Exchange   models.Exchange
	Expiry     time.Time
	Strikes    []float64 // ascending
	Step       float64   // inferred strike step

	contracts map[contractKey]*models.OptionContract
}

type contractKey struct {
	strike float64
	right  models.OptionRight
}

// NewSnapshot builds a Snapshot from a raw chain. Strikes are sorted
// ascending and the strike step inferred from adjacent deltas.
func NewSnapshot(chain *models.OptionChain) (*Snapshot, error) {
	if chain == nil || len(chain.Strikes) == 0 {
		return nil, errors.ErrEmptyChain
	}

	strikes := make([]float64, 0, len(chain.Strikes))
	contracts := make(map[contractKey]*models.OptionContract, len(chain.Strikes)*2)
	for i := range chain.Strikes {
		row := &chain.Strikes[i]
		strikes = append(strikes, row.Strike)
		if row.Call != nil {
			contracts[contractKey{row.Strike, models.RightCall}] = row.Call
		}
		if row.Put != nil {
			contracts[contractKey{row.Strike, models.RightPut}] = row.Put
		}
	}
	sort.Float64s(strikes)

	return &Snapshot{
		Underlying: chain.Underlying,
		Exchange:   chain.Exchange,
		Expiry:     chain.Expiry,
		Strikes:    strikes,
		Step:       InferStrikeStep(strikes),
		contracts:  contracts,
	}, nil
}

// InferStrikeStep returns the most frequent adjacent strike delta. Using the
// mode rather than the minimum tolerates gaps from illiquid strikes.
func InferStrikeStep(strikes []float64) float64 {
	if len(strikes) < 2 {
		return 0
	}
	counts := make(map[float64]int)
	for i := 1; i < len(strikes); i++ {
		delta := math.Round((strikes[i]-strikes[i-1])*100) / 100
		if delta > 0 {
			counts[delta]++
		}
	}
	var step float64
	best := 0
	for delta, n := range counts {
		// On equal frequency prefer the smaller delta, keeping the result
		// stable regardless of map iteration order.
		if n > best || (n == best && (step == 0 || delta < step)) {
			best = n
			step = delta
		}
	}
	return step
}

// ATMIndex returns the index of the strike minimizing |strike - spot|.
// When spot is exactly equidistant between two strikes the lower one wins;
// the rule is arbitrary but must stay stable across calls.
func (s *Snapshot) ATMIndex(spot float64) int {
	idx := sort.SearchFloat64s(s.Strikes, spot)
	if idx == 0 {
		return 0
	}
	if idx >= len(s.Strikes) {
		return len(s.Strikes) - 1
	}
	below := s.Strikes[idx-1]
	above := s.Strikes[idx]
	if spot-below <= above-spot {
		return idx - 1
	}
	return idx
}

// ResolveStrike maps spot + offset + right to a chain strike. ITM moves in
// the direction that increases intrinsic value for the right (calls: lower
// strikes; puts: higher strikes); the result is clamped to the chain range.
func (s *Snapshot) ResolveStrike(spot float64, offset models.StrikeOffset, right models.OptionRight) (float64, error) {
	if len(s.Strikes) == 0 {
		return 0, errors.ErrEmptyChain
	}
	steps, ok := offset.Steps()
	if !ok {
		return 0, errors.NewValidationError("offset", string(offset), "unknown strike offset")
	}

	idx := s.ATMIndex(spot)

	// Steps() is negative toward ITM. For calls ITM means lower strikes, so
	// the chain index moves with the sign; for puts the direction flips.
	move := steps
	if right == models.RightPut {
		move = -steps
	}

	idx += move
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Strikes) {
		idx = len(s.Strikes) - 1
	}
	return s.Strikes[idx], nil
}

// ResolveSymbol returns the listed contract at (strike, right). The symbol is
// never synthesized: an unlisted strike is ErrContractNotFound.
func (s *Snapshot) ResolveSymbol(strike float64, right models.OptionRight) (*models.ContractRef, error) {
	c, ok := s.contracts[contractKey{strike, right}]
	if !ok {
		return nil, errors.ErrContractNotFound
	}
	return &models.ContractRef{
		Symbol:     c.Symbol,
		Exchange:   s.Exchange,
		Underlying: s.Underlying,
		Expiry:     s.Expiry,
		Right:      right,
		Strike:     strike,
		LotSize:    c.LotSize,
	}, nil
}

// Resolve combines strike and symbol resolution in one call.
func (s *Snapshot) Resolve(spot float64, offset models.StrikeOffset, right models.OptionRight) (*models.ContractRef, error) {
	strike, err := s.ResolveStrike(spot, offset, right)
	if err != nil {
		return nil, err
	}
	return s.ResolveSymbol(strike, right)
}
