// Package resilience isolates broker instance failures so one degraded
// connection cannot slow the rest of a broadcast.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes one breaker.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is successes in half-open before closing
	SuccessThreshold int
	// CoolOff is how long an open breaker rejects before probing
	CoolOff time.Duration
}

// DefaultBreakerConfig returns the standard per-instance settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolOff:          30 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker guarding one broker
// instance's calls.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the cool-off transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

// Allow reports whether a call may proceed, transitioning open breakers to
// half-open after the cool-off.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	if b.state == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) maybeProbe() {
	if b.state == StateOpen && time.Since(b.lastFailure) > b.cfg.CoolOff {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

// Record feeds one call outcome into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = StateClosed
				b.failures = 0
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
	}
}

// Do runs fn behind the breaker.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Set hands out one breaker per instance.
type Set struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet creates a breaker set with shared config.
func NewSet(cfg BreakerConfig) *Set {
	return &Set{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for an instance, creating it on first use.
func (s *Set) For(instanceID string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[instanceID]
	if !ok {
		b = NewBreaker(instanceID, s.cfg)
		s.breakers[instanceID] = b
	}
	return b
}
