// Package resilience guards calls to external dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
)

// State represents the state of a circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// ErrOpen is returned by Allow while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

func (s State) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	}
	return 0
}

// Breaker opens after threshold consecutive failures and lets a single probe
// through once cooldown has elapsed. Zero threshold disables it.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     StateClosed,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return b
}

// Allow reports whether a call may proceed
func (b *Breaker) Allow() error {
	if b.threshold <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

// Success records a healthy call and closes the circuit
func (b *Breaker) Success() {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		logger.Info("Circuit breaker closed", zap.String("breaker", b.name))
		b.setState(StateClosed)
	}
}

// Failure records a failed call. A failed probe reopens the circuit.
func (b *Breaker) Failure() {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		if b.state != StateOpen {
			logger.Warn("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.Int("consecutive_failures", b.failures))
		}
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(s State) {
	b.state = s
	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(s.gauge())
}
