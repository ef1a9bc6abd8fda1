// Package resilience provides a circuit breaker used to stop hammering
// a device that is consistently failing, giving it a cooldown window
// before the sequencer tries it again.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/lithium-go/astroseq/core"
)

// CircuitState is one of Closed (calls pass through), Open (calls are
// rejected immediately), or HalfOpen (every call passes through as a
// probe until enough consecutive successes close the breaker or one
// failure reopens it).
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name string

	// FailureThreshold is the number of consecutive failures, while
	// Closed, that trips the breaker to Open.
	FailureThreshold int

	// SleepWindow is how long the breaker stays Open before allowing a
	// HalfOpen probe.
	SleepWindow time.Duration

	// HalfOpenProbes is how many consecutive successful probes in
	// HalfOpen are required to close the breaker again. A single
	// failed probe reopens it immediately.
	HalfOpenProbes int

	Logger core.Logger
}

// CircuitBreaker guards calls to a single unreliable dependency (here,
// one device). It is safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	sleepWindow      time.Duration
	halfOpenProbes   int
	logger           core.Logger

	state            CircuitState
	consecutiveFails int
	halfOpenSuccess  int
	openedAt         time.Time
}

// NewCircuitBreaker creates a Closed CircuitBreaker. Zero-value fields
// in cfg are replaced with conservative defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		sleepWindow:      cfg.SleepWindow,
		halfOpenProbes:   cfg.HalfOpenProbes,
		logger:           cfg.Logger,
		state:            StateClosed,
	}
}

// State returns the breaker's current state, transitioning Open->HalfOpen
// first if the sleep window has elapsed.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeEnterHalfOpenLocked()
	return b.state
}

func (b *CircuitBreaker) maybeEnterHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.sleepWindow {
		b.transitionLocked(StateHalfOpen)
		b.halfOpenSuccess = 0
	}
}

func (b *CircuitBreaker) transitionLocked(to CircuitState) {
	from := b.state
	b.state = to
	if to == StateOpen {
		b.openedAt = time.Now()
	}
	if from != to {
		b.logger.Info("circuit breaker state change", map[string]interface{}{
			"breaker": b.name, "from": from.String(), "to": to.String(),
		})
	}
}

// Execute runs fn if the breaker admits it, and records the outcome.
// It returns core.ErrDevice (classified KindDevice) without calling fn
// when the breaker is Open.
func (b *CircuitBreaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.maybeEnterHalfOpenLocked()
	if b.state == StateOpen {
		b.mu.Unlock()
		return &core.SequencerError{Op: "CircuitBreaker.Execute", Kind: core.KindDevice, ID: b.name, Err: fmt.Errorf("%w: circuit open for %s", core.ErrDevice, b.name)}
	}
	state := b.state
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.consecutiveFails++
		if state == StateHalfOpen || b.consecutiveFails >= b.failureThreshold {
			b.transitionLocked(StateOpen)
			b.consecutiveFails = 0
		}
		return err
	}

	b.consecutiveFails = 0
	if state == StateHalfOpen {
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.halfOpenProbes {
			b.transitionLocked(StateClosed)
		}
	}
	return nil
}
