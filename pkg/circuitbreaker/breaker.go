// Package circuitbreaker stops calls to a failing dependency for a cool-down period.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/speedrun-hq/payflow/pkg/logger"
)

// ErrOpen is returned by Do while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

// State is a snapshot of the breaker
type State struct {
	Enabled       bool          `json:"enabled"`
	Open          bool          `json:"open"`
	FailureCount  int           `json:"failure_count"`
	FailThreshold int           `json:"fail_threshold"`
	FailureWindow time.Duration `json:"failure_window"`
	LastFailure   time.Time     `json:"last_failure"`
	TripTime      time.Time     `json:"trip_time"`
}

// CircuitBreaker counts failures within a window and trips at the threshold
type CircuitBreaker struct {
	name          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, enabled bool, threshold int, window, resetTimeout time.Duration, logger logger.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:          name,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		now:           time.Now,
		logger:        logger,
	}
}

// Do runs fn unless the circuit is open, recording its result
func (cb *CircuitBreaker) Do(fn func() error) error {
	if cb.IsOpen() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordFailure records a failure and reports whether the circuit is open afterwards
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.logger.Notice("Circuit breaker %s: retrying after reset timeout", cb.name)
		cb.tripped = false
		cb.failureCount = 0
	}

	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.Warn("Circuit breaker %s tripped: %d failures in %v", cb.name, cb.failureCount, cb.failureWindow)
		return true
	}
	return false
}

// RecordSuccess clears the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
}

// IsOpen reports whether calls are currently refused. An open circuit
// half-opens once the reset timeout has passed.
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}
	return cb.tripped
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	cb.logger.Info("Circuit breaker %s reset", cb.name)
}

// State returns a snapshot of the breaker
func (cb *CircuitBreaker) State() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Enabled:       cb.enabled,
		Open:          open,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.failThreshold,
		FailureWindow: cb.failureWindow,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
}
