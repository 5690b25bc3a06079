package poller

import (
	"fmt"
	"sync"
)

// BreakerState represents the state of the failure breaker
type BreakerState string

const (
	// BreakerClosed lets polling continue
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means polling gave up
	BreakerOpen BreakerState = "open"
)

// Breaker counts consecutive poll failures and opens once a threshold is
// reached. Any success closes it again.
type Breaker struct {
	mu       sync.RWMutex
	failures int
	lastErr  error
	state    BreakerState

	failureThreshold int
}

// NewBreaker creates a breaker that opens after threshold consecutive failures
func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: threshold,
	}
}

// RecordSuccess resets the failure count
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerClosed {
		b.failures = 0
		b.lastErr = nil
	}
}

// RecordFailure records a failed poll. It returns an error wrapping err once
// the breaker is open.
func (b *Breaker) RecordFailure(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastErr = err

	if b.failures >= b.failureThreshold {
		b.state = BreakerOpen
		return fmt.Errorf("giving up after %d consecutive failures: %w", b.failures, err)
	}

	return nil
}

// Failures returns the current consecutive failure count
func (b *Breaker) Failures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}

// GetState returns the current state of the breaker
func (b *Breaker) GetState() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset returns the breaker to the closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.lastErr = nil
}

// LastError returns the most recent failure, or nil after a success
func (b *Breaker) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}
