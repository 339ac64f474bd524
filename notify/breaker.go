package notify

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState string

const (
	// BreakerClosed means deliveries pass through normally
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means deliveries fail immediately
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means one trial delivery is allowed
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned while the mail provider is considered down
var ErrBreakerOpen = errors.New("email circuit breaker is open")

// Breaker stops hammering the mail provider after consecutive failures.
type Breaker struct {
	maxFailures uint32
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures uint32
	openedAt time.Time
	probing  bool
}

// NewBreaker opens after maxFailures consecutive failures and allows a trial delivery after cooldown.
func NewBreaker(maxFailures uint32, cooldown time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		state:       BreakerClosed,
	}
}

// Allow reports whether a delivery may be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure and returns the resulting state.
func (b *Breaker) RecordFailure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
	return b.state
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
