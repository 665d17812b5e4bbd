package application

import (
	"sync"
	"time"
)

// Breaker states.
const (
	BreakerClosed   = "CLOSED"
	BreakerOpen     = "OPEN"
	BreakerHalfOpen = "HALF_OPEN"
)

// CircuitBreaker is an explicit stateful guard composed around a call site.
// CLOSED admits everything; OPEN rejects until the cooldown elapses; the
// first request after cooldown runs as a HALF_OPEN probe whose outcome
// decides between closing again and re-opening.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            string
	failures         int
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	probeInFlight    bool
	nowFn            func() time.Time
}

func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		nowFn:            func() time.Time { return time.Now().UTC() },
	}
}

// AllowRequest reports whether the call may proceed. Callers that get true
// must report the outcome via RecordSuccess or RecordFailure.
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.nowFn().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	default: // HALF_OPEN: only one probe at a time
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeInFlight = false
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = b.nowFn()
		return
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.nowFn()
	}
}

// State returns the current breaker state for observability.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
