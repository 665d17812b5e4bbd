package application

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		if !b.AllowRequest() {
			t.Fatalf("closed breaker must admit request %d", i)
		}
		b.RecordFailure()
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected OPEN after threshold, got %s", b.State())
	}
	if b.AllowRequest() {
		t.Fatalf("open breaker must reject before cooldown")
	}
}

func TestBreakerHalfOpenProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	b := NewCircuitBreaker(1, 30*time.Second)
	b.nowFn = func() time.Time { return now }

	b.AllowRequest()
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	now = now.Add(31 * time.Second)
	if !b.AllowRequest() {
		t.Fatalf("expected probe admission after cooldown")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN during probe, got %s", b.State())
	}
	if b.AllowRequest() {
		t.Fatalf("only one probe may run at a time")
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("successful probe must close, got %s", b.State())
	}
	if !b.AllowRequest() {
		t.Fatalf("closed breaker must admit again")
	}
}

func TestBreakerHalfOpenProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	b := NewCircuitBreaker(1, 10*time.Second)
	b.nowFn = func() time.Time { return now }

	b.AllowRequest()
	b.RecordFailure()

	now = now.Add(11 * time.Second)
	if !b.AllowRequest() {
		t.Fatalf("expected probe admission after cooldown")
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("failed probe must reopen, got %s", b.State())
	}
	if b.AllowRequest() {
		t.Fatalf("reopened breaker must reject until the next cooldown")
	}
}
