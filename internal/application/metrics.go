package application

import "sync/atomic"

// VerificationMetrics are the process-wide self-verification counters.
// They only grow during normal operation; Reset exists for explicit operator
// action. An injected instance replaces the module-level registry the
// original design used, so tests get isolated counters.
type VerificationMetrics struct {
	Checked    atomic.Int64
	Passed     atomic.Int64
	Failed     atomic.Int64
	RoutedHITL atomic.Int64
}

func (m *VerificationMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"checked":     m.Checked.Load(),
		"passed":      m.Passed.Load(),
		"failed":      m.Failed.Load(),
		"routed_hitl": m.RoutedHITL.Load(),
	}
}

func (m *VerificationMetrics) Reset() {
	m.Checked.Store(0)
	m.Passed.Store(0)
	m.Failed.Store(0)
	m.RoutedHITL.Store(0)
}

// PublisherMetrics track staging-side audit signals.
type PublisherMetrics struct {
	Staged               atomic.Int64
	LegacyWriteViolation atomic.Int64
}

func (m *PublisherMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"staged":                  m.Staged.Load(),
		"legacy_write_violations": m.LegacyWriteViolation.Load(),
	}
}

// RelayMetrics track outbox drain outcomes across all relay invocations.
type RelayMetrics struct {
	Published    atomic.Int64
	Failed       atomic.Int64
	DeadLettered atomic.Int64
}

func (m *RelayMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"published":     m.Published.Load(),
		"failed":        m.Failed.Load(),
		"dead_lettered": m.DeadLettered.Load(),
	}
}
