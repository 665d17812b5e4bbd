package domain

import "time"

// VerificationDecision is the outcome class of one self-verification run.
type VerificationDecision string

const (
	DecisionSkip      VerificationDecision = "SKIP"
	DecisionPass      VerificationDecision = "PASS"
	DecisionFailRoute VerificationDecision = "FAIL_ROUTE"
)

// VerificationOutcome is the value object produced for every submission
// evaluation. It is never persisted on its own; it travels embedded in the
// submission events.
type VerificationOutcome struct {
	Sampled     bool
	RiskLevel   string
	Confidence  float64
	Passed      bool
	Decision    VerificationDecision
	RoutedQueue string
	CheckedAt   time.Time
}

// Map renders the outcome as the generic payload shape event consumers see.
func (o VerificationOutcome) Map() map[string]any {
	m := map[string]any{
		"sampled":    o.Sampled,
		"risk_level": o.RiskLevel,
		"confidence": o.Confidence,
		"passed":     o.Passed,
		"decision":   string(o.Decision),
		"checked_at": o.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.RoutedQueue != "" {
		m["routed_queue"] = o.RoutedQueue
	}
	return m
}
