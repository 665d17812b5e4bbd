package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
)

const (
	defaultSampleRatio         = 0.2
	defaultConfidenceThreshold = 0.8
	riskLevelHigh              = "high"
)

// SelfVerificationHarness decides per submission whether automated output
// needs human review. Sampling is deterministic over the work item id and the
// canonical payload so an audit can replay the exact decision; there is no
// randomness anywhere in this path.
type SelfVerificationHarness struct {
	sampleRatio         float64
	confidenceThreshold float64
	metrics             *VerificationMetrics
	nowFn               func() time.Time
}

func NewSelfVerificationHarness(sampleRatio, confidenceThreshold float64, metrics *VerificationMetrics) *SelfVerificationHarness {
	if sampleRatio <= 0 || sampleRatio > 1 {
		sampleRatio = defaultSampleRatio
	}
	if confidenceThreshold <= 0 || confidenceThreshold > 1 {
		confidenceThreshold = defaultConfidenceThreshold
	}
	if metrics == nil {
		metrics = &VerificationMetrics{}
	}
	return &SelfVerificationHarness{
		sampleRatio:         sampleRatio,
		confidenceThreshold: confidenceThreshold,
		metrics:             metrics,
		nowFn:               func() time.Time { return time.Now().UTC() },
	}
}

// verificationConfig is the dict-shaped self_verification block read from the
// submission payload. It stays map-backed at the boundary so new fields do
// not require recompiling producers.
type verificationConfig struct {
	present    bool
	enabled    bool
	riskLevel  string
	confidence float64
	forceFail  bool
}

// Evaluate runs the sampling + pass/fail policy for one submission.
func (h *SelfVerificationHarness) Evaluate(workItemID string, payload map[string]any, mode domain.AgentMode) domain.VerificationOutcome {
	cfg := readVerificationConfig(payload)

	// Cheapest path: nothing asked for verification, no counters touched.
	if !cfg.present && mode != domain.AgentModeSelfVerify {
		return domain.VerificationOutcome{
			Sampled:   false,
			Passed:    true,
			Decision:  domain.DecisionSkip,
			CheckedAt: h.nowFn(),
		}
	}
	if cfg.present && !cfg.enabled {
		return domain.VerificationOutcome{
			Sampled:   false,
			RiskLevel: cfg.riskLevel,
			Passed:    true,
			Decision:  domain.DecisionSkip,
			CheckedAt: h.nowFn(),
		}
	}

	sampled := cfg.riskLevel == riskLevelHigh || h.sampleValue(workItemID, payload) < h.sampleRatio
	if !sampled {
		return domain.VerificationOutcome{
			Sampled:    false,
			RiskLevel:  cfg.riskLevel,
			Confidence: cfg.confidence,
			Passed:     true,
			Decision:   domain.DecisionSkip,
			CheckedAt:  h.nowFn(),
		}
	}

	h.metrics.Checked.Add(1)
	passed := cfg.confidence >= h.confidenceThreshold && !cfg.forceFail
	if passed {
		h.metrics.Passed.Add(1)
		return domain.VerificationOutcome{
			Sampled:    true,
			RiskLevel:  cfg.riskLevel,
			Confidence: cfg.confidence,
			Passed:     true,
			Decision:   domain.DecisionPass,
			CheckedAt:  h.nowFn(),
		}
	}

	h.metrics.Failed.Add(1)
	h.metrics.RoutedHITL.Add(1)
	return domain.VerificationOutcome{
		Sampled:     true,
		RiskLevel:   cfg.riskLevel,
		Confidence:  cfg.confidence,
		Passed:      false,
		Decision:    domain.DecisionFailRoute,
		RoutedQueue: domain.HITLQueue,
		CheckedAt:   h.nowFn(),
	}
}

// sampleValue maps (workItemID, payload) to [0,1) deterministically: SHA-256
// over the id plus the canonical JSON form of the payload (encoding/json
// marshals map keys sorted, which is the canonical serialization here), first
// 8 hex chars as a 32-bit integer scaled by 0xFFFFFFFF.
func (h *SelfVerificationHarness) sampleValue(workItemID string, payload map[string]any) float64 {
	canonical, err := json.Marshal(payload)
	if err != nil {
		// Unserializable payloads still need a stable decision; fall back to
		// hashing the id alone.
		canonical = nil
	}
	sum := sha256.Sum256(append([]byte(workItemID), canonical...))
	hexDigest := hex.EncodeToString(sum[:])
	n, err := strconv.ParseUint(hexDigest[:8], 16, 32)
	if err != nil {
		return 1
	}
	return float64(n) / float64(0xFFFFFFFF)
}

func readVerificationConfig(payload map[string]any) verificationConfig {
	cfg := verificationConfig{}
	raw, ok := payload["self_verification"]
	if !ok {
		return cfg
	}
	block, ok := raw.(map[string]any)
	if !ok {
		return cfg
	}
	cfg.present = true
	cfg.enabled = asBool(block["enabled"])
	if s, ok := block["risk_level"].(string); ok {
		cfg.riskLevel = strings.ToLower(strings.TrimSpace(s))
	}
	cfg.confidence = asFloat(block["confidence"])
	cfg.forceFail = asBool(block["force_fail"])
	return cfg
}

func asBool(raw any) bool {
	b, ok := raw.(bool)
	return ok && b
}

func asFloat(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
