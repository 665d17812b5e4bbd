package application

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

// StageParams describe one domain event to be staged for the outbox.
// RequestTenantID is the ambient tenant resolved from the request scope; an
// explicit TenantID always wins over it.
type StageParams struct {
	EventType       string
	AggregateType   string
	AggregateID     string
	TenantID        string
	RequestTenantID string
	Payload         map[string]any
	OccurredAt      time.Time
}

// EventPublisher turns domain events into contract-enforced outbox rows.
// Stage performs no I/O at all: it validates, enriches, and returns the row
// for the repository to persist inside the caller's transaction. Contract
// errors propagate unchanged so the enclosing transaction rolls back.
type EventPublisher struct {
	contracts *domain.ContractRegistry
	metrics   *PublisherMetrics
	logger    *slog.Logger
}

func NewEventPublisher(contracts *domain.ContractRegistry, metrics *PublisherMetrics, logger *slog.Logger) *EventPublisher {
	if metrics == nil {
		metrics = &PublisherMetrics{}
	}
	return &EventPublisher{contracts: contracts, metrics: metrics, logger: logger}
}

// Stage enforces the event contract, runs the legacy-write detector, resolves
// the tenant scope, and returns the PENDING outbox row to co-commit with the
// aggregate mutation.
func (p *EventPublisher) Stage(params StageParams) (ports.OutboxEvent, error) {
	payload := params.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	enriched, err := p.contracts.Enforce(params.EventType, payload, params.AggregateID)
	if err != nil {
		return ports.OutboxEvent{}, err
	}

	if p.isLegacyWrite(params.EventType, params.AggregateType, enriched) {
		p.metrics.LegacyWriteViolation.Add(1)
		enriched["legacy_policy"] = map[string]any{
			"violation":   true,
			"mode":        "flag",
			"detected_at": params.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
		p.logger.Warn("legacy write pattern flagged",
			"module", "events.publisher",
			"layer", "application",
			"operation", "stage_event",
			"outcome", "flagged",
			"event_type", params.EventType,
			"aggregate_type", params.AggregateType,
			"aggregate_id", params.AggregateID,
		)
	}

	tenantID := strings.TrimSpace(params.TenantID)
	if tenantID == "" {
		tenantID = strings.TrimSpace(params.RequestTenantID)
	}
	if tenantID == "" {
		return ports.OutboxEvent{}, domain.ErrTenantRequired
	}

	raw, err := json.Marshal(enriched)
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	p.metrics.Staged.Add(1)
	return ports.OutboxEvent{
		OutboxID:      uuid.New(),
		EventType:     params.EventType,
		AggregateType: params.AggregateType,
		AggregateID:   params.AggregateID,
		TenantID:      tenantID,
		Payload:       raw,
		OccurredAt:    occurredAt,
	}, nil
}

// isLegacyWrite flags writes that still follow retired producer patterns.
// Flagging is audit-only and never blocks publication.
func (p *EventPublisher) isLegacyWrite(eventType, aggregateType string, payload map[string]any) bool {
	if asBool(payload["legacy_write"]) {
		return true
	}
	if strings.HasPrefix(eventType, "LEGACY_") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(aggregateType), "legacy")
}
