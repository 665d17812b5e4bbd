package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

// RelayConfig bounds one relay pass and names the dead-letter stream.
type RelayConfig struct {
	MaxRetries int
	ClaimTTL   time.Duration
	DLQStream  string
}

// RelayReport counts what one drain pass did.
type RelayReport struct {
	Claimed      int `json:"claimed"`
	Published    int `json:"published"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// DLQReport counts one dead-letter reprocess pass.
type DLQReport struct {
	Stream    string `json:"stream"`
	Read      int    `json:"read"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// BacklogReport is the operator-facing relay health view.
type BacklogReport struct {
	PendingCount        int64  `json:"pending_count"`
	FailedCount         int64  `json:"failed_count"`
	OldestPendingAgeSec int64  `json:"oldest_pending_age_seconds"`
	DLQDepth            int64  `json:"dlq_depth"`
	SinkBreakerState    string `json:"sink_breaker_state"`
}

// RelayService drains PENDING outbox rows to the external stream. Claim
// leases in the repository make overlapping invocations safe; a row already
// PUBLISHED is simply never claimed again. Delivery failures leave the row
// FAILED for retry, and rows that exhaust MaxRetries move to the dead-letter
// stream instead of being dropped.
type RelayService struct {
	outbox  ports.OutboxRepository
	sink    ports.EventSink
	dlq     ports.DeadLetterStream
	breaker *CircuitBreaker
	cfg     RelayConfig
	metrics *RelayMetrics
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewRelayService(
	outbox ports.OutboxRepository,
	sink ports.EventSink,
	dlq ports.DeadLetterStream,
	breaker *CircuitBreaker,
	cfg RelayConfig,
	metrics *RelayMetrics,
	logger *slog.Logger,
) *RelayService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "workitem.events.dlq"
	}
	if metrics == nil {
		metrics = &RelayMetrics{}
	}
	return &RelayService{
		outbox:  outbox,
		sink:    sink,
		dlq:     dlq,
		breaker: breaker,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// PublishPendingOnce claims up to limit PENDING rows, oldest first, and
// attempts delivery for each. Bounded per call so request-scoped triggers
// stay cheap; the long-running worker just calls it on a ticker.
func (r *RelayService) PublishPendingOnce(ctx context.Context, limit int) (RelayReport, error) {
	claimToken := uuid.NewString()
	records, err := r.outbox.ClaimPending(ctx, limit, claimToken, r.nowFn().Add(r.cfg.ClaimTTL))
	if err != nil {
		return RelayReport{}, fmt.Errorf("claim pending outbox rows: %w", err)
	}
	return r.drain(ctx, records, claimToken), nil
}

// RetryFailedOnce re-attempts delivery for FAILED rows under the same
// transition rules as the pending drain.
func (r *RelayService) RetryFailedOnce(ctx context.Context, limit int) (RelayReport, error) {
	claimToken := uuid.NewString()
	records, err := r.outbox.ClaimFailed(ctx, limit, claimToken, r.nowFn().Add(r.cfg.ClaimTTL))
	if err != nil {
		return RelayReport{}, fmt.Errorf("claim failed outbox rows: %w", err)
	}
	return r.drain(ctx, records, claimToken), nil
}

func (r *RelayService) drain(ctx context.Context, records []ports.OutboxRecord, claimToken string) RelayReport {
	report := RelayReport{Claimed: len(records)}
	now := r.nowFn()
	for _, rec := range records {
		if rec.RetryCount >= r.cfg.MaxRetries {
			r.deadLetter(ctx, rec, claimToken, "retry threshold reached before publish", now)
			report.DeadLettered++
			continue
		}

		if err := r.deliver(ctx, rec); err != nil {
			report.Failed++
			r.metrics.Failed.Add(1)
			if rec.RetryCount+1 >= r.cfg.MaxRetries {
				r.deadLetter(ctx, rec, claimToken, err.Error(), now)
				report.DeadLettered++
				continue
			}
			r.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "events.relay",
				"layer", "application",
				"operation", "publish_event",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"tenant_id", rec.TenantID,
				"retry_count", rec.RetryCount+1,
				"error", err,
			)
			_ = r.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
			continue
		}

		report.Published++
		r.metrics.Published.Add(1)
		_ = r.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
	}

	if report.Claimed > 0 {
		r.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.relay",
			"layer", "application",
			"operation", "drain_outbox",
			"outcome", "success",
			"claimed", report.Claimed,
			"published", report.Published,
			"failed", report.Failed,
			"dead_lettered", report.DeadLettered,
		)
	}
	return report
}

func (r *RelayService) deliver(ctx context.Context, rec ports.OutboxRecord) error {
	if r.breaker != nil && !r.breaker.AllowRequest() {
		return fmt.Errorf("stream sink circuit open")
	}
	err := r.sink.Publish(ctx, rec.EventType, rec.AggregateID, rec.Payload)
	if r.breaker != nil {
		if err != nil {
			r.breaker.RecordFailure()
		} else {
			r.breaker.RecordSuccess()
		}
	}
	return err
}

func (r *RelayService) deadLetter(ctx context.Context, rec ports.OutboxRecord, claimToken, reason string, now time.Time) {
	r.metrics.DeadLettered.Add(1)
	fields := map[string]string{
		"outbox_id":      rec.OutboxID.String(),
		"event_type":     rec.EventType,
		"aggregate_type": rec.AggregateType,
		"aggregate_id":   rec.AggregateID,
		"tenant_id":      rec.TenantID,
		"payload":        string(rec.Payload),
		"error":          reason,
		"dead_lettered":  now.Format(time.RFC3339Nano),
	}
	if _, err := r.dlq.Append(ctx, r.cfg.DLQStream, fields); err != nil {
		// The row stays FAILED and will be re-claimed; losing the DLQ copy is
		// recoverable, losing the row is not.
		r.logger.ErrorContext(ctx, "dead letter append failed",
			"module", "events.relay",
			"layer", "application",
			"operation", "dead_letter",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"error", err,
		)
		_ = r.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, reason, now)
		return
	}
	r.logger.ErrorContext(ctx, "outbox message moved to dlq",
		"module", "events.relay",
		"layer", "application",
		"operation", "dead_letter",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"tenant_id", rec.TenantID,
		"stream", r.cfg.DLQStream,
		"error", reason,
	)
	_ = r.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, reason, now)
}

// ReprocessDLQOnce re-injects up to limit entries from the named dead-letter
// stream into the external stream, removing each entry only after a
// successful publish.
func (r *RelayService) ReprocessDLQOnce(ctx context.Context, stream string, limit int) (DLQReport, error) {
	if stream == "" {
		stream = r.cfg.DLQStream
	}
	entries, err := r.dlq.Read(ctx, stream, limit)
	if err != nil {
		return DLQReport{}, fmt.Errorf("read dlq stream %s: %w", stream, err)
	}

	report := DLQReport{Stream: stream, Read: len(entries)}
	for _, entry := range entries {
		eventType := entry.Fields["event_type"]
		payload := []byte(entry.Fields["payload"])
		partitionKey := entry.Fields["aggregate_id"]
		if err := r.sink.Publish(ctx, eventType, partitionKey, payload); err != nil {
			report.Failed++
			r.logger.WarnContext(ctx, "dlq reprocess failed",
				"module", "events.relay",
				"layer", "application",
				"operation", "reprocess_dlq",
				"outcome", "failure",
				"stream", stream,
				"entry_id", entry.ID,
				"event_type", eventType,
				"error", err,
			)
			continue
		}
		report.Succeeded++
		_ = r.dlq.Delete(ctx, stream, entry.ID)
	}
	return report, nil
}

// InspectDLQ reads up to limit entries from the named dead-letter stream
// without consuming them.
func (r *RelayService) InspectDLQ(ctx context.Context, stream string, limit int) ([]ports.StreamEntry, error) {
	if stream == "" {
		stream = r.cfg.DLQStream
	}
	entries, err := r.dlq.Read(ctx, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("read dlq stream %s: %w", stream, err)
	}
	return entries, nil
}

// Backlog reports pending/failed counts, oldest-pending age, and DLQ depth.
func (r *RelayService) Backlog(ctx context.Context) (BacklogReport, error) {
	stats, err := r.outbox.Backlog(ctx)
	if err != nil {
		return BacklogReport{}, fmt.Errorf("read outbox backlog: %w", err)
	}
	depth, err := r.dlq.Depth(ctx, r.cfg.DLQStream)
	if err != nil {
		return BacklogReport{}, fmt.Errorf("read dlq depth: %w", err)
	}
	report := BacklogReport{
		PendingCount:        stats.PendingCount,
		FailedCount:         stats.FailedCount,
		OldestPendingAgeSec: int64(stats.OldestPendingAge(r.nowFn()).Seconds()),
		DLQDepth:            depth,
	}
	if r.breaker != nil {
		report.SinkBreakerState = r.breaker.State()
	}
	return report, nil
}

// Metrics exposes the cumulative relay counters.
func (r *RelayService) Metrics() map[string]int64 {
	return r.metrics.Snapshot()
}
