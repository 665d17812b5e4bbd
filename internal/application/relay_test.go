package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

type memOutbox struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*ports.OutboxRecord
	order []uuid.UUID
}

func newMemOutbox() *memOutbox {
	return &memOutbox{rows: make(map[uuid.UUID]*ports.OutboxRecord)}
}

func (m *memOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &ports.OutboxRecord{
		OutboxID:      event.OutboxID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		TenantID:      event.TenantID,
		Payload:       event.Payload,
		Status:        ports.OutboxStatusPending,
		CreatedAt:     event.OccurredAt,
	}
	m.rows[event.OutboxID] = rec
	m.order = append(m.order, event.OutboxID)
	return nil
}

func (m *memOutbox) claim(status string, limit int, claimToken string, claimUntil time.Time) []ports.OutboxRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := make([]ports.OutboxRecord, 0, limit)
	for _, id := range m.order {
		if len(claimed) >= limit {
			break
		}
		rec := m.rows[id]
		if rec.Status != status || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimToken != nil && rec.ClaimUntil != nil && rec.ClaimUntil.After(time.Now()) {
			continue
		}
		token := claimToken
		until := claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		claimed = append(claimed, *rec)
	}
	return claimed
}

func (m *memOutbox) ClaimPending(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	return m.claim(ports.OutboxStatusPending, limit, claimToken, claimUntil), nil
}

func (m *memOutbox) ClaimFailed(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	return m.claim(ports.OutboxStatusFailed, limit, claimToken, claimUntil), nil
}

func (m *memOutbox) withClaimed(outboxID uuid.UUID, claimToken string, fn func(*ports.OutboxRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[outboxID]
	if !ok {
		return fmt.Errorf("unknown outbox row %s", outboxID)
	}
	if rec.ClaimToken == nil || *rec.ClaimToken != claimToken {
		return fmt.Errorf("outbox row %s not claimed by %s", outboxID, claimToken)
	}
	fn(rec)
	rec.ClaimToken = nil
	rec.ClaimUntil = nil
	return nil
}

func (m *memOutbox) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return m.withClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.Status = ports.OutboxStatusPublished
		rec.PublishedAt = &at
	})
}

func (m *memOutbox) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return m.withClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.Status = ports.OutboxStatusFailed
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
	})
}

func (m *memOutbox) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return m.withClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.Status = ports.OutboxStatusFailed
		rec.LastError = &errMsg
		rec.DeadLetteredAt = &at
	})
}

func (m *memOutbox) Backlog(_ context.Context) (ports.BacklogStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := ports.BacklogStats{}
	for _, id := range m.order {
		rec := m.rows[id]
		switch {
		case rec.Status == ports.OutboxStatusPending:
			stats.PendingCount++
			if stats.OldestPendingAt == nil || rec.CreatedAt.Before(*stats.OldestPendingAt) {
				created := rec.CreatedAt
				stats.OldestPendingAt = &created
			}
		case rec.Status == ports.OutboxStatusFailed && rec.DeadLetteredAt == nil:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (m *memOutbox) record(t *testing.T, outboxID uuid.UUID) ports.OutboxRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[outboxID]
	if !ok {
		t.Fatalf("unknown outbox row %s", outboxID)
	}
	return *rec
}

type memSink struct {
	mu        sync.Mutex
	published []string
	failWith  error
}

func (s *memSink) Publish(_ context.Context, eventType, partitionKey string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.published = append(s.published, eventType+":"+partitionKey)
	return nil
}

func (s *memSink) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

type memDLQ struct {
	mu      sync.Mutex
	nextID  int
	streams map[string][]ports.StreamEntry
}

func newMemDLQ() *memDLQ {
	return &memDLQ{streams: make(map[string][]ports.StreamEntry)}
}

func (d *memDLQ) Append(_ context.Context, stream string, fields map[string]string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("%d-0", d.nextID)
	d.streams[stream] = append(d.streams[stream], ports.StreamEntry{ID: id, Fields: fields})
	return id, nil
}

func (d *memDLQ) Read(_ context.Context, stream string, limit int) ([]ports.StreamEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.streams[stream]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]ports.StreamEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (d *memDLQ) Delete(_ context.Context, stream string, ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	remaining := d.streams[stream][:0]
	for _, entry := range d.streams[stream] {
		keep := true
		for _, id := range ids {
			if entry.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, entry)
		}
	}
	d.streams[stream] = remaining
	return nil
}

func (d *memDLQ) Depth(_ context.Context, stream string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.streams[stream])), nil
}

func stagePendingRow(t *testing.T, outbox *memOutbox, eventType, aggregateID string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := outbox.Enqueue(context.Background(), ports.OutboxEvent{
		OutboxID:      id,
		EventType:     eventType,
		AggregateType: "workitem",
		AggregateID:   aggregateID,
		TenantID:      "tenant-1",
		Payload:       []byte(`{"workitem_id":"` + aggregateID + `"}`),
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return id
}

func newTestRelay(outbox *memOutbox, sink *memSink, dlq *memDLQ, maxRetries int) *RelayService {
	return NewRelayService(outbox, sink, dlq, nil, RelayConfig{
		MaxRetries: maxRetries,
		ClaimTTL:   time.Minute,
		DLQStream:  "workitem.events.dlq",
	}, &RelayMetrics{}, testLogger())
}

func TestRelayPublishesPendingExactlyOnce(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox()
	sink := &memSink{}
	relay := newTestRelay(outbox, sink, newMemDLQ(), 5)
	ctx := context.Background()

	rowID := stagePendingRow(t, outbox, "WORKITEM_COMPLETED", "wi-1")

	report, err := relay.PublishPendingOnce(ctx, 10)
	if err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}
	if report.Claimed != 1 || report.Published != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := outbox.record(t, rowID).Status; got != ports.OutboxStatusPublished {
		t.Fatalf("expected PUBLISHED, got %s", got)
	}

	report, err = relay.PublishPendingOnce(ctx, 10)
	if err != nil {
		t.Fatalf("second relay pass failed: %v", err)
	}
	if report.Claimed != 0 {
		t.Fatalf("published rows must never be reclaimed, report: %+v", report)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", sink.count())
	}
}

func TestRelayMarksFailedAndRetrySucceeds(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox()
	sink := &memSink{}
	relay := newTestRelay(outbox, sink, newMemDLQ(), 5)
	ctx := context.Background()

	rowID := stagePendingRow(t, outbox, "WORKITEM_STARTED", "wi-2")
	sink.setFailure(errors.New("stream down"))

	report, err := relay.PublishPendingOnce(ctx, 10)
	if err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected one failure, report: %+v", report)
	}
	rec := outbox.record(t, rowID)
	if rec.Status != ports.OutboxStatusFailed || rec.RetryCount != 1 {
		t.Fatalf("unexpected row after failure: %+v", rec)
	}

	sink.setFailure(nil)
	report, err = relay.RetryFailedOnce(ctx, 10)
	if err != nil {
		t.Fatalf("retry pass failed: %v", err)
	}
	if report.Published != 1 {
		t.Fatalf("expected retry to publish, report: %+v", report)
	}
	if got := outbox.record(t, rowID).Status; got != ports.OutboxStatusPublished {
		t.Fatalf("expected PUBLISHED after retry, got %s", got)
	}
}

func TestRelayDeadLettersAfterMaxRetries(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox()
	sink := &memSink{}
	dlq := newMemDLQ()
	relay := newTestRelay(outbox, sink, dlq, 2)
	ctx := context.Background()

	rowID := stagePendingRow(t, outbox, "WORKITEM_SUBMITTED", "wi-3")
	sink.setFailure(errors.New("stream down"))

	if _, err := relay.PublishPendingOnce(ctx, 10); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	report, err := relay.RetryFailedOnce(ctx, 10)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if report.DeadLettered != 1 {
		t.Fatalf("expected dead letter at retry threshold, report: %+v", report)
	}

	rec := outbox.record(t, rowID)
	if rec.DeadLetteredAt == nil {
		t.Fatalf("expected dead-lettered marker on row")
	}
	depth, _ := dlq.Depth(ctx, "workitem.events.dlq")
	if depth != 1 {
		t.Fatalf("expected one DLQ entry, got %d", depth)
	}

	entries, _ := dlq.Read(ctx, "workitem.events.dlq", 10)
	if entries[0].Fields["event_type"] != "WORKITEM_SUBMITTED" || entries[0].Fields["aggregate_id"] != "wi-3" {
		t.Fatalf("DLQ entry missing provenance fields: %+v", entries[0].Fields)
	}

	// Dead-lettered rows leave the retry loop entirely.
	report, err = relay.RetryFailedOnce(ctx, 10)
	if err != nil {
		t.Fatalf("post-DLQ pass failed: %v", err)
	}
	if report.Claimed != 0 {
		t.Fatalf("dead-lettered rows must not be reclaimed, report: %+v", report)
	}
}

func TestReprocessDLQRepublishesAndRemoves(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox()
	sink := &memSink{}
	dlq := newMemDLQ()
	relay := newTestRelay(outbox, sink, dlq, 5)
	ctx := context.Background()

	_, err := dlq.Append(ctx, "workitem.events.dlq", map[string]string{
		"outbox_id":    uuid.NewString(),
		"event_type":   "WORKITEM_COMPLETED",
		"aggregate_id": "wi-4",
		"payload":      `{"workitem_id":"wi-4"}`,
	})
	if err != nil {
		t.Fatalf("seed DLQ failed: %v", err)
	}

	report, err := relay.ReprocessDLQOnce(ctx, "", 10)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if report.Read != 1 || report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if sink.count() != 1 {
		t.Fatalf("expected republish to sink, got %d", sink.count())
	}
	depth, _ := dlq.Depth(ctx, "workitem.events.dlq")
	if depth != 0 {
		t.Fatalf("entry must be removed after successful reprocess, depth %d", depth)
	}
}

func TestReprocessDLQKeepsEntriesOnFailure(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	dlq := newMemDLQ()
	relay := newTestRelay(newMemOutbox(), sink, dlq, 5)
	ctx := context.Background()

	_, _ = dlq.Append(ctx, "workitem.events.dlq", map[string]string{
		"event_type":   "WORKITEM_COMPLETED",
		"aggregate_id": "wi-5",
		"payload":      `{}`,
	})
	sink.setFailure(errors.New("still down"))

	report, err := relay.ReprocessDLQOnce(ctx, "workitem.events.dlq", 10)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	depth, _ := dlq.Depth(ctx, "workitem.events.dlq")
	if depth != 1 {
		t.Fatalf("failed entries must stay in the DLQ, depth %d", depth)
	}
}

func TestBacklogReportIncludesDLQDepth(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox()
	dlq := newMemDLQ()
	breaker := NewCircuitBreaker(5, time.Minute)
	relay := NewRelayService(outbox, &memSink{}, dlq, breaker, RelayConfig{
		MaxRetries: 5,
		ClaimTTL:   time.Minute,
		DLQStream:  "workitem.events.dlq",
	}, &RelayMetrics{}, testLogger())
	ctx := context.Background()

	stagePendingRow(t, outbox, "WORKITEM_CREATED", "wi-6")
	_, _ = dlq.Append(ctx, "workitem.events.dlq", map[string]string{"payload": `{}`})

	report, err := relay.Backlog(ctx)
	if err != nil {
		t.Fatalf("backlog failed: %v", err)
	}
	if report.PendingCount != 1 || report.DLQDepth != 1 {
		t.Fatalf("unexpected backlog: %+v", report)
	}
	if report.SinkBreakerState != BreakerClosed {
		t.Fatalf("expected CLOSED breaker, got %s", report.SinkBreakerState)
	}
}
