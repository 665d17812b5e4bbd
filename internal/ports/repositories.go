package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
)

// WorkItemFilters narrows tenant-scoped listings. Zero values mean "any".
type WorkItemFilters struct {
	Status       string
	ActivityType string
	AssigneeID   string
	ProcInstID   string
}

// WorkItemRepository defines persistence for the work-item aggregate.
// The *WithOutboxTx methods exist to enforce aggregate+outbox consistency:
// both the row mutation and its outbox events commit in one transaction or
// neither does. Update must apply the optimistic version check and return
// domain.ErrVersionConflict when the expected version no longer matches.
type WorkItemRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (domain.WorkItem, error)
	ListByProcInst(ctx context.Context, tenantID, procInstID string) ([]domain.WorkItem, error)
	ListByTenant(ctx context.Context, tenantID string, filters WorkItemFilters, limit, offset int) ([]domain.WorkItem, int64, error)
	CreateWithOutboxTx(ctx context.Context, item domain.WorkItem, events []OutboxEvent) error
	UpdateWithOutboxTx(ctx context.Context, item domain.WorkItem, expectedVersion int64, events []OutboxEvent) error
}

// ProcessInstanceRepository exposes the owning process state the rework
// guard needs. The engine does not own process instances; it only reads them.
type ProcessInstanceRepository interface {
	GetStatus(ctx context.Context, tenantID, procInstID string) (string, error)
}

// Outbox row statuses.
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusPublished = "PUBLISHED"
	OutboxStatusFailed    = "FAILED"
)

// OutboxEvent is the write-side event payload prior to storage. The payload
// is already contract-enriched JSON; the outbox append only stages it.
type OutboxEvent struct {
	OutboxID      uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   string
	TenantID      string
	Payload       []byte
	OccurredAt    time.Time
}

// OutboxRecord is the durable outbox row, including relay bookkeeping.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	AggregateType  string
	AggregateID    string
	TenantID       string
	Payload        []byte
	Status         string
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// BacklogStats is the relay-health snapshot operators watch. A growing
// OldestPendingAge means the relay is stuck or the stream is down.
type BacklogStats struct {
	PendingCount    int64
	FailedCount     int64
	OldestPendingAt *time.Time
}

// OldestPendingAge returns the age of the oldest PENDING row, zero when the
// backlog is empty.
func (s BacklogStats) OldestPendingAge(now time.Time) time.Duration {
	if s.OldestPendingAt == nil {
		return 0
	}
	age := now.Sub(*s.OldestPendingAt)
	if age < 0 {
		return 0
	}
	return age
}

// OutboxRepository controls the publish-retry workflow for staged events.
// Claim methods lease rows with a token so overlapping relay invocations
// never double-deliver from the same claim; rows already PUBLISHED are simply
// not claimable, which makes repeated relay calls idempotent per-row.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimPending(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	ClaimFailed(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	Backlog(ctx context.Context) (BacklogStats, error)
}
