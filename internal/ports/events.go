package ports

import "context"

// EventSink is the outbound delivery port to the external append-only
// stream. The application uses this abstraction to keep broker/client
// concerns in adapters; delivery is at-least-once and consumers are expected
// to deduplicate on the idempotency key inside the payload.
type EventSink interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}

// StreamEntry is one raw entry read back from a stream.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// DeadLetterStream is the DLQ boundary: an inspectable stream holding events
// that exhausted their relay retries. Entries are removed only after a
// successful reprocess, never silently dropped.
type DeadLetterStream interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
	Read(ctx context.Context, stream string, limit int) ([]StreamEntry, error)
	Delete(ctx context.Context, stream string, ids ...string) error
	Depth(ctx context.Context, stream string) (int64, error)
}
