package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

// Connect initializes a Redis client from URL or host:port input.
// Supporting both formats keeps local/dev and container config paths simple.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStreamSink appends delivered events to a Redis stream. Consumers read
// it with consumer groups and deduplicate on the idempotency key embedded in
// the payload.
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream}
}

func (s *RedisStreamSink) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_type":    eventType,
			"partition_key": partitionKey,
			"payload":       string(payload),
		},
	}).Err()
}

// RedisDeadLetterStream stores dead-lettered events as Redis stream entries
// so operators can inspect and reprocess them by entry id.
type RedisDeadLetterStream struct {
	client *redis.Client
}

func NewRedisDeadLetterStream(client *redis.Client) *RedisDeadLetterStream {
	return &RedisDeadLetterStream{client: client}
}

func (s *RedisDeadLetterStream) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
}

func (s *RedisDeadLetterStream) Read(ctx context.Context, stream string, limit int) ([]ports.StreamEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	messages, err := s.client.XRangeN(ctx, stream, "-", "+", int64(limit)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]ports.StreamEntry, 0, len(messages))
	for _, msg := range messages {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if raw, ok := v.(string); ok {
				fields[k] = raw
			} else {
				fields[k] = fmt.Sprint(v)
			}
		}
		entries = append(entries, ports.StreamEntry{ID: msg.ID, Fields: fields})
	}
	return entries, nil
}

func (s *RedisDeadLetterStream) Delete(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.XDel(ctx, stream, ids...).Err()
}

func (s *RedisDeadLetterStream) Depth(ctx context.Context, stream string) (int64, error) {
	return s.client.XLen(ctx, stream).Result()
}
