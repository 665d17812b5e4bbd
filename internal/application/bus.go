package application

import (
	"context"
	"log/slog"
	"sync"
)

// EventHandler consumes one in-process domain event notification.
type EventHandler func(ctx context.Context, eventType string, payload map[string]any) error

// Subscription identifies a registered handler so it can be removed later.
// Go funcs are not comparable, so unsubscribe works by token instead of by
// handler value.
type Subscription int64

// EventBus fans domain events out to in-process modules (agent, watch, case)
// so they do not have to poll the outbox or the external stream. It is
// best-effort and memory-only: no durability, no cross-process delivery.
// That guarantee belongs solely to the outbox.
//
// Handlers for a type run sequentially in registration order. A handler
// error or panic is logged and does not stop delivery to later handlers.
// Subscription changes belong at startup/teardown, not per-request.
type EventBus struct {
	mu       sync.RWMutex
	nextSub  Subscription
	handlers map[string][]busEntry
	logger   *slog.Logger
}

type busEntry struct {
	sub     Subscription
	handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]busEntry),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type and returns its token.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	b.handlers[eventType] = append(b.handlers[eventType], busEntry{sub: b.nextSub, handler: handler})
	return b.nextSub
}

// Unsubscribe removes the handler registered under the token.
func (b *EventBus) Unsubscribe(eventType string, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[eventType]
	for i, e := range entries {
		if e.sub == sub {
			b.handlers[eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler registered for the event type. Failure
// isolation is per-handler: one failing subscriber never hides the event
// from the rest.
func (b *EventBus) Publish(ctx context.Context, eventType string, payload map[string]any) {
	b.mu.RLock()
	entries := make([]busEntry, len(b.handlers[eventType]))
	copy(entries, b.handlers[eventType])
	b.mu.RUnlock()

	for _, e := range entries {
		b.invoke(ctx, e, eventType, payload)
	}
}

func (b *EventBus) invoke(ctx context.Context, e busEntry, eventType string, payload map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.ErrorContext(ctx, "event bus handler panicked",
				"module", "events.bus",
				"layer", "application",
				"operation", "publish_local",
				"outcome", "failure",
				"event_type", eventType,
				"subscription", int64(e.sub),
				"panic", rec,
			)
		}
	}()
	if err := e.handler(ctx, eventType, payload); err != nil {
		b.logger.WarnContext(ctx, "event bus handler failed",
			"module", "events.bus",
			"layer", "application",
			"operation", "publish_local",
			"outcome", "failure",
			"event_type", eventType,
			"subscription", int64(e.sub),
			"error", err,
		)
	}
}
