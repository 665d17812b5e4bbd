package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testLogger())
	var order []string
	bus.Subscribe("WORKITEM_COMPLETED", func(ctx context.Context, eventType string, payload map[string]any) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe("WORKITEM_COMPLETED", func(ctx context.Context, eventType string, payload map[string]any) error {
		order = append(order, "second")
		return nil
	})

	bus.Publish(context.Background(), "WORKITEM_COMPLETED", map[string]any{"workitem_id": "wi-1"})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestBusIsolatesFailingHandlers(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testLogger())
	delivered := 0
	bus.Subscribe("WORKITEM_CANCELLED", func(ctx context.Context, eventType string, payload map[string]any) error {
		return errors.New("subscriber down")
	})
	bus.Subscribe("WORKITEM_CANCELLED", func(ctx context.Context, eventType string, payload map[string]any) error {
		panic("subscriber exploded")
	})
	bus.Subscribe("WORKITEM_CANCELLED", func(ctx context.Context, eventType string, payload map[string]any) error {
		delivered++
		return nil
	})

	bus.Publish(context.Background(), "WORKITEM_CANCELLED", nil)
	if delivered != 1 {
		t.Fatalf("later handler must still run after error and panic, delivered=%d", delivered)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testLogger())
	calls := 0
	sub := bus.Subscribe("WORKITEM_STARTED", func(ctx context.Context, eventType string, payload map[string]any) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), "WORKITEM_STARTED", nil)
	bus.Unsubscribe("WORKITEM_STARTED", sub)
	bus.Publish(context.Background(), "WORKITEM_STARTED", nil)

	if calls != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", calls)
	}
}

func TestBusIgnoresUnknownEventTypes(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(testLogger())
	bus.Publish(context.Background(), "NOBODY_LISTENS", map[string]any{"x": 1})
}
