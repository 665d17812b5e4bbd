package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/application"
)

// RelayWorker is the long-running variant of the outbox relay: a ticker loop
// around the bounded one-shot drains, with graceful shutdown via context
// cancellation. Request-scoped callers trigger the same one-shot operations
// through the HTTP surface instead.
type RelayWorker struct {
	logger     *slog.Logger
	relay      *application.RelayService
	interval   time.Duration
	batchSize  int
	retryEvery int
}

// NewRelayWorker constructs the relay loop with sane defaults. retryEvery
// controls how many pending passes run between failed-row retry passes.
func NewRelayWorker(logger *slog.Logger, relay *application.RelayService, interval time.Duration, batchSize, retryEvery int) *RelayWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if retryEvery <= 0 {
		retryEvery = 10
	}
	return &RelayWorker{
		logger:     logger,
		relay:      relay,
		interval:   interval,
		batchSize:  batchSize,
		retryEvery: retryEvery,
	}
}

// Run executes the periodic drain loop until context cancellation.
func (w *RelayWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	iteration := 0
	for {
		iteration++
		if _, err := w.relay.PublishPendingOnce(ctx, w.batchSize); err != nil {
			w.logger.ErrorContext(ctx, "relay iteration failed",
				"module", "events.relay_worker",
				"layer", "adapter",
				"operation", "publish_pending_once",
				"outcome", "failure",
				"error", err,
			)
		}
		if iteration%w.retryEvery == 0 {
			if _, err := w.relay.RetryFailedOnce(ctx, w.batchSize); err != nil {
				w.logger.ErrorContext(ctx, "relay retry pass failed",
					"module", "events.relay_worker",
					"layer", "adapter",
					"operation", "retry_failed_once",
					"outcome", "failure",
					"error", err,
				)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
