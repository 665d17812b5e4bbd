package agent

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

// LoggingExecutor is the default agent boundary when no real agent runtime
// is wired. It echoes the task input back as output with full confidence so
// local and test runs can exercise the submit path end to end.
type LoggingExecutor struct {
	logger *slog.Logger
}

func NewLoggingExecutor(logger *slog.Logger) *LoggingExecutor {
	return &LoggingExecutor{logger: logger}
}

func (e *LoggingExecutor) Execute(ctx context.Context, task ports.AgentTask) (ports.AgentResult, error) {
	e.logger.InfoContext(ctx, "agent task executed",
		"module", "agent",
		"layer", "adapter",
		"operation", "execute_task",
		"outcome", "success",
		"workitem_id", task.WorkItemID,
		"tenant_id", task.TenantID,
		"activity_name", task.ActivityName,
	)
	return ports.AgentResult{
		Output:          task.Input,
		Confidence:      1.0,
		SuggestedStatus: "DONE",
	}, nil
}
