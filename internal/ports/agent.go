package ports

import "context"

// AgentTask is the unit of work handed to the agent runtime.
type AgentTask struct {
	WorkItemID   string
	TenantID     string
	ActivityName string
	Input        map[string]any
}

// AgentResult is the black-box shape the agent runtime returns. The engine
// only consumes it as submission input; tool execution internals stay
// outside this service.
type AgentResult struct {
	Output          map[string]any
	Confidence      float64
	SuggestedStatus string
}

// AgentExecutor requests agent-driven task execution from the agent runtime.
type AgentExecutor interface {
	Execute(ctx context.Context, task AgentTask) (AgentResult, error)
}
