package application

import (
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
)

// Config carries the policy knobs the lifecycle service needs.
type Config struct {
	OwnerService        string
	SampleRatio         float64
	ConfidenceThreshold float64
}

// CreateWorkItemRequest creates a TODO work item for a process activity.
type CreateWorkItemRequest struct {
	WorkItemID   string         `json:"workitem_id"`
	ProcInstID   string         `json:"proc_inst_id"`
	ActivityName string         `json:"activity_name"`
	ActivityType string         `json:"activity_type"`
	AssigneeID   string         `json:"assignee_id"`
	AgentMode    string         `json:"agent_mode"`
	Input        map[string]any `json:"input"`
}

// SubmitRequest finishes execution of a work item.
type SubmitRequest struct {
	ResultData        map[string]any `json:"result_data"`
	AgentModeOverride string         `json:"agent_mode_override"`
}

// ApproveHITLRequest resolves a human review. Feedback is mandatory on
// rejection.
type ApproveHITLRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// ReworkRequest sends an item back to TODO.
type ReworkRequest struct {
	Reason string `json:"reason"`
}

// CancelRequest aborts an item.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ListWorkItemsQuery filters tenant-scoped listings.
type ListWorkItemsQuery struct {
	Status       string
	ActivityType string
	AssigneeID   string
	ProcInstID   string
	Limit        int
	Offset       int
}

// WorkItemView is the read shape returned to adapters.
type WorkItemView struct {
	ID           string         `json:"id"`
	ProcInstID   string         `json:"proc_inst_id,omitempty"`
	TenantID     string         `json:"tenant_id"`
	ActivityName string         `json:"activity_name"`
	ActivityType string         `json:"activity_type"`
	AssigneeID   string         `json:"assignee_id,omitempty"`
	AgentMode    string         `json:"agent_mode"`
	Status       string         `json:"status"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	RoutedQueue  string         `json:"routed_queue,omitempty"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TransitionResult reports a finished transition plus the verification
// outcome when the transition ran one.
type TransitionResult struct {
	Item         WorkItemView                `json:"workitem"`
	Verification *domain.VerificationOutcome `json:"verification,omitempty"`
}

// WorkItemList is a paged listing with the untruncated total.
type WorkItemList struct {
	Items []WorkItemView `json:"items"`
	Total int64          `json:"total"`
}

func toView(item domain.WorkItem) WorkItemView {
	v := WorkItemView{
		ID:           item.ID,
		TenantID:     item.TenantID,
		ActivityName: item.ActivityName,
		ActivityType: string(item.ActivityType),
		AgentMode:    string(item.AgentMode),
		Status:       string(item.Status),
		ResultData:   item.ResultData,
		Version:      item.Version,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
	if item.ProcInstID != nil {
		v.ProcInstID = *item.ProcInstID
	}
	if item.AssigneeID != nil {
		v.AssigneeID = *item.AssigneeID
	}
	if item.RoutedQueue != nil {
		v.RoutedQueue = *item.RoutedQueue
	}
	return v
}
