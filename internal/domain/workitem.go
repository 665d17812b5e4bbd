package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusRework     Status = "REWORK"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions may leave the state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// AgentMode controls how much automation a work item tolerates before
// requiring a human in the loop.
type AgentMode string

const (
	AgentModeAutonomous AgentMode = "AUTONOMOUS"
	AgentModeSupervised AgentMode = "SUPERVISED"
	AgentModeManual     AgentMode = "MANUAL"
	AgentModeSelfVerify AgentMode = "SELF_VERIFY"
)

// ValidAgentMode reports whether the given mode is one of the known modes.
func ValidAgentMode(mode AgentMode) bool {
	switch mode {
	case AgentModeAutonomous, AgentModeSupervised, AgentModeManual, AgentModeSelfVerify:
		return true
	default:
		return false
	}
}

// ActivityType classifies the process activity that spawned the work item.
type ActivityType string

const (
	ActivityTypeHuman      ActivityType = "human"
	ActivityTypeService    ActivityType = "service"
	ActivityTypeScript     ActivityType = "script"
	ActivityTypeSubProcess ActivityType = "sub_process"
)

// HITLQueue is the review queue work items are routed to when
// self-verification fails.
const HITLQueue = "HITL_QUEUE"

// Process instance statuses observed by the rework guard.
const (
	ProcInstStatusRunning   = "RUNNING"
	ProcInstStatusCompleted = "COMPLETED"
)

// WorkItem is the aggregate root for one unit of process work.
// All mutation goes through the transition methods below; the methods are pure
// domain logic and return the events the transition emits. Persistence and
// event staging are the caller's concern so the aggregate stays I/O free.
//
// Version is the optimistic concurrency token. Transition methods increment it;
// the repository rejects writes whose expected version no longer matches,
// which serializes concurrent transitions on the same item.
type WorkItem struct {
	ID           string
	ProcInstID   *string
	TenantID     string
	ActivityName string
	ActivityType ActivityType
	AssigneeID   *string
	AgentMode    AgentMode
	Status       Status
	ResultData   map[string]any
	RoutedQueue  *string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewWorkItem creates a TODO work item ready for its first transition.
func NewWorkItem(id, tenantID, activityName string, activityType ActivityType, mode AgentMode, now time.Time) (WorkItem, error) {
	if strings.TrimSpace(id) == "" {
		return WorkItem{}, fmt.Errorf("%w: work item id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(tenantID) == "" {
		return WorkItem{}, ErrTenantRequired
	}
	if strings.TrimSpace(activityName) == "" {
		return WorkItem{}, fmt.Errorf("%w: activity name is required", ErrInvalidInput)
	}
	if mode == "" {
		mode = AgentModeManual
	}
	if !ValidAgentMode(mode) {
		return WorkItem{}, fmt.Errorf("%w: unknown agent mode %q", ErrInvalidInput, mode)
	}
	return WorkItem{
		ID:           id,
		TenantID:     tenantID,
		ActivityName: activityName,
		ActivityType: activityType,
		AgentMode:    mode,
		Status:       StatusTodo,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Start moves a TODO item to IN_PROGRESS.
func (w *WorkItem) Start(now time.Time) ([]Event, error) {
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: work item %s is %s", ErrAlreadyCompleted, w.ID, w.Status)
	}
	if w.Status != StatusTodo {
		return nil, transitionError(w, StatusInProgress)
	}
	w.Status = StatusInProgress
	w.touch(now)
	return []Event{w.event(EventWorkItemStarted, nil, now)}, nil
}

// Submit finishes execution of the item with the given result and the
// verification outcome already computed for it. SKIP and PASS complete the
// item; FAIL_ROUTE parks it in SUBMITTED awaiting HITL review.
// A TODO item may submit directly (force-start); anything else outside
// IN_PROGRESS is rejected.
func (w *WorkItem) Submit(resultData map[string]any, outcome VerificationOutcome, now time.Time) ([]Event, error) {
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: work item %s is %s", ErrAlreadyCompleted, w.ID, w.Status)
	}
	if w.Status != StatusInProgress && w.Status != StatusTodo {
		return nil, transitionError(w, StatusDone)
	}

	w.ResultData = resultData
	switch outcome.Decision {
	case DecisionFailRoute:
		w.Status = StatusSubmitted
		queue := outcome.RoutedQueue
		if queue == "" {
			queue = HITLQueue
		}
		w.RoutedQueue = &queue
		w.touch(now)
		return []Event{
			w.event(EventWorkItemSubmitted, map[string]any{
				"result_data":       resultData,
				"self_verification": outcome.Map(),
				"routed_queue":      queue,
			}, now),
			w.event(EventSelfVerificationFailed, map[string]any{
				"self_verification": outcome.Map(),
				"routed_queue":      queue,
			}, now),
		}, nil
	default:
		w.Status = StatusDone
		w.RoutedQueue = nil
		w.touch(now)
		return []Event{
			w.event(EventWorkItemCompleted, map[string]any{
				"result_data":       resultData,
				"self_verification": outcome.Map(),
			}, now),
		}, nil
	}
}

// ApproveHITL resolves a SUBMITTED item after human review. Rejection requires
// non-empty feedback; that check runs before any mutation so a bad request
// leaves the aggregate untouched.
func (w *WorkItem) ApproveHITL(approved bool, feedback string, now time.Time) ([]Event, error) {
	if !approved && strings.TrimSpace(feedback) == "" {
		return nil, fmt.Errorf("%w: feedback is required when rejecting", ErrInvalidInput)
	}
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: work item %s is %s", ErrAlreadyCompleted, w.ID, w.Status)
	}
	if w.Status != StatusSubmitted {
		return nil, transitionError(w, StatusDone)
	}

	if approved {
		w.Status = StatusDone
		w.RoutedQueue = nil
		w.touch(now)
		return []Event{
			w.event(EventHitlApproved, nil, now),
			w.event(EventWorkItemCompleted, map[string]any{
				"result_data":   w.ResultData,
				"hitl_approved": true,
			}, now),
		}, nil
	}

	w.Status = StatusRework
	w.touch(now)
	return []Event{
		w.event(EventHitlRejected, map[string]any{"feedback": feedback}, now),
	}, nil
}

// Rework sends a rejected or submitted item back to TODO for another attempt.
func (w *WorkItem) Rework(reason string, now time.Time) ([]Event, error) {
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: work item %s is %s", ErrAlreadyCompleted, w.ID, w.Status)
	}
	if w.Status != StatusRework && w.Status != StatusSubmitted {
		return nil, transitionError(w, StatusTodo)
	}
	w.Status = StatusTodo
	w.RoutedQueue = nil
	w.touch(now)
	return []Event{
		w.event(EventWorkItemReworkRequested, map[string]any{"reason": reason}, now),
	}, nil
}

// Cancel aborts any non-terminal item.
func (w *WorkItem) Cancel(reason string, now time.Time) ([]Event, error) {
	if w.Status.Terminal() {
		return nil, fmt.Errorf("%w: work item %s is %s", ErrAlreadyCompleted, w.ID, w.Status)
	}
	w.Status = StatusCancelled
	w.RoutedQueue = nil
	w.touch(now)
	return []Event{
		w.event(EventWorkItemCancelled, map[string]any{"reason": reason}, now),
	}, nil
}

func (w *WorkItem) touch(now time.Time) {
	w.Version++
	w.UpdatedAt = now
}

func (w *WorkItem) event(eventType EventType, payload map[string]any, now time.Time) Event {
	return Event{
		Type:       eventType,
		WorkItemID: w.ID,
		TenantID:   w.TenantID,
		OccurredAt: now,
		Payload:    payload,
	}
}

func transitionError(w *WorkItem, to Status) error {
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidStateTransition, w.ID, w.Status, to)
}
