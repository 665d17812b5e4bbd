package domain

import (
	"errors"
	"testing"
	"time"
)

func testItem(t *testing.T, mode AgentMode) WorkItem {
	t.Helper()
	item, err := NewWorkItem("wi-1", "tenant-1", "review_contract", ActivityTypeHuman, mode, time.Now().UTC())
	if err != nil {
		t.Fatalf("new work item failed: %v", err)
	}
	return item
}

func TestNewWorkItemDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	item := testItem(t, "")
	if item.Status != StatusTodo {
		t.Fatalf("expected TODO, got %s", item.Status)
	}
	if item.AgentMode != AgentModeManual {
		t.Fatalf("expected default MANUAL mode, got %s", item.AgentMode)
	}
	if item.Version != 1 {
		t.Fatalf("expected version 1, got %d", item.Version)
	}

	if _, err := NewWorkItem("", "tenant-1", "a", ActivityTypeHuman, AgentModeManual, time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
	if _, err := NewWorkItem("wi-1", "", "a", ActivityTypeHuman, AgentModeManual, time.Now()); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("expected tenant required, got %v", err)
	}
	if _, err := NewWorkItem("wi-1", "tenant-1", "a", ActivityTypeHuman, "BOGUS", time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown mode, got %v", err)
	}
}

func TestStartSubmitCompletes(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeManual)
	now := time.Now().UTC()

	events, err := item.Start(now)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if item.Status != StatusInProgress || item.Version != 2 {
		t.Fatalf("unexpected state after start: %s v%d", item.Status, item.Version)
	}
	if len(events) != 1 || events[0].Type != EventWorkItemStarted {
		t.Fatalf("expected WORKITEM_STARTED, got %+v", events)
	}

	result := map[string]any{"approved": true}
	events, err = item.Submit(result, VerificationOutcome{Decision: DecisionSkip, Passed: true}, now)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if item.Status != StatusDone || item.Version != 3 {
		t.Fatalf("unexpected state after submit: %s v%d", item.Status, item.Version)
	}
	if len(events) != 1 || events[0].Type != EventWorkItemCompleted {
		t.Fatalf("expected WORKITEM_COMPLETED, got %+v", events)
	}
}

func TestSubmitFromTodoForceStarts(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeAutonomous)
	events, err := item.Submit(map[string]any{"k": "v"}, VerificationOutcome{Decision: DecisionPass, Passed: true}, time.Now().UTC())
	if err != nil {
		t.Fatalf("submit from TODO failed: %v", err)
	}
	if item.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", item.Status)
	}
	if len(events) != 1 {
		t.Fatalf("expected single completion event, got %d", len(events))
	}
}

func TestSubmitFailRouteParksInSubmitted(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeSelfVerify)
	if _, err := item.Start(time.Now().UTC()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	outcome := VerificationOutcome{
		Sampled:     true,
		Decision:    DecisionFailRoute,
		RoutedQueue: HITLQueue,
	}
	events, err := item.Submit(map[string]any{"draft": true}, outcome, time.Now().UTC())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if item.Status != StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", item.Status)
	}
	if item.RoutedQueue == nil || *item.RoutedQueue != HITLQueue {
		t.Fatalf("expected routing to %s, got %v", HITLQueue, item.RoutedQueue)
	}
	if len(events) != 2 {
		t.Fatalf("expected submitted + verification-failed events, got %d", len(events))
	}
	if events[0].Type != EventWorkItemSubmitted || events[1].Type != EventSelfVerificationFailed {
		t.Fatalf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
}

func TestApproveHITLRequiresFeedbackBeforeMutation(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeSelfVerify)
	if _, err := item.Start(time.Now().UTC()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := item.Submit(nil, VerificationOutcome{Decision: DecisionFailRoute}, time.Now().UTC()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	versionBefore := item.Version

	_, err := item.ApproveHITL(false, "   ", time.Now().UTC())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank feedback, got %v", err)
	}
	if item.Status != StatusSubmitted || item.Version != versionBefore {
		t.Fatalf("rejection validation must not mutate the aggregate: %s v%d", item.Status, item.Version)
	}
}

func TestApproveHITLApprovedCompletes(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeSelfVerify)
	_, _ = item.Start(time.Now().UTC())
	_, _ = item.Submit(map[string]any{"r": 1}, VerificationOutcome{Decision: DecisionFailRoute}, time.Now().UTC())

	events, err := item.ApproveHITL(true, "", time.Now().UTC())
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if item.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", item.Status)
	}
	if item.RoutedQueue != nil {
		t.Fatalf("routed queue should clear on completion")
	}
	if len(events) != 2 || events[0].Type != EventHitlApproved || events[1].Type != EventWorkItemCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestApproveHITLRejectedMovesToRework(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeSelfVerify)
	_, _ = item.Start(time.Now().UTC())
	_, _ = item.Submit(nil, VerificationOutcome{Decision: DecisionFailRoute}, time.Now().UTC())

	events, err := item.ApproveHITL(false, "needs citations", time.Now().UTC())
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if item.Status != StatusRework {
		t.Fatalf("expected REWORK, got %s", item.Status)
	}
	if len(events) != 1 || events[0].Type != EventHitlRejected {
		t.Fatalf("expected HITL_REJECTED, got %+v", events)
	}
	if events[0].Payload["feedback"] != "needs citations" {
		t.Fatalf("feedback should ride the rejection event")
	}
}

func TestReworkReturnsToTodo(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeSelfVerify)
	_, _ = item.Start(time.Now().UTC())
	_, _ = item.Submit(nil, VerificationOutcome{Decision: DecisionFailRoute}, time.Now().UTC())
	_, _ = item.ApproveHITL(false, "redo", time.Now().UTC())

	events, err := item.Rework("address review feedback", time.Now().UTC())
	if err != nil {
		t.Fatalf("rework failed: %v", err)
	}
	if item.Status != StatusTodo {
		t.Fatalf("expected TODO, got %s", item.Status)
	}
	if len(events) != 1 || events[0].Type != EventWorkItemReworkRequested {
		t.Fatalf("expected WORKITEM_REWORK_REQUESTED, got %+v", events)
	}
}

func TestReworkRejectedOutsideReworkableStates(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeManual)
	if _, err := item.Rework("too early", time.Now().UTC()); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition from TODO, got %v", err)
	}

	_, _ = item.Start(time.Now().UTC())
	if _, err := item.Rework("mid-flight", time.Now().UTC()); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition from IN_PROGRESS, got %v", err)
	}
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeManual)
	if _, err := item.Cancel("obsolete", time.Now().UTC()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if item.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", item.Status)
	}

	if _, err := item.Start(time.Now().UTC()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed on start, got %v", err)
	}
	if _, err := item.Submit(nil, VerificationOutcome{}, time.Now().UTC()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed on submit, got %v", err)
	}
	if _, err := item.Cancel("again", time.Now().UTC()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed on cancel, got %v", err)
	}
}

func TestStartRejectedWhenNotTodo(t *testing.T) {
	t.Parallel()

	item := testItem(t, AgentModeManual)
	_, _ = item.Start(time.Now().UTC())
	if _, err := item.Start(time.Now().UTC()); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition on double start, got %v", err)
	}
}
