package domain

import "time"

// EventType names a domain event on the external wire contract.
type EventType string

const (
	EventWorkItemCreated         EventType = "WORKITEM_CREATED"
	EventWorkItemStarted         EventType = "WORKITEM_STARTED"
	EventWorkItemSubmitted       EventType = "WORKITEM_SUBMITTED"
	EventWorkItemCompleted       EventType = "WORKITEM_COMPLETED"
	EventWorkItemCancelled       EventType = "WORKITEM_CANCELLED"
	EventWorkItemReworkRequested EventType = "WORKITEM_REWORK_REQUESTED"
	EventHitlApproved            EventType = "HITL_APPROVED"
	EventHitlRejected            EventType = "HITL_REJECTED"
	EventSelfVerificationFailed  EventType = "WORKITEM_SELF_VERIFICATION_FAILED"
)

// Event is an immutable domain event emitted by an aggregate transition.
// It is consumed exactly once by the outbox append step in the same
// transaction as the state change that produced it.
type Event struct {
	Type       EventType
	WorkItemID string
	TenantID   string
	OccurredAt time.Time
	Payload    map[string]any
}
