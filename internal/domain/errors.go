package domain

import "errors"

var (
	// ErrWorkItemNotFound is returned when the requested work item does not
	// exist within the caller's tenant scope. Adapters map it to 404.
	ErrWorkItemNotFound = errors.New("work item not found")
	// ErrInvalidStateTransition signals a transition that is not legal from
	// the item's current status. Caller-correctable, never retried.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAlreadyCompleted is returned when a transition targets an item that
	// already reached a terminal state.
	ErrAlreadyCompleted = errors.New("work item already completed")
	// ErrProcessCompleted blocks rework once the owning process instance has
	// finished; the item can no longer rejoin a live process.
	ErrProcessCompleted = errors.New("process instance already completed")
	// ErrVersionConflict is the optimistic concurrency failure. The losing
	// writer should re-read and retry; the write was not applied.
	ErrVersionConflict = errors.New("stale work item version")
	// ErrInvalidInput marks request validation failures, distinct from
	// domain rule violations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTenantRequired is returned when no tenant scope could be resolved
	// for an operation. Every read and write must be tenant-scoped.
	ErrTenantRequired = errors.New("tenant id is required")
	// ErrAgentUnavailable is returned when the agent execution circuit is
	// open and no request may pass.
	ErrAgentUnavailable = errors.New("agent executor unavailable")
)
