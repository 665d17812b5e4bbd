package application

import "github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"

// DefaultContracts returns the registry entries for every event type this
// service produces. The composition root registers them once at startup; a
// new event type needs an entry here before any producer may emit it.
func DefaultContracts(ownerService string) []domain.EventContract {
	keyRule := "event_type:aggregate_id"
	names := []domain.EventType{
		domain.EventWorkItemCreated,
		domain.EventWorkItemStarted,
		domain.EventWorkItemSubmitted,
		domain.EventWorkItemCompleted,
		domain.EventWorkItemCancelled,
		domain.EventWorkItemReworkRequested,
		domain.EventHitlApproved,
		domain.EventHitlRejected,
		domain.EventSelfVerificationFailed,
	}
	contracts := make([]domain.EventContract, 0, len(names))
	for _, name := range names {
		contracts = append(contracts, domain.EventContract{
			EventName:          string(name),
			OwnerService:       ownerService,
			Version:            1,
			PayloadSchema:      "workitem/" + string(name) + "/v1",
			IdempotencyKeyRule: keyRule,
		})
	}
	return contracts
}
