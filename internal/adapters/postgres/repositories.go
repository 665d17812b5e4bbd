package postgres

import (
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	WorkItems        ports.WorkItemRepository
	ProcessInstances ports.ProcessInstanceRepository
	Outbox           ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		WorkItems:        &workItemRepository{db: db},
		ProcessInstances: &processInstanceRepository{db: db},
		Outbox:           &outboxRepository{db: db},
	}
}
