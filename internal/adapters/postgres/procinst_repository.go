package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"gorm.io/gorm"
)

type processInstanceRepository struct {
	db *gorm.DB
}

// GetStatus returns the owning process instance state. An unknown instance
// is treated as still running: the engine does not own process instances and
// must not block rework on replication lag in the instance table.
func (r *processInstanceRepository) GetStatus(ctx context.Context, tenantID, procInstID string) (string, error) {
	var row processInstanceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", procInstID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProcInstStatusRunning, nil
		}
		return "", fmt.Errorf("get process instance: %w", err)
	}
	return row.Status, nil
}
