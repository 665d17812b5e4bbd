package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
	"gorm.io/gorm"
)

type workItemRepository struct {
	db *gorm.DB
}

func (r *workItemRepository) GetByID(ctx context.Context, tenantID, id string) (domain.WorkItem, error) {
	var row workItemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WorkItem{}, domain.ErrWorkItemNotFound
		}
		return domain.WorkItem{}, fmt.Errorf("get work item: %w", err)
	}
	return toDomainWorkItem(row), nil
}

func (r *workItemRepository) ListByProcInst(ctx context.Context, tenantID, procInstID string) ([]domain.WorkItem, error) {
	var rows []workItemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("proc_inst_id = ?", procInstID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list work items by process instance: %w", err)
	}
	items := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDomainWorkItem(row))
	}
	return items, nil
}

func (r *workItemRepository) ListByTenant(ctx context.Context, tenantID string, filters ports.WorkItemFilters, limit, offset int) ([]domain.WorkItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&workItemModel{}).Where("tenant_id = ?", tenantID)
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.ActivityType != "" {
		query = query.Where("activity_type = ?", filters.ActivityType)
	}
	if filters.AssigneeID != "" {
		query = query.Where("assignee_id = ?", filters.AssigneeID)
	}
	if filters.ProcInstID != "" {
		query = query.Where("proc_inst_id = ?", filters.ProcInstID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count work items: %w", err)
	}

	var rows []workItemModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list work items: %w", err)
	}
	items := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDomainWorkItem(row))
	}
	return items, total, nil
}

func (r *workItemRepository) CreateWithOutboxTx(ctx context.Context, item domain.WorkItem, events []ports.OutboxEvent) error {
	row, err := toWorkItemModel(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert work item: %w", err)
		}
		return insertOutboxRows(tx, events)
	})
}

// UpdateWithOutboxTx applies the optimistic version check: the UPDATE is
// scoped to the expected version and zero affected rows means another writer
// won the race (or the row vanished, which cannot happen for never-deleted
// aggregates within a tenant).
func (r *workItemRepository) UpdateWithOutboxTx(ctx context.Context, item domain.WorkItem, expectedVersion int64, events []ports.OutboxEvent) error {
	row, err := toWorkItemModel(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&workItemModel{}).
			Where("id = ?", item.ID).
			Where("tenant_id = ?", item.TenantID).
			Where("version = ?", expectedVersion).
			Updates(map[string]any{
				"activity_name": row.ActivityName,
				"activity_type": row.ActivityType,
				"assignee_id":   row.AssigneeID,
				"agent_mode":    row.AgentMode,
				"status":        row.Status,
				"result_data":   row.ResultData,
				"routed_queue":  row.RoutedQueue,
				"version":       row.Version,
				"updated_at":    row.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update work item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&workItemModel{}).
				Where("id = ?", item.ID).
				Where("tenant_id = ?", item.TenantID).
				Count(&exists).Error; err != nil {
				return fmt.Errorf("check work item existence: %w", err)
			}
			if exists == 0 {
				return domain.ErrWorkItemNotFound
			}
			return domain.ErrVersionConflict
		}
		return insertOutboxRows(tx, events)
	})
}

func insertOutboxRows(tx *gorm.DB, events []ports.OutboxEvent) error {
	for _, event := range events {
		row := toOutboxModel(event)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}
	}
	return nil
}
