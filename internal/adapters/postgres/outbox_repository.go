package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	row := toOutboxModel(event)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	return r.claim(ctx, ports.OutboxStatusPending, limit, claimToken, claimUntil)
}

func (r *outboxRepository) ClaimFailed(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	return r.claim(ctx, ports.OutboxStatusFailed, limit, claimToken, claimUntil)
}

// claim leases up to limit rows of the given status under claimToken.
// SKIP LOCKED keeps overlapping relay invocations from contending on the
// same rows; an expired lease makes the row claimable again.
func (r *outboxRepository) claim(ctx context.Context, status string, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	now := time.Now().UTC()
	var rows []outboxModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&outboxModel{}).
			Select("outbox_id").
			Where("status = ?", status).
			Where("dead_lettered_at IS NULL").
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("created_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&outboxModel{}).
			Where("outbox_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("status = ?", status).
			Where("dead_lettered_at IS NULL").
			Order("created_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	records := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toOutboxRecord(row))
	}
	return records, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"status":       ports.OutboxStatusPublished,
			"published_at": at,
			"claim_token":  nil,
			"claim_until":  nil,
		}).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"status":        ports.OutboxStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    errMsg,
			"last_error_at": at,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *outboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"status":           ports.OutboxStatusFailed,
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}

// Backlog is intentionally cross-tenant: it is an administrative relay-health
// view, not a data access path.
func (r *outboxRepository) Backlog(ctx context.Context) (ports.BacklogStats, error) {
	var stats ports.BacklogStats

	if err := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("status = ?", ports.OutboxStatusPending).
		Count(&stats.PendingCount).Error; err != nil {
		return ports.BacklogStats{}, fmt.Errorf("count pending: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("status = ?", ports.OutboxStatusFailed).
		Where("dead_lettered_at IS NULL").
		Count(&stats.FailedCount).Error; err != nil {
		return ports.BacklogStats{}, fmt.Errorf("count failed: %w", err)
	}

	var oldest outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", ports.OutboxStatusPending).
		Order("created_at ASC").
		Select("created_at").
		First(&oldest).Error
	if err == nil {
		createdAt := oldest.CreatedAt
		stats.OldestPendingAt = &createdAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.BacklogStats{}, fmt.Errorf("oldest pending: %w", err)
	}

	return stats, nil
}
