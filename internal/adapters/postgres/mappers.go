package postgres

import (
	"encoding/json"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

func toDomainWorkItem(row workItemModel) domain.WorkItem {
	item := domain.WorkItem{
		ID:           row.ID,
		ProcInstID:   row.ProcInstID,
		TenantID:     row.TenantID,
		ActivityName: row.ActivityName,
		ActivityType: domain.ActivityType(row.ActivityType),
		AssigneeID:   row.AssigneeID,
		AgentMode:    domain.AgentMode(row.AgentMode),
		Status:       domain.Status(row.Status),
		RoutedQueue:  row.RoutedQueue,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.ResultData != nil && *row.ResultData != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(*row.ResultData), &data); err == nil {
			item.ResultData = data
		}
	}
	return item
}

func toWorkItemModel(item domain.WorkItem) (workItemModel, error) {
	row := workItemModel{
		ID:           item.ID,
		ProcInstID:   item.ProcInstID,
		TenantID:     item.TenantID,
		ActivityName: item.ActivityName,
		ActivityType: string(item.ActivityType),
		AssigneeID:   item.AssigneeID,
		AgentMode:    string(item.AgentMode),
		Status:       string(item.Status),
		RoutedQueue:  item.RoutedQueue,
		Version:      item.Version,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
	if item.ResultData != nil {
		raw, err := json.Marshal(item.ResultData)
		if err != nil {
			return workItemModel{}, err
		}
		encoded := string(raw)
		row.ResultData = &encoded
	}
	return row, nil
}

func toOutboxModel(event ports.OutboxEvent) outboxModel {
	return outboxModel{
		OutboxID:      event.OutboxID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		TenantID:      event.TenantID,
		Payload:       string(event.Payload),
		Status:        ports.OutboxStatusPending,
		CreatedAt:     event.OccurredAt,
	}
}

func toOutboxRecord(row outboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		AggregateType:  row.AggregateType,
		AggregateID:    row.AggregateID,
		TenantID:       row.TenantID,
		Payload:        []byte(row.Payload),
		Status:         row.Status,
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}
