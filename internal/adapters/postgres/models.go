package postgres

import (
	"time"

	"github.com/google/uuid"
)

type workItemModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	ProcInstID   *string    `gorm:"column:proc_inst_id"`
	TenantID     string     `gorm:"column:tenant_id"`
	ActivityName string     `gorm:"column:activity_name"`
	ActivityType string     `gorm:"column:activity_type"`
	AssigneeID   *string    `gorm:"column:assignee_id"`
	AgentMode    string     `gorm:"column:agent_mode"`
	Status       string     `gorm:"column:status"`
	ResultData   *string    `gorm:"column:result_data;type:jsonb"`
	RoutedQueue  *string    `gorm:"column:routed_queue"`
	Version      int64      `gorm:"column:version"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (workItemModel) TableName() string { return "work_items" }

type processInstanceModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id"`
	Status    string    `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (processInstanceModel) TableName() string { return "process_instances" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	AggregateType  string     `gorm:"column:aggregate_type"`
	AggregateID    string     `gorm:"column:aggregate_id"`
	TenantID       string     `gorm:"column:tenant_id"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	Status         string     `gorm:"column:status"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "event_outbox" }
