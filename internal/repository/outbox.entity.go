package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type OutboxEventEntity struct {
	ID          string     `gorm:"primaryKey;column:id;size:36"`
	TenantID    string     `gorm:"column:tenant_id;not null;index:idx_outbox_pending,priority:1"`
	Type        string     `gorm:"column:type;not null"`
	Payload     string     `gorm:"column:payload;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	Delivered   bool       `gorm:"column:delivered;not null;default:false;index:idx_outbox_pending,priority:2"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
}

func (OutboxEventEntity) TableName() string {
	return "outbox_events"
}

func toOutboxEventEntity(e *model.OutboxEvent) *OutboxEventEntity {
	if e == nil {
		return nil
	}
	return &OutboxEventEntity{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Type:        string(e.Type),
		Payload:     string(e.Payload),
		CreatedAt:   e.CreatedAt,
		Delivered:   e.Delivered,
		DeliveredAt: e.DeliveredAt,
	}
}

func toOutboxEventModel(e *OutboxEventEntity) *model.OutboxEvent {
	if e == nil {
		return nil
	}
	return &model.OutboxEvent{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Type:        model.EventType(e.Type),
		Payload:     json.RawMessage(e.Payload),
		CreatedAt:   e.CreatedAt,
		Delivered:   e.Delivered,
		DeliveredAt: e.DeliveredAt,
	}
}
