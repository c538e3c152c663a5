package repository

import (
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type ThreadEntity struct {
	TenantID       string    `gorm:"primaryKey;column:tenant_id;size:64"`
	ID             string    `gorm:"primaryKey;column:id;size:64"`
	Phone          string    `gorm:"column:phone;not null"`
	ExternalUserID string    `gorm:"column:external_user_id;not null;default:''"`
	LastMessageAt  time.Time `gorm:"column:last_message_at;not null;index:idx_threads_tenant_last,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ThreadEntity) TableName() string {
	return "threads"
}

func toThreadEntity(t *model.Thread) *ThreadEntity {
	if t == nil {
		return nil
	}
	return &ThreadEntity{
		TenantID:       t.TenantID,
		ID:             t.ID,
		Phone:          t.Phone,
		ExternalUserID: t.ExternalUserID,
		LastMessageAt:  t.LastMessageAt,
		CreatedAt:      t.CreatedAt,
	}
}

func toThreadModel(e *ThreadEntity) *model.Thread {
	if e == nil {
		return nil
	}
	return &model.Thread{
		TenantID:       e.TenantID,
		ID:             e.ID,
		Phone:          e.Phone,
		ExternalUserID: e.ExternalUserID,
		LastMessageAt:  e.LastMessageAt,
		CreatedAt:      e.CreatedAt,
	}
}

func toThreadModels(entities []*ThreadEntity) []*model.Thread {
	models := make([]*model.Thread, len(entities))
	for i, e := range entities {
		models[i] = toThreadModel(e)
	}
	return models
}
