package repository

import (
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type MessageEntity struct {
	ID              string    `gorm:"primaryKey;column:id;size:64"`
	TenantID        string    `gorm:"column:tenant_id;not null;index:idx_messages_thread,priority:1"`
	ThreadID        string    `gorm:"column:thread_id;not null;index:idx_messages_thread,priority:2"`
	Direction       string    `gorm:"column:direction;not null"`
	Body            string    `gorm:"column:body;not null"`
	Status          string    `gorm:"column:status;not null"`
	Error           string    `gorm:"column:error;not null;default:''"`
	ExternalID      string    `gorm:"column:external_id;not null;default:''"`
	Phone           string    `gorm:"column:phone;not null;default:''"`
	ExternalUserID  string    `gorm:"column:external_user_id;not null;default:''"`
	GroupExternalID string    `gorm:"column:group_external_id;not null;default:''"`
	BroadcastID     string    `gorm:"column:broadcast_id;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index:idx_messages_thread,priority:3"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ThreadID:        m.ThreadID,
		Direction:       string(m.Direction),
		Body:            m.Body,
		Status:          string(m.Status),
		Error:           m.Error,
		ExternalID:      m.ExternalID,
		Phone:           m.Phone,
		ExternalUserID:  m.ExternalUserID,
		GroupExternalID: m.GroupExternalID,
		BroadcastID:     m.BroadcastID,
		CreatedAt:       m.CreatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:              e.ID,
		TenantID:        e.TenantID,
		ThreadID:        e.ThreadID,
		Direction:       model.Direction(e.Direction),
		Body:            e.Body,
		Status:          model.MessageStatus(e.Status),
		Error:           e.Error,
		ExternalID:      e.ExternalID,
		Phone:           e.Phone,
		ExternalUserID:  e.ExternalUserID,
		GroupExternalID: e.GroupExternalID,
		BroadcastID:     e.BroadcastID,
		CreatedAt:       e.CreatedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
