package repository

import (
	"time"

	"github.com/lib/pq"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type ContactEntity struct {
	TenantID       string         `gorm:"primaryKey;column:tenant_id;size:64"`
	ExternalUserID string         `gorm:"primaryKey;column:external_user_id;size:128"`
	Name           string         `gorm:"column:name;not null;default:''"`
	Phone          string         `gorm:"column:phone;not null;default:''"`
	Email          string         `gorm:"column:email;not null;default:''"`
	GroupIDs       pq.StringArray `gorm:"column:group_ids;type:text[]"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (ContactEntity) TableName() string {
	return "contacts"
}

type GroupEntity struct {
	TenantID              string         `gorm:"primaryKey;column:tenant_id;size:64"`
	ExternalGroupID       string         `gorm:"primaryKey;column:external_group_id;size:128"`
	Name                  string         `gorm:"column:name;not null;default:''"`
	MemberExternalUserIDs pq.StringArray `gorm:"column:member_external_user_ids;type:text[]"`
	StartDate             *time.Time     `gorm:"column:start_date"`
	EndDate               *time.Time     `gorm:"column:end_date"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (GroupEntity) TableName() string {
	return "contact_groups"
}

func toContactModel(e *ContactEntity) *model.Contact {
	return &model.Contact{
		ExternalUserID: e.ExternalUserID,
		Name:           e.Name,
		Phone:          e.Phone,
		Email:          e.Email,
		GroupIDs:       []string(e.GroupIDs),
		UpdatedAt:      e.UpdatedAt,
	}
}

func toContactEntity(tenantID string, c *model.Contact) *ContactEntity {
	return &ContactEntity{
		TenantID:       tenantID,
		ExternalUserID: c.ExternalUserID,
		Name:           c.Name,
		Phone:          c.Phone,
		Email:          c.Email,
		GroupIDs:       pq.StringArray(c.GroupIDs),
	}
}

func toGroupModel(e *GroupEntity) *model.Group {
	return &model.Group{
		ExternalGroupID:       e.ExternalGroupID,
		Name:                  e.Name,
		MemberExternalUserIDs: []string(e.MemberExternalUserIDs),
		StartDate:             e.StartDate,
		EndDate:               e.EndDate,
		UpdatedAt:             e.UpdatedAt,
	}
}

func toGroupEntity(tenantID string, g *model.Group) *GroupEntity {
	return &GroupEntity{
		TenantID:              tenantID,
		ExternalGroupID:       g.ExternalGroupID,
		Name:                  g.Name,
		MemberExternalUserIDs: pq.StringArray(g.MemberExternalUserIDs),
		StartDate:             g.StartDate,
		EndDate:               g.EndDate,
	}
}
