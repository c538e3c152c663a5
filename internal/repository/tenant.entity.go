package repository

import (
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type TenantEntity struct {
	ID             string            `gorm:"primaryKey;column:id;size:64"`
	Name           string            `gorm:"column:name;not null;default:''"`
	SmsProvider    string            `gorm:"column:sms_provider;not null;default:''"`
	SmsProviders   map[string]string `gorm:"column:sms_providers;serializer:json"`
	SmsFrom        string            `gorm:"column:sms_from;not null;default:''"`
	HostWebhookURL string            `gorm:"column:host_webhook_url;not null;default:''"`
	APIKey         string            `gorm:"column:api_key;not null;default:''"`
	NoCode         bool              `gorm:"column:no_code;not null;default:false"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantEntity) TableName() string {
	return "tenants"
}

type InstallEntity struct {
	TenantID       string    `gorm:"primaryKey;column:tenant_id;size:64"`
	InstallID      string    `gorm:"primaryKey;column:install_id;size:64"`
	HostWebhookURL string    `gorm:"column:host_webhook_url;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (InstallEntity) TableName() string {
	return "tenant_installs"
}

func toTenantEntity(t *model.Tenant) *TenantEntity {
	if t == nil {
		return nil
	}
	return &TenantEntity{
		ID:             t.ID,
		Name:           t.Name,
		SmsProvider:    t.SmsProvider,
		SmsProviders:   t.SmsProviders,
		SmsFrom:        t.SmsFrom,
		HostWebhookURL: t.HostWebhookURL,
		APIKey:         t.APIKey,
		NoCode:         t.NoCode,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toTenantModel(e *TenantEntity) *model.Tenant {
	if e == nil {
		return nil
	}
	return &model.Tenant{
		ID:             e.ID,
		Name:           e.Name,
		SmsProvider:    e.SmsProvider,
		SmsProviders:   e.SmsProviders,
		SmsFrom:        e.SmsFrom,
		HostWebhookURL: e.HostWebhookURL,
		APIKey:         e.APIKey,
		NoCode:         e.NoCode,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toInstallModel(e *InstallEntity) *model.Install {
	if e == nil {
		return nil
	}
	return &model.Install{
		TenantID:       e.TenantID,
		InstallID:      e.InstallID,
		HostWebhookURL: e.HostWebhookURL,
		CreatedAt:      e.CreatedAt,
	}
}
