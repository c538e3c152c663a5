package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrInstallNotFound = errors.New("install not found")
)

type TenantRepository struct {
	*pg.DB
}

func NewTenantRepository(db *pg.DB) *TenantRepository {
	return &TenantRepository{
		db,
	}
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*model.Tenant, error) {
	var entity TenantEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tenant %s", id)
	}
	return toTenantModel(&entity), nil
}

// List returns every tenant ordered by id. Inbound sender matching scans this list.
func (r *TenantRepository) List(ctx context.Context) ([]*model.Tenant, error) {
	var entities []*TenantEntity
	if err := r.Read(ctx).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, errors.Wrap(err, "list tenants")
	}
	tenants := make([]*model.Tenant, len(entities))
	for i, e := range entities {
		tenants[i] = toTenantModel(e)
	}
	return tenants, nil
}

// Save inserts the tenant or overwrites every column of an existing one.
func (r *TenantRepository) Save(ctx context.Context, tenant *model.Tenant) (*model.Tenant, error) {
	entity := toTenantEntity(tenant)
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(entity).Error
	if err != nil {
		return nil, errors.Wrapf(err, "save tenant %s", tenant.ID)
	}
	return toTenantModel(entity), nil
}

func (r *TenantRepository) GetInstall(ctx context.Context, tenantID, installID string) (*model.Install, error) {
	var entity InstallEntity
	err := r.Read(ctx).
		Where("tenant_id = ? AND install_id = ?", tenantID, installID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInstallNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get install %s/%s", tenantID, installID)
	}
	return toInstallModel(&entity), nil
}

func (r *TenantRepository) SaveInstall(ctx context.Context, install *model.Install) error {
	entity := &InstallEntity{
		TenantID:       install.TenantID,
		InstallID:      install.InstallID,
		HostWebhookURL: install.HostWebhookURL,
	}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "install_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"host_webhook_url"}),
	}).Create(entity).Error
	return errors.Wrapf(err, "save install %s/%s", install.TenantID, install.InstallID)
}
