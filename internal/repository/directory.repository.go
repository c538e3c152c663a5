package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
)

// DirectoryRepository holds the host's contacts and groups per tenant.
type DirectoryRepository struct {
	*pg.DB
}

func NewDirectoryRepository(db *pg.DB) *DirectoryRepository {
	return &DirectoryRepository{
		db,
	}
}

func (r *DirectoryRepository) Contacts(ctx context.Context, tenantID string) ([]*model.Contact, error) {
	var entities []*ContactEntity
	err := r.Read(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&entities).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list contacts of %s", tenantID)
	}
	contacts := make([]*model.Contact, len(entities))
	for i, e := range entities {
		contacts[i] = toContactModel(e)
	}
	return contacts, nil
}

func (r *DirectoryRepository) Groups(ctx context.Context, tenantID string) ([]*model.Group, error) {
	var entities []*GroupEntity
	err := r.Read(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&entities).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list groups of %s", tenantID)
	}
	groups := make([]*model.Group, len(entities))
	for i, e := range entities {
		groups[i] = toGroupModel(e)
	}
	return groups, nil
}

func (r *DirectoryRepository) SaveContacts(ctx context.Context, tenantID string, contacts []*model.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	entities := make([]*ContactEntity, len(contacts))
	for i, c := range contacts {
		entities[i] = toContactEntity(tenantID, c)
	}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "external_user_id"}},
		UpdateAll: true,
	}).Create(&entities).Error
	return errors.Wrapf(err, "save contacts of %s", tenantID)
}

func (r *DirectoryRepository) SaveGroups(ctx context.Context, tenantID string, groups []*model.Group) error {
	if len(groups) == 0 {
		return nil
	}
	entities := make([]*GroupEntity, len(groups))
	for i, g := range groups {
		entities[i] = toGroupEntity(tenantID, g)
	}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "external_group_id"}},
		UpdateAll: true,
	}).Create(&entities).Error
	return errors.Wrapf(err, "save groups of %s", tenantID)
}
