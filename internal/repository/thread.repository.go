package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
)

const maxThreadList = 100

var ErrThreadNotFound = errors.New("thread not found")

type ThreadRepository struct {
	*pg.DB
}

func NewThreadRepository(db *pg.DB) *ThreadRepository {
	return &ThreadRepository{
		db,
	}
}

// GetOrCreate inserts the thread unless (tenant_id, id) already exists and
// returns the stored row. A missing external user id is filled in when the
// caller knows it.
func (r *ThreadRepository) GetOrCreate(ctx context.Context, thread *model.Thread) (*model.Thread, error) {
	entity := toThreadEntity(thread)
	if entity.LastMessageAt.IsZero() {
		entity.LastMessageAt = time.Now().UTC()
	}

	db := r.Write(ctx)
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(entity).Error
	if err != nil {
		return nil, errors.Wrapf(err, "insert thread %s", thread.ID)
	}

	var stored ThreadEntity
	if err := db.Where("tenant_id = ? AND id = ?", thread.TenantID, thread.ID).First(&stored).Error; err != nil {
		return nil, errors.Wrapf(err, "load thread %s", thread.ID)
	}

	if stored.ExternalUserID == "" && thread.ExternalUserID != "" {
		err := db.Model(&ThreadEntity{}).
			Where("tenant_id = ? AND id = ?", thread.TenantID, thread.ID).
			Update("external_user_id", thread.ExternalUserID).Error
		if err != nil {
			return nil, errors.Wrapf(err, "set external user of thread %s", thread.ID)
		}
		stored.ExternalUserID = thread.ExternalUserID
	}
	return toThreadModel(&stored), nil
}

func (r *ThreadRepository) Get(ctx context.Context, tenantID, id string) (*model.Thread, error) {
	var entity ThreadEntity
	err := r.Read(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get thread %s", id)
	}
	return toThreadModel(&entity), nil
}

// Touch moves last_message_at forward to at. Older timestamps are ignored.
func (r *ThreadRepository) Touch(ctx context.Context, tenantID, id string, at time.Time) error {
	err := r.Write(ctx).Model(&ThreadEntity{}).
		Where("tenant_id = ? AND id = ? AND last_message_at < ?", tenantID, id, at).
		Update("last_message_at", at).Error
	return errors.Wrapf(err, "touch thread %s", id)
}

// ListByTenant returns the most recently active threads first.
func (r *ThreadRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Thread, error) {
	if limit <= 0 || limit > maxThreadList {
		limit = maxThreadList
	}
	var entities []*ThreadEntity
	err := r.Read(ctx).
		Where("tenant_id = ?", tenantID).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list threads of %s", tenantID)
	}
	return toThreadModels(entities), nil
}
