package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
)

type OutboxRepository struct {
	*pg.DB
}

func NewOutboxRepository(db *pg.DB) *OutboxRepository {
	return &OutboxRepository{
		db,
	}
}

// Append stores new undelivered events. Missing ids and timestamps are filled in
// on the passed events.
func (r *OutboxRepository) Append(ctx context.Context, events ...*model.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	entities := make([]*OutboxEventEntity, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.Delivered = false
		e.DeliveredAt = nil
		entities[i] = toOutboxEventEntity(e)
	}
	if err := r.Write(ctx).Create(&entities).Error; err != nil {
		return errors.Wrap(err, "append outbox events")
	}
	return nil
}

// ListUndelivered returns up to limit undelivered events of the tenant, in no
// particular order.
func (r *OutboxRepository) ListUndelivered(ctx context.Context, tenantID string, limit int) ([]*model.OutboxEvent, error) {
	var entities []*OutboxEventEntity
	err := r.Read(ctx).
		Where("tenant_id = ? AND delivered = ?", tenantID, false).
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list undelivered events of %s", tenantID)
	}
	events := make([]*model.OutboxEvent, len(entities))
	for i, e := range entities {
		events[i] = toOutboxEventModel(e)
	}
	return events, nil
}

// MarkDelivered flips the delivered flag once. It reports whether this call did it.
func (r *OutboxRepository) MarkDelivered(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	res := r.Write(ctx).Model(&OutboxEventEntity{}).
		Where("tenant_id = ? AND id = ? AND delivered = ?", tenantID, id, false).
		Updates(map[string]any{"delivered": true, "delivered_at": at})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "mark event %s delivered", id)
	}
	return res.RowsAffected == 1, nil
}

// PendingTenants lists tenants that still have undelivered events.
func (r *OutboxRepository) PendingTenants(ctx context.Context, limit int) ([]string, error) {
	var tenants []string
	err := r.Read(ctx).Model(&OutboxEventEntity{}).
		Where("delivered = ?", false).
		Distinct("tenant_id").
		Order("tenant_id").
		Limit(limit).
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, errors.Wrap(err, "list tenants with pending events")
	}
	return tenants, nil
}

func (r *OutboxRepository) CountUndelivered(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&OutboxEventEntity{}).
		Where("tenant_id = ? AND delivered = ?", tenantID, false).
		Count(&n).Error
	return n, errors.Wrapf(err, "count undelivered events of %s", tenantID)
}
