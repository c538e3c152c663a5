package repository

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
)

const maxMessageList = 500

var (
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrStatusConflict is returned when a terminal transition finds the
	// message no longer queued.
	ErrStatusConflict = errors.New("message is not queued")
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, errors.Wrapf(err, "create message %s", msg.ID)
	}

	return toMessageModel(entity), nil
}

func (r *MessageRepository) Get(ctx context.Context, tenantID, id string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get message %s", id)
	}
	return toMessageModel(&entity), nil
}

// MarkSent records the carrier outcome of a queued outbound message. status
// may stay queued when the carrier only accepted the message.
func (r *MessageRepository) MarkSent(ctx context.Context, id string, status model.MessageStatus, externalID string) error {
	return r.transition(ctx, id, map[string]any{
		"status":      string(status),
		"external_id": externalID,
	})
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id string, detail string) error {
	return r.transition(ctx, id, map[string]any{
		"status": string(model.MessageStatusFailed),
		"error":  detail,
	})
}

func (r *MessageRepository) transition(ctx context.Context, id string, fields map[string]any) error {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id = ? AND direction = ? AND status = ?", id, string(model.DirectionOutbound), string(model.MessageStatusQueued)).
		Updates(fields)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update message %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ListByThread returns the thread's messages oldest first.
func (r *MessageRepository) ListByThread(ctx context.Context, tenantID, threadID string, limit int) ([]*model.Message, error) {
	return r.ListByThreads(ctx, tenantID, []string{threadID}, limit)
}

// ListByThreads returns the newest messages of several threads in one
// ascending list.
func (r *MessageRepository) ListByThreads(ctx context.Context, tenantID string, threadIDs []string, limit int) ([]*model.Message, error) {
	if len(threadIDs) == 0 {
		return []*model.Message{}, nil
	}
	if limit <= 0 || limit > maxMessageList {
		limit = maxMessageList
	}

	var entities []*MessageEntity
	err := r.Read(ctx).
		Where("tenant_id = ? AND thread_id IN ?", tenantID, threadIDs).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list messages of %s", tenantID)
	}
	slices.Reverse(entities)
	return toMessageModels(entities), nil
}
