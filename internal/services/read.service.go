package services

import (
	"context"
	"crypto/subtle"

	"github.com/pkg/errors"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
)

// MaxBatchThreads bounds the batched message read of a group view.
const MaxBatchThreads = 50

type TenantGetter interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
}

type ThreadLister interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Thread, error)
}

type MessageLister interface {
	ListByThread(ctx context.Context, tenantID, threadID string, limit int) ([]*model.Message, error)
	ListByThreads(ctx context.Context, tenantID string, threadIDs []string, limit int) ([]*model.Message, error)
}

type DirectoryReader interface {
	Contacts(ctx context.Context, tenantID string) ([]*model.Contact, error)
	Groups(ctx context.Context, tenantID string) ([]*model.Group, error)
}

// ReadService backs the widget's polling endpoints. Every read checks the
// tenant access key first.
type ReadService struct {
	tenants   TenantGetter
	threads   ThreadLister
	messages  MessageLister
	directory DirectoryReader
}

func NewReadService(tenants TenantGetter, threads ThreadLister, messages MessageLister, directory DirectoryReader) *ReadService {
	return &ReadService{
		tenants:   tenants,
		threads:   threads,
		messages:  messages,
		directory: directory,
	}
}

// Authorize checks apiKey against the tenant's access key. Tenants without a
// key, and unknown tenants, are readable by anyone.
func (s *ReadService) Authorize(ctx context.Context, tenantID, apiKey string) error {
	if !model.IsValidID(tenantID) {
		return model.ErrInvalidTenantID
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if errors.Is(err, repository.ErrTenantNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if tenant.APIKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(tenant.APIKey), []byte(apiKey)) != 1 {
		return ErrForbidden
	}
	return nil
}

func (s *ReadService) Threads(ctx context.Context, tenantID, apiKey string) ([]*model.Thread, error) {
	if err := s.Authorize(ctx, tenantID, apiKey); err != nil {
		return nil, err
	}
	return s.threads.ListByTenant(ctx, tenantID, 0)
}

func (s *ReadService) ThreadMessages(ctx context.Context, tenantID, threadID, apiKey string) ([]*model.Message, error) {
	if !model.IsValidID(threadID) {
		return nil, model.ErrInvalidThreadID
	}
	if err := s.Authorize(ctx, tenantID, apiKey); err != nil {
		return nil, err
	}
	return s.messages.ListByThread(ctx, tenantID, threadID, 0)
}

// Messages returns the messages of up to MaxBatchThreads threads in one list
// ordered by creation time.
func (s *ReadService) Messages(ctx context.Context, tenantID string, threadIDs []string, apiKey string) ([]*model.Message, error) {
	if len(threadIDs) > MaxBatchThreads {
		return nil, ErrTooManyThreads
	}
	for _, id := range threadIDs {
		if !model.IsValidID(id) {
			return nil, model.ErrInvalidThreadID
		}
	}
	if err := s.Authorize(ctx, tenantID, apiKey); err != nil {
		return nil, err
	}
	if len(threadIDs) == 0 {
		return []*model.Message{}, nil
	}
	return s.messages.ListByThreads(ctx, tenantID, threadIDs, 0)
}

// TenantData returns the host directory mirrored for no-code installs.
func (s *ReadService) TenantData(ctx context.Context, tenantID, apiKey string) (*model.TenantData, error) {
	if err := s.Authorize(ctx, tenantID, apiKey); err != nil {
		return nil, err
	}
	contacts, err := s.directory.Contacts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	groups, err := s.directory.Groups(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &model.TenantData{Contacts: contacts, Groups: groups}, nil
}
