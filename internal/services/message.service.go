package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nimasrn/sms-widget-gateway/internal/carriers"
	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/pkg/ids"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/prom"
)

type TenantRepository interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
	List(ctx context.Context) ([]*model.Tenant, error)
}

type ThreadRepository interface {
	GetOrCreate(ctx context.Context, thread *model.Thread) (*model.Thread, error)
	Touch(ctx context.Context, tenantID, id string, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	MarkSent(ctx context.Context, id string, status model.MessageStatus, externalID string) error
	MarkFailed(ctx context.Context, id string, detail string) error
}

type OutboxRepository interface {
	Append(ctx context.Context, events ...*model.OutboxEvent) error
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CarrierSender interface {
	Send(ctx context.Context, key string, req carriers.SendRequest) (carriers.SendResult, error)
}

// Dispatcher starts an outbox flush for a tenant in the background. Trigger
// must not block and has no result.
type Dispatcher interface {
	Trigger(tenantID string)
}

type MessageService struct {
	tenants    TenantRepository
	threads    ThreadRepository
	messages   MessageRepository
	outbox     OutboxRepository
	tx         Transactor
	carriers   CarrierSender
	dispatcher Dispatcher

	// sender used for inbound matching when a tenant has none
	fallbackSender string
	now            func() time.Time
}

func NewMessageService(
	tenants TenantRepository,
	threads ThreadRepository,
	messages MessageRepository,
	outbox OutboxRepository,
	tx Transactor,
	carriers CarrierSender,
	dispatcher Dispatcher,
) *MessageService {
	return &MessageService{
		tenants:    tenants,
		threads:    threads,
		messages:   messages,
		outbox:     outbox,
		tx:         tx,
		carriers:   carriers,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithFallbackSender sets the number tenants without their own sender are
// reachable on, usually SMS_TWILIO_FROM.
func (s *MessageService) WithFallbackSender(number string) *MessageService {
	s.fallbackSender = number
	return s
}

// NormalizeStatus maps a carrier status onto the message lifecycle. Only
// explicit queued equivalents stay queued.
func NormalizeStatus(carrierStatus string) model.MessageStatus {
	switch strings.ToLower(strings.TrimSpace(carrierStatus)) {
	case "queued", "accepted", "pending", "scheduled":
		return model.MessageStatusQueued
	default:
		return model.MessageStatusSent
	}
}

func (s *MessageService) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.ToPhone = strings.TrimSpace(req.ToPhone)

	tenant, err := s.tenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	threadID := req.ThreadID
	if threadID == "" {
		if threadID, err = model.ThreadIDForPhone(req.ToPhone); err != nil {
			return nil, err
		}
	}

	createdAt := s.now()
	msg := &model.Message{
		ID:              ids.WithPrefix(model.MessageIDPrefix),
		TenantID:        tenant.ID,
		ThreadID:        threadID,
		Direction:       model.DirectionOutbound,
		Body:            req.Body,
		Status:          model.MessageStatusQueued,
		Phone:           req.ToPhone,
		ExternalUserID:  req.ExternalUserID,
		GroupExternalID: req.GroupExternalID,
		BroadcastID:     req.BroadcastID,
		CreatedAt:       createdAt,
	}

	// the queued record must exist before the carrier is contacted
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.threads.GetOrCreate(ctx, &model.Thread{
			TenantID:       tenant.ID,
			ID:             threadID,
			Phone:          req.ToPhone,
			ExternalUserID: req.ExternalUserID,
			LastMessageAt:  createdAt,
		})
		if err != nil {
			return err
		}
		_, err = s.messages.Create(ctx, msg)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "store queued message")
	}

	carrierKey := carriers.Resolve(tenant, req.ToPhone)
	res, sendErr := s.carriers.Send(ctx, carrierKey, carriers.SendRequest{
		To:   req.ToPhone,
		Body: req.Body,
		From: tenant.SmsFrom,
	})
	if sendErr != nil {
		if err := s.messages.MarkFailed(ctx, msg.ID, sendErr.Error()); err != nil {
			logger.Error("failed to mark message failed", "message_id", msg.ID, "error", err)
		}
		prom.IncMessages(string(model.DirectionOutbound), string(model.MessageStatusFailed))
		return nil, &CarrierError{MessageID: msg.ID, ThreadID: threadID, Carrier: carrierKey, Err: sendErr}
	}

	status := NormalizeStatus(res.Status)
	sent, err := newEvent(tenant.ID, model.EventMessageSent, model.MessageSentPayload{
		MessageID:       msg.ID,
		ThreadID:        threadID,
		Body:            req.Body,
		Status:          status,
		ExternalID:      res.ExternalID,
		ToPhone:         req.ToPhone,
		ExternalUserID:  req.ExternalUserID,
		GroupExternalID: req.GroupExternalID,
		BroadcastID:     req.BroadcastID,
	})
	if err != nil {
		return nil, err
	}
	statusEvt, err := newEvent(tenant.ID, model.EventMessageStatus, model.MessageStatusPayload{
		MessageID: msg.ID,
		Status:    status,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.messages.MarkSent(ctx, msg.ID, status, res.ExternalID); err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, sent, statusEvt); err != nil {
			return err
		}
		return s.threads.Touch(ctx, tenant.ID, threadID, s.now())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "record carrier result of %s", msg.ID)
	}

	prom.IncMessages(string(model.DirectionOutbound), string(status))
	logger.Info("message sent", "tenant", tenant.ID, "message_id", msg.ID, "thread_id", threadID, "carrier", carrierKey, "status", status)
	s.dispatcher.Trigger(tenant.ID)

	return &model.SendResult{
		MessageID:  msg.ID,
		ThreadID:   threadID,
		Status:     status,
		ExternalID: res.ExternalID,
	}, nil
}

// Inbound stores a message received from a counterparty of a known tenant.
func (s *MessageService) Inbound(ctx context.Context, req model.InboundRequest) (*model.InboundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.tenant(ctx, req.TenantID); err != nil {
		return nil, err
	}
	return s.storeInbound(ctx, req)
}

// InboundForNumber stores a carrier delivered message. The tenant is the first,
// by id, whose sender number has the same digits as toPhone.
func (s *MessageService) InboundForNumber(ctx context.Context, toPhone, fromPhone, body string) (*model.InboundResult, error) {
	tenant, err := s.TenantForNumber(ctx, toPhone)
	if err != nil {
		return nil, err
	}
	return s.storeInbound(ctx, model.InboundRequest{TenantID: tenant.ID, FromPhone: fromPhone, Body: body})
}

func (s *MessageService) TenantForNumber(ctx context.Context, number string) (*model.Tenant, error) {
	want := model.Digits(number)
	if want == "" {
		return nil, ErrNoTenantForNumber
	}
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		from := t.SmsFrom
		if from == "" {
			from = s.fallbackSender
		}
		if from != "" && model.Digits(from) == want {
			return t, nil
		}
	}
	return nil, ErrNoTenantForNumber
}

func (s *MessageService) storeInbound(ctx context.Context, req model.InboundRequest) (*model.InboundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.FromPhone = strings.TrimSpace(req.FromPhone)
	threadID, err := model.ThreadIDForPhone(req.FromPhone)
	if err != nil {
		return nil, err
	}

	at := s.now()
	msg := &model.Message{
		ID:        ids.WithPrefix(model.MessageIDPrefix),
		TenantID:  req.TenantID,
		ThreadID:  threadID,
		Direction: model.DirectionInbound,
		Body:      req.Body,
		Status:    model.MessageStatusDelivered,
		Phone:     req.FromPhone,
		CreatedAt: at,
	}
	inbound, err := newEvent(req.TenantID, model.EventMessageInbound, model.MessageInboundPayload{
		MessageID: msg.ID,
		ThreadID:  threadID,
		FromPhone: req.FromPhone,
		Body:      req.Body,
	})
	if err != nil {
		return nil, err
	}
	updated, err := newEvent(req.TenantID, model.EventThreadUpdated, model.ThreadUpdatedPayload{
		ThreadID:      threadID,
		LastMessageAt: at,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.threads.GetOrCreate(ctx, &model.Thread{
			TenantID:      req.TenantID,
			ID:            threadID,
			Phone:         req.FromPhone,
			LastMessageAt: at,
		})
		if err != nil {
			return err
		}
		if _, err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		if err := s.threads.Touch(ctx, req.TenantID, threadID, at); err != nil {
			return err
		}
		return s.outbox.Append(ctx, inbound, updated)
	})
	if err != nil {
		return nil, errors.Wrap(err, "store inbound message")
	}

	prom.IncMessages(string(model.DirectionInbound), string(model.MessageStatusDelivered))
	logger.Info("inbound message stored", "tenant", req.TenantID, "message_id", msg.ID, "thread_id", threadID)
	s.dispatcher.Trigger(req.TenantID)

	return &model.InboundResult{MessageID: msg.ID, ThreadID: threadID}, nil
}

func (s *MessageService) tenant(ctx context.Context, id string) (*model.Tenant, error) {
	t, err := s.tenants.Get(ctx, id)
	if errors.Is(err, repository.ErrTenantNotFound) {
		return nil, ErrTenantNotFound
	}
	return t, err
}

func newEvent(tenantID string, typ model.EventType, payload any) (*model.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", typ)
	}
	return &model.OutboxEvent{
		TenantID: tenantID,
		Type:     typ,
		Payload:  raw,
	}, nil
}
