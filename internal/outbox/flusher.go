package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/prom"
)

const (
	DefaultBatchSize = 50

	IdempotencyHeader = "Idempotency-Key"
)

type TenantSource interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
	GetInstall(ctx context.Context, tenantID, installID string) (*model.Install, error)
}

type EventStore interface {
	ListUndelivered(ctx context.Context, tenantID string, limit int) ([]*model.OutboxEvent, error)
	MarkDelivered(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
}

type FlusherConfig struct {
	BatchSize int
	Timeout   time.Duration
}

// Flusher posts undelivered outbox events to the host webhook. Events are
// marked delivered only after a 2xx answer, everything else is retried by
// a later flush.
type Flusher struct {
	tenants  TenantSource
	events   EventStore
	receipts *Receipts
	client   *fasthttp.Client
	config   FlusherConfig
	now      func() time.Time
}

func NewFlusher(tenants TenantSource, events EventStore, config FlusherConfig) *Flusher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Flusher{
		tenants: tenants,
		events:  events,
		config:  config,
		client: &fasthttp.Client{
			Name:                "sms-widget-gateway",
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		now: time.Now,
	}
}

// WithReceipts enables redis delivery receipts.
func (f *Flusher) WithReceipts(r *Receipts) *Flusher {
	f.receipts = r
	return f
}

// WebhookURL resolves where events of a tenant go. An install record wins
// over the tenant URL even when its own URL is empty. An unknown tenant has
// no URL.
func (f *Flusher) WebhookURL(ctx context.Context, tenantID, installID string) (string, error) {
	if installID != "" {
		install, err := f.tenants.GetInstall(ctx, tenantID, installID)
		switch {
		case err == nil:
			return install.HostWebhookURL, nil
		case !errors.Is(err, repository.ErrInstallNotFound):
			return "", err
		}
	}

	tenant, err := f.tenants.Get(ctx, tenantID)
	if errors.Is(err, repository.ErrTenantNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tenant.HostWebhookURL, nil
}

// Flush delivers one batch of undelivered events and returns how many
// were acknowledged.
func (f *Flusher) Flush(ctx context.Context, tenantID, installID string) (int, error) {
	start := time.Now()
	defer func() { prom.ObserveOutboxFlush(time.Since(start).Seconds()) }()

	url, err := f.WebhookURL(ctx, tenantID, installID)
	if err != nil {
		return 0, err
	}
	if url == "" {
		return 0, nil
	}

	events, err := f.events.ListUndelivered(ctx, tenantID, f.config.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered, failed := 0, 0
	for _, evt := range events {
		if ctx.Err() != nil {
			break
		}
		ok, err := f.deliver(ctx, url, evt)
		if err != nil {
			failed++
			logger.Warn("[outbox] webhook delivery failed", "tenant", tenantID, "event", evt.ID, "type", evt.Type, "error", err)
			continue
		}
		if ok {
			delivered++
		}
	}

	prom.AddOutboxDeliveries("delivered", delivered)
	prom.AddOutboxDeliveries("failed", failed)
	if len(events) > 0 {
		logger.Info("[outbox] flushed", "tenant", tenantID, "install", installID, "batch", len(events), "delivered", delivered, "failed", failed)
	}
	return delivered, nil
}

func (f *Flusher) deliver(ctx context.Context, url string, evt *model.OutboxEvent) (bool, error) {
	key := evt.IdempotencyKey()

	var claim *Claim
	if f.receipts != nil {
		c, err := f.receipts.Acquire(ctx, key)
		switch {
		case errors.Is(err, ErrAlreadyAcknowledged):
			// host has it, only the db update was lost
			return f.markDelivered(ctx, evt)
		case errors.Is(err, ErrLockHeld):
			return false, nil
		}
		claim = c
	}

	if err := f.post(ctx, url, key, evt); err != nil {
		_ = claim.Release(ctx)
		return false, err
	}

	if claim != nil {
		_ = claim.Acknowledge(ctx)
	}
	return f.markDelivered(ctx, evt)
}

func (f *Flusher) markDelivered(ctx context.Context, evt *model.OutboxEvent) (bool, error) {
	ok, err := f.events.MarkDelivered(ctx, evt.TenantID, evt.ID, f.now().UTC())
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (f *Flusher) post(ctx context.Context, url, key string, evt *model.OutboxEvent) error {
	body, err := json.Marshal(model.WebhookEnvelope{
		Type:     evt.Type,
		Payload:  evt.Payload,
		TenantID: evt.TenantID,
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(IdempotencyHeader, key)
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > f.config.Timeout {
		deadline = time.Now().Add(f.config.Timeout)
	}
	if err := f.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("webhook answered %d", code)
	}
	return nil
}
