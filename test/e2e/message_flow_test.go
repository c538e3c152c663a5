package e2e

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/bridge"
	"github.com/nimasrn/sms-widget-gateway/internal/carriers"
	"github.com/nimasrn/sms-widget-gateway/internal/handlers"
	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/outbox"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/internal/services"
	"github.com/nimasrn/sms-widget-gateway/internal/widget"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
	"github.com/nimasrn/sms-widget-gateway/test/helpers"
)

const (
	tenantID   = "acme"
	apiKey     = "sk_e2e"
	hostOrigin = "https://host.example"
	phone      = "+4799999999"
	threadID   = "thread_4799999999"
)

type webhookCall struct {
	Key      string
	Envelope model.WebhookEnvelope
}

// hostWebhook plays the host backend receiving outbox events.
type hostWebhook struct {
	mu    sync.Mutex
	calls []webhookCall
}

func (h *hostWebhook) handle(ctx *fasthttp.RequestCtx) {
	var env model.WebhookEnvelope
	_ = json.Unmarshal(ctx.PostBody(), &env)
	h.mu.Lock()
	h.calls = append(h.calls, webhookCall{Key: string(ctx.Request.Header.Peek(outbox.IdempotencyHeader)), Envelope: env})
	h.mu.Unlock()
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (h *hostWebhook) ofType(t model.EventType) []webhookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []webhookCall
	for _, c := range h.calls {
		if c.Envelope.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// hostPage records what the widget posts to the embedding page.
type hostPage struct {
	mu   sync.Mutex
	sent []bridge.Message
}

func (p *hostPage) Post(msg bridge.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *hostPage) events(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.sent {
		if m.Type == bridge.TypeEvent && m.EventType == eventType {
			n++
		}
	}
	return n
}

func serve(t *testing.T, handler fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })
	return "http://" + ln.Addr().String()
}

type environment struct {
	gatewayURL string
	webhook    *hostWebhook
	page       *hostPage
	engine     *widget.Engine
	outbox     *repository.OutboxRepository
}

func setupEnvironment(t *testing.T) *environment {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db := helpers.SetupTestDB(t, repository.Entities()...)
	_, redisAdapter := helpers.SetupTestRedis(t)

	webhook := &hostWebhook{}
	webhookURL := serve(t, webhook.handle) + "/webhooks/sms"

	tenants := repository.NewTenantRepository(db)
	_, err := tenants.Save(ctx, &model.Tenant{
		ID:             tenantID,
		Name:           "Acme",
		APIKey:         apiKey,
		SmsProvider:    carriers.KeyStub,
		HostWebhookURL: webhookURL,
	})
	require.NoError(t, err)

	threads := repository.NewThreadRepository(db)
	messages := repository.NewMessageRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	directory := repository.NewDirectoryRepository(db)

	flusher := outbox.NewFlusher(tenants, outboxRepo, outbox.FlusherConfig{Timeout: time.Second}).
		WithReceipts(outbox.NewReceipts(redisAdapter, outbox.DefaultReceiptConfig()))
	dispatcher := outbox.NewLocalDispatcher(flusher.Flush, 2, 16)
	dispatcher.Start(ctx)
	t.Cleanup(dispatcher.Stop)

	auth := services.NewBearerAuth("")
	messageService := services.NewMessageService(tenants, threads, messages, outboxRepo, db, carriers.NewRegistry(carriers.Stub{}), dispatcher)
	readService := services.NewReadService(tenants, threads, messages, directory)

	s := xhttp.CreateServer()
	g := s.Router.Group("/api/v1")
	handlers.RegisterMessageRoutes(g, handlers.NewMessageHandler(messageService, auth))
	handlers.RegisterReadRoutes(g, handlers.NewReadHandler(readService))
	handlers.RegisterEventsRoutes(g, handlers.NewEventsHandler(flusher, auth))
	gatewayURL := serve(t, s.BuildHandler()) + "/api/v1"

	page := &hostPage{}
	engine := widget.NewEngine(
		widget.NewStore(widget.NewState(tenantID, "")),
		widget.NewClient(gatewayURL, apiKey, ""),
		bridge.New(tenantID, ""),
		page,
	)
	engine.Start(ctx)
	t.Cleanup(engine.Wait)
	t.Cleanup(cancel)

	return &environment{gatewayURL: gatewayURL, webhook: webhook, page: page, engine: engine, outbox: outboxRepo}
}

func (env *environment) fromHost(t *testing.T, m bridge.Message) {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, env.engine.HandleHostData(hostOrigin, raw))
}

func (env *environment) simulateInbound(t *testing.T, body string) {
	t.Helper()
	raw, err := json.Marshal(model.InboundRequest{TenantID: tenantID, FromPhone: phone, Body: body})
	require.NoError(t, err)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(env.gatewayURL + "/inbound")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(raw)
	require.NoError(t, fasthttp.DoTimeout(req, resp, 2*time.Second))
	require.Equal(t, fasthttp.StatusOK, resp.StatusCode(), string(resp.Body()))
}

func (env *environment) threadPhase() widget.Phase {
	tr := env.engine.Store().Snapshot().ThreadTrackers[threadID]
	if tr == nil {
		return widget.PhaseUnloaded
	}
	return tr.Phase
}

func TestE2E_SendAndReceiveRoundTrip(t *testing.T) {
	env := setupEnvironment(t)

	env.fromHost(t, bridge.NewHostAck(hostOrigin, "tok", nil))
	env.fromHost(t, bridge.NewSetContacts([]model.Contact{{ExternalUserID: "ola", Name: "Ola", Phone: phone}}))
	env.fromHost(t, bridge.NewSetSelection(nil, []string{"ola"}))

	require.Equal(t, threadID, env.engine.Store().Snapshot().CurrentThreadID)
	require.Eventually(t, func() bool { return env.threadPhase() == widget.PhaseLoadedWithBaseline }, 5*time.Second, 10*time.Millisecond)

	// outbound: widget -> gateway -> stub carrier -> outbox -> host webhook
	res, err := env.engine.Send(context.Background(), "Hei Ola")
	require.NoError(t, err)
	assert.Equal(t, threadID, res.ThreadID)
	assert.Equal(t, model.MessageStatusSent, res.Status)

	msgs := env.engine.Store().Snapshot().Messages[threadID]
	require.Len(t, msgs, 1)
	assert.Equal(t, res.MessageID, msgs[0].ID)
	assert.Equal(t, 1, env.page.events(string(model.EventMessageSent)))

	require.Eventually(t, func() bool { return len(env.webhook.ofType(model.EventMessageSent)) == 1 }, 5*time.Second, 10*time.Millisecond)
	sent := env.webhook.ofType(model.EventMessageSent)[0]
	assert.NotEmpty(t, sent.Key)
	assert.Equal(t, tenantID, sent.Envelope.TenantID)

	// inbound: carrier -> gateway -> outbox -> host webhook, widget poll -> host page
	env.simulateInbound(t, "Takk!")
	require.Eventually(t, func() bool { return len(env.webhook.ofType(model.EventMessageInbound)) == 1 }, 5*time.Second, 10*time.Millisecond)

	env.fromHost(t, bridge.NewRefreshMessages(threadID, ""))
	require.Eventually(t, func() bool { return env.page.events(string(model.EventMessageInbound)) == 1 }, 5*time.Second, 10*time.Millisecond)

	msgs = env.engine.Store().Snapshot().Messages[threadID]
	require.Len(t, msgs, 2)
	assert.Equal(t, model.DirectionInbound, msgs[1].Direction)
	assert.Equal(t, "Takk!", msgs[1].Body)

	require.Eventually(t, func() bool {
		n, err := env.outbox.CountUndelivered(context.Background(), tenantID)
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestE2E_ReadsRequireTheTenantKey(t *testing.T) {
	env := setupEnvironment(t)

	c := widget.NewClient(env.gatewayURL, "sk_wrong", "")
	_, err := c.Threads(context.Background(), tenantID)
	var apiErr *widget.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fasthttp.StatusForbidden, apiErr.StatusCode)
}
