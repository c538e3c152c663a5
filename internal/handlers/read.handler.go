package handlers

import (
	"context"

	"github.com/fasthttp/router"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
)

type ReadService interface {
	Threads(ctx context.Context, tenantID, apiKey string) ([]*model.Thread, error)
	ThreadMessages(ctx context.Context, tenantID, threadID, apiKey string) ([]*model.Message, error)
	Messages(ctx context.Context, tenantID string, threadIDs []string, apiKey string) ([]*model.Message, error)
	TenantData(ctx context.Context, tenantID, apiKey string) (*model.TenantData, error)
}

type ReadHandler struct {
	svc ReadService
}

func RegisterReadRoutes(e *router.Group, h *ReadHandler) {
	e.GET("/tenants/{tenantId}/threads", h.ListThreads)
	e.GET("/tenants/{tenantId}/threads/{threadId}/messages", h.ListThreadMessages)
	e.GET("/tenants/{tenantId}/messages", h.ListMessages)
	e.GET("/tenants/{tenantId}/data", h.GetTenantData)
}

func NewReadHandler(readService ReadService) *ReadHandler {
	return &ReadHandler{svc: readService}
}

type threadsResponse struct {
	Threads []*model.Thread `json:"threads"`
}

type messagesResponse struct {
	Messages []*model.Message `json:"messages"`
}

func (h *ReadHandler) ListThreads(ctx *xhttp.RequestCtx) {
	threads, err := h.svc.Threads(ctx, param(ctx, "tenantId"), apiKey(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if threads == nil {
		threads = []*model.Thread{}
	}
	writeJSON(ctx, xhttp.StatusOK, threadsResponse{Threads: threads})
}

func (h *ReadHandler) ListThreadMessages(ctx *xhttp.RequestCtx) {
	messages, err := h.svc.ThreadMessages(ctx, param(ctx, "tenantId"), param(ctx, "threadId"), apiKey(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeMessages(ctx, messages)
}

// ListMessages serves the batched poll: ?threadIds=a,b,c
func (h *ReadHandler) ListMessages(ctx *xhttp.RequestCtx) {
	ids := splitList(query(ctx, "threadIds"))
	messages, err := h.svc.Messages(ctx, param(ctx, "tenantId"), ids, apiKey(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeMessages(ctx, messages)
}

func (h *ReadHandler) GetTenantData(ctx *xhttp.RequestCtx) {
	data, err := h.svc.TenantData(ctx, param(ctx, "tenantId"), apiKey(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if data.Contacts == nil {
		data.Contacts = []*model.Contact{}
	}
	if data.Groups == nil {
		data.Groups = []*model.Group{}
	}
	writeJSON(ctx, xhttp.StatusOK, data)
}

func writeMessages(ctx *xhttp.RequestCtx, messages []*model.Message) {
	if messages == nil {
		messages = []*model.Message{}
	}
	writeJSON(ctx, xhttp.StatusOK, messagesResponse{Messages: messages})
}
