package handlers

import (
	"context"

	"github.com/fasthttp/router"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
)

type OutboxFlusher interface {
	WebhookURL(ctx context.Context, tenantID, installID string) (string, error)
	Flush(ctx context.Context, tenantID, installID string) (int, error)
}

type EventsHandler struct {
	flusher OutboxFlusher
	auth    Authenticator
}

func RegisterEventsRoutes(e *router.Group, h *EventsHandler) {
	e.POST("/events/flush", h.Flush)
}

func NewEventsHandler(flusher OutboxFlusher, auth Authenticator) *EventsHandler {
	return &EventsHandler{flusher: flusher, auth: auth}
}

type flushRequest struct {
	TenantID  string `json:"tenantId"`
	InstallID string `json:"installId"`
}

type flushResponse struct {
	Flushed int    `json:"flushed"`
	Message string `json:"message,omitempty"`
}

// Flush delivers one batch synchronously, for operators and host backends
// that want to pull events right now.
func (h *EventsHandler) Flush(ctx *xhttp.RequestCtx) {
	if !requireBearer(ctx, h.auth) {
		return
	}
	var req flushRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !model.IsValidID(req.TenantID) {
		writeServiceError(ctx, model.ErrInvalidTenantID)
		return
	}

	url, err := h.flusher.WebhookURL(ctx, req.TenantID, req.InstallID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if url == "" {
		writeJSON(ctx, xhttp.StatusOK, flushResponse{Flushed: 0, Message: "No webhook configured"})
		return
	}

	n, err := h.flusher.Flush(ctx, req.TenantID, req.InstallID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, flushResponse{Flushed: n})
}
