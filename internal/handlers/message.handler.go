package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/services"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type MessageService interface {
	Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
	Inbound(ctx context.Context, req model.InboundRequest) (*model.InboundResult, error)
	InboundForNumber(ctx context.Context, toPhone, fromPhone, body string) (*model.InboundResult, error)
}

type MessageHandler struct {
	svc  MessageService
	auth Authenticator
}

func RegisterMessageRoutes(e *router.Group, h *MessageHandler) {
	e.POST("/messages", h.SendMessage)
	e.POST("/inbound", h.SimulateInbound)
	e.POST("/carriers/twilio/inbound", h.TwilioInbound)
}

func NewMessageHandler(messageService MessageService, auth Authenticator) *MessageHandler {
	return &MessageHandler{
		svc:  messageService,
		auth: auth,
	}
}

func (h *MessageHandler) SendMessage(ctx *xhttp.RequestCtx) {
	if !requireBearer(ctx, h.auth) {
		return
	}
	var req model.SendRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.Send(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

// SimulateInbound stores an inbound message as if a carrier had delivered it.
func (h *MessageHandler) SimulateInbound(ctx *xhttp.RequestCtx) {
	var req model.InboundRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.Inbound(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

// TwilioInbound receives the carrier's form webhook. The carrier only needs
// an acknowledgement, so unmatched numbers are answered like stored ones.
func (h *MessageHandler) TwilioInbound(ctx *xhttp.RequestCtx) {
	from := formValue(ctx, "From", "from")
	to := formValue(ctx, "To", "to")
	body := formValue(ctx, "Body", "body")

	if from == "" || body == "" {
		ctx.Error("Missing From or Body", xhttp.StatusBadRequest)
		return
	}

	_, err := h.svc.InboundForNumber(ctx, to, from, body)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNoTenantForNumber):
		logger.Warn("[handlers] twilio inbound for unknown number", "to", to)
	case errors.Is(err, model.ErrValidation):
		ctx.Error(err.Error(), xhttp.StatusBadRequest)
		return
	default:
		logger.Error("[handlers] twilio inbound failed", "to", to, "error", err)
		ctx.Error("Error", xhttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("text/xml")
	ctx.SetStatusCode(xhttp.StatusOK)
	ctx.SetBodyString(emptyTwiML)
}

func formValue(ctx *xhttp.RequestCtx, keys ...string) string {
	for _, k := range keys {
		if v := ctx.PostArgs().Peek(k); len(v) > 0 {
			return string(v)
		}
	}
	return ""
}
