package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/services"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

type Authenticator interface {
	Check(authorization string) error
}

type errorResponse struct {
	Error     string `json:"error"`
	MessageID string `json:"messageId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// writeServiceError maps the service error classes onto status codes.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	var carrierErr *services.CarrierError
	switch {
	case errors.As(err, &carrierErr):
		writeJSON(ctx, xhttp.StatusBadGateway, errorResponse{
			Error:     carrierErr.Error(),
			MessageID: carrierErr.MessageID,
			ThreadID:  carrierErr.ThreadID,
		})
	case errors.Is(err, model.ErrValidation):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		writeError(ctx, xhttp.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrForbidden):
		writeError(ctx, xhttp.StatusForbidden, "Invalid or missing apiKey")
	case errors.Is(err, services.ErrTenantNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	default:
		logger.Error("[handlers] request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

// apiKey reads the tenant access key from the query or the X-Api-Key header.
func apiKey(ctx *xhttp.RequestCtx) string {
	if v := query(ctx, "apiKey"); v != "" {
		return v
	}
	return string(ctx.Request.Header.Peek("X-Api-Key"))
}

// requireBearer writes 401 and returns false when the Authorization header
// does not pass auth.
func requireBearer(ctx *xhttp.RequestCtx, auth Authenticator) bool {
	if err := auth.Check(string(ctx.Request.Header.Peek("Authorization"))); err != nil {
		writeError(ctx, xhttp.StatusUnauthorized, err.Error())
		return false
	}
	return true
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
