package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/valyala/fasthttp"
)

type MockOutboxFlusher struct {
	mock.Mock
}

func (m *MockOutboxFlusher) WebhookURL(ctx context.Context, tenantID, installID string) (string, error) {
	args := m.Called(ctx, tenantID, installID)
	return args.String(0), args.Error(1)
}

func (m *MockOutboxFlusher) Flush(ctx context.Context, tenantID, installID string) (int, error) {
	args := m.Called(ctx, tenantID, installID)
	return args.Int(0), args.Error(1)
}

func TestEventsHandler_Flush(t *testing.T) {
	t.Run("flushes a batch", func(t *testing.T) {
		f := new(MockOutboxFlusher)
		f.On("WebhookURL", mock.Anything, "acme", "i1").Return("http://host/hook", nil)
		f.On("Flush", mock.Anything, "acme", "i1").Return(3, nil)

		ctx := withBearer(setupTestContext("POST", "/api/v1/events/flush", []byte(`{"tenantId":"acme","installId":"i1"}`)), "s3cret")
		NewEventsHandler(f, testAuth()).Flush(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"flushed":3}`, string(ctx.Response.Body()))
	})

	t.Run("no webhook", func(t *testing.T) {
		f := new(MockOutboxFlusher)
		f.On("WebhookURL", mock.Anything, "acme", "").Return("", nil)

		ctx := withBearer(setupTestContext("POST", "/api/v1/events/flush", []byte(`{"tenantId":"acme"}`)), "s3cret")
		NewEventsHandler(f, testAuth()).Flush(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"flushed":0,"message":"No webhook configured"}`, string(ctx.Response.Body()))
		f.AssertNotCalled(t, "Flush", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires bearer", func(t *testing.T) {
		f := new(MockOutboxFlusher)
		ctx := setupTestContext("POST", "/api/v1/events/flush", []byte(`{"tenantId":"acme"}`))
		NewEventsHandler(f, testAuth()).Flush(ctx)

		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("invalid tenant", func(t *testing.T) {
		f := new(MockOutboxFlusher)
		ctx := withBearer(setupTestContext("POST", "/api/v1/events/flush", []byte(`{"tenantId":"../etc"}`)), "s3cret")
		NewEventsHandler(f, testAuth()).Flush(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("store failure", func(t *testing.T) {
		f := new(MockOutboxFlusher)
		f.On("WebhookURL", mock.Anything, "acme", "").Return("http://host/hook", nil)
		f.On("Flush", mock.Anything, "acme", "").Return(0, errors.New("db down"))

		ctx := withBearer(setupTestContext("POST", "/api/v1/events/flush", []byte(`{"tenantId":"acme"}`)), "s3cret")
		NewEventsHandler(f, testAuth()).Flush(ctx)

		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
		})
		ctx := setupTestContext("GET", "/api/v1/health", nil)
		h.GetHealth(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"}}`, string(ctx.Response.Body()))
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		})
		ctx := setupTestContext("GET", "/api/v1/health", nil)
		h.GetHealth(ctx)

		assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
		var res healthResponse
		decodeBody(t, ctx, &res)
		assert.Equal(t, "degraded", res.Status)
		assert.Equal(t, "connection refused", res.Checks["redis"])
	})
}
