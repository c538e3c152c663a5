package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(deliveryRate, webhookRate float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(NewSandbox(deliveryRate, webhookRate))
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSandbox_SveveSend(t *testing.T) {
	r := newTestRouter(1, 1)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/SMS/SendMessage",
		strings.NewReader(`{"user":"u","passwd":"p","to":"4712345678","msg":"hi","from":"Dunbar","f":"json"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Response sveveResult `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Response.MsgOkCount)
	assert.Len(t, res.Response.IDs, 1)
}

func TestSandbox_SveveAuthFailed(t *testing.T) {
	r := newTestRouter(1, 1)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/SMS/SendMessage",
		strings.NewReader(`{"to":"4712345678","msg":"hi"}`)))
	assert.Contains(t, w.Body.String(), `"fatalError":"auth failed"`)
}

func TestSandbox_TwilioSend(t *testing.T) {
	r := newTestRouter(1, 1)

	form := url.Values{"To": {"+447700900000"}, "From": {"+15550001111"}, "Body": {"hi"}}
	req := httptest.NewRequest(http.MethodPost, "/2010-04-01/Accounts/AC1/Messages.json", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("AC1", "secret")

	w := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"queued"`)

	req = httptest.NewRequest(http.MethodPost, "/2010-04-01/Accounts/AC1/Messages.json", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestSandbox_WebhookDedupesByIdempotencyKey(t *testing.T) {
	r := newTestRouter(1, 1)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/host/webhook", strings.NewReader(`{"type":"message.sent"}`))
		req.Header.Set("Idempotency-Key", "t1_evt_1")
		return serve(r, req)
	}
	assert.Contains(t, post().Body.String(), `"duplicate":false`)
	assert.Contains(t, post().Body.String(), `"duplicate":true`)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/host/events", nil))
	var res struct {
		Events []ReceivedEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, 2, res.Events[0].Attempts)
}

func TestSandbox_WebhookFailureRate(t *testing.T) {
	r := newTestRouter(1, 0)

	req := httptest.NewRequest(http.MethodPost, "/host/webhook", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "k")
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, req).Code)

	missing := httptest.NewRequest(http.MethodPost, "/host/webhook", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, serve(r, missing).Code)
}
