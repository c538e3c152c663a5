package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/services"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
)

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBody(body)
	}
	return ctx
}

func withBearer(ctx *xhttp.RequestCtx, token string) *xhttp.RequestCtx {
	ctx.Request.Header.Set("Authorization", "Bearer "+token)
	return ctx
}

func decodeBody(t *testing.T, ctx *xhttp.RequestCtx, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), dst), string(ctx.Response.Body()))
}

func testAuth() Authenticator {
	return services.NewBearerAuth("s3cret")
}
