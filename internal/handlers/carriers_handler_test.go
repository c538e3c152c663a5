package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/carriers"
)

type rejectingCarrier struct{}

func (rejectingCarrier) Name() string { return "sveve" }

func (rejectingCarrier) Send(context.Context, carriers.SendRequest) (carriers.SendResult, error) {
	return carriers.SendResult{}, errors.New("auth failed")
}

func TestCarriersHandler_Stats(t *testing.T) {
	registry := carriers.NewRegistry(carriers.Stub{}, rejectingCarrier{})
	_, err := registry.Send(context.Background(), carriers.KeyStub, carriers.SendRequest{To: "+4712345678", Body: "hi"})
	require.NoError(t, err)
	_, err = registry.Send(context.Background(), "sveve", carriers.SendRequest{To: "+4712345678", Body: "hi"})
	require.Error(t, err)

	t.Run("lists every carrier", func(t *testing.T) {
		ctx := withBearer(setupTestContext("GET", "/api/v1/carriers/stats", nil), "s3cret")
		NewCarriersHandler(registry, testAuth()).Stats(ctx)

		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var res carrierStatsResponse
		decodeBody(t, ctx, &res)
		require.Len(t, res.Carriers, 2)

		byName := map[string]carriers.CarrierStats{}
		for _, s := range res.Carriers {
			byName[s.Name] = s
		}
		assert.Equal(t, int64(1), byName[carriers.KeyStub].Accepted)
		assert.Equal(t, int64(1), byName["sveve"].Failed)
		assert.Equal(t, "auth failed", byName["sveve"].LastError)
	})

	t.Run("requires bearer", func(t *testing.T) {
		ctx := setupTestContext("GET", "/api/v1/carriers/stats", nil)
		NewCarriersHandler(registry, testAuth()).Stats(ctx)

		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})
}
