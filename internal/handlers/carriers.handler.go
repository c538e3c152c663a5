package handlers

import (
	"github.com/fasthttp/router"

	"github.com/nimasrn/sms-widget-gateway/internal/carriers"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
)

type CarrierStatsSource interface {
	Stats() []carriers.CarrierStats
}

type CarriersHandler struct {
	source CarrierStatsSource
	auth   Authenticator
}

func RegisterCarriersRoutes(e *router.Group, h *CarriersHandler) {
	e.GET("/carriers/stats", h.Stats)
}

func NewCarriersHandler(source CarrierStatsSource, auth Authenticator) *CarriersHandler {
	return &CarriersHandler{source: source, auth: auth}
}

type carrierStatsResponse struct {
	Carriers []carriers.CarrierStats `json:"carriers"`
}

// Stats reports the recent send outcomes of each carrier in this process.
func (h *CarriersHandler) Stats(ctx *xhttp.RequestCtx) {
	if !requireBearer(ctx, h.auth) {
		return
	}
	writeJSON(ctx, xhttp.StatusOK, carrierStatsResponse{Carriers: h.source.Stats()})
}
