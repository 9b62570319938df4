package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/x-xyz/listingengine/base/delivery"
	"github.com/x-xyz/listingengine/domain/healthcheck"
	"github.com/x-xyz/listingengine/middleware"
)

type handler struct {
	uc healthcheck.HealthCheckUsecase
}

// New mounts GET /health, which answers 503 with the per store report when
// mongo or redis is unreachable, and GET /health/live, which never touches a
// store.
func New(e *echo.Echo, uc healthcheck.HealthCheckUsecase) {
	h := &handler{uc: uc}
	e.GET("/health", h.ready)
	e.GET("/health/live", h.live)
}

func (h *handler) ready(c echo.Context) error {
	cx := middleware.Ctx(c)
	report, err := h.uc.Check(cx)
	if err != nil {
		cx.WithField("err", err).Warn("not ready")
		return delivery.MakeJsonResp(c, http.StatusServiceUnavailable, report)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, report)
}

func (h *handler) live(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
