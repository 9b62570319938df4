package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain/healthcheck"
	"github.com/x-xyz/listingengine/middleware"
)

type stubUsecase struct {
	report healthcheck.Report
	err    error
}

func (u stubUsecase) Check(ctx.Ctx) (healthcheck.Report, error) {
	return u.report, u.err
}

func serve(uc healthcheck.HealthCheckUsecase, target string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(middleware.InitMiddleware().AddContext())
	New(e, uc)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestReady(t *testing.T) {
	ok := healthcheck.Report{Mongo: healthcheck.StatusOk, Redis: healthcheck.StatusOk}
	rec := serve(stubUsecase{report: ok}, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"ok"`)

	down := healthcheck.Report{Mongo: healthcheck.StatusOk, Redis: healthcheck.StatusDown}
	rec = serve(stubUsecase{report: down, err: errors.New("redis: refused")}, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
}

func TestLive(t *testing.T) {
	rec := serve(stubUsecase{err: errors.New("unused")}, "/health/live")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
