package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/delivery"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/middleware"
)

type handler struct {
	repo domain.PayTokenRepo
}

// New mounts the pay token routes. Registering a currency is an admin call,
// display prices of listings in an unregistered currency use 18 decimals.
func New(e *echo.Echo, repo domain.PayTokenRepo, adminKeys []string) {
	h := &handler{repo: repo}
	e.GET("/paytokens/:chainId/:address", h.get, middleware.IsValidAddress("address"))
	e.PUT("/admin/paytokens", h.put, middleware.AdminKey(adminKeys))
}

type payTokenBody struct {
	ChainId  int32  `json:"chainId" validate:"required,min=1"`
	Address  string `json:"address" validate:"required,address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol" validate:"required"`
	Decimals int32  `json:"decimals" validate:"min=0,max=36"`
}

func (h *handler) get(c echo.Context) error {
	cx := middleware.Ctx(c)
	chainId, err := strconv.ParseInt(c.Param("chainId"), 10, 32)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, "invalid chainId")
	}
	addr := domain.Address(c.Param("address"))
	token, err := h.repo.FindOne(cx, domain.ChainId(chainId), addr)
	switch {
	case err != nil:
		cx.WithFields(log.Fields{"err": err, "address": addr}).Error("paytoken.FindOne failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	case token == nil:
		return delivery.MakeJsonResp(c, http.StatusNotFound, "unknown pay token")
	}
	return delivery.MakeJsonResp(c, http.StatusOK, token)
}

func (h *handler) put(c echo.Context) error {
	cx := middleware.Ctx(c)
	var body payTokenBody
	if err := c.Bind(&body); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, xerrors.Errorf("%v: %w", err, domain.ErrBadParamInput))
	}
	if err := c.Validate(&body); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, xerrors.Errorf("%v: %w", err, domain.ErrBadParamInput))
	}
	token := &domain.PayToken{
		ChainId:       domain.ChainId(body.ChainId),
		Address:       domain.Address(body.Address),
		Name:          body.Name,
		Symbol:        body.Symbol,
		TokenDecimals: body.Decimals,
	}
	if err := h.repo.Upsert(cx, token); err != nil {
		cx.WithFields(log.Fields{"err": err, "address": body.Address}).Error("paytoken.Upsert failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, token)
}
