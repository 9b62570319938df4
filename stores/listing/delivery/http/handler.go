package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/delivery"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/middleware"
)

const defaultPageSize = 20

type handler struct {
	listing listing.QueryUseCase
}

func New(e *echo.Echo, us listing.QueryUseCase, adminKeys []string) {
	h := &handler{listing: us}

	gs := e.Group("/listings")
	gs.GET("", h.list)
	gs.GET("/stream", h.stream)
	gs.GET("/:id", h.get)
	gs.GET("/:id/bids", h.getBids)
	gs.GET("/:id/offers", h.getOffers)

	ga := e.Group("/accounts/:address", middleware.IsValidAddress("address"))
	ga.GET("/listings", h.getBySeller)
	ga.GET("/bids", h.getByBidder)

	gadm := e.Group("/admin", middleware.AdminKey(adminKeys))
	gadm.POST("/listings/:id/invalidate", h.invalidate)
	gadm.GET("/anomalies", h.getAnomalies)
}

type listParams struct {
	Status    string `query:"status" validate:"omitempty,oneof=FORMING NOT_STARTED ACTIVE ENDED CANCELLED FINALIZED"`
	OrderBy   string `query:"orderBy" validate:"omitempty,oneof=createdAt id"`
	Direction string `query:"direction" validate:"omitempty,oneof=asc desc"`
	First     int    `query:"first" validate:"min=0"`
	Skip      int    `query:"skip" validate:"min=0"`
}

func (p *listParams) toFilter() listing.ListFilter {
	f := listing.ListFilter{
		OrderBy:   listing.OrderBy(p.OrderBy),
		Direction: domain.SortDirDesc,
		First:     p.First,
		Skip:      p.Skip,
	}
	if p.Direction == "asc" {
		f.Direction = domain.SortDirAsc
	}
	if f.First == 0 {
		f.First = defaultPageSize
	}
	if p.Status != "" {
		s := listing.Status(p.Status)
		f.Status = &s
	}
	return f
}

type pageParams struct {
	First int `query:"first" validate:"min=0"`
	Skip  int `query:"skip" validate:"min=0"`
}

func (p *pageParams) first() int {
	if p.First == 0 {
		return defaultPageSize
	}
	return p.First
}

type listResp struct {
	Items   []*listing.View `json:"items"`
	HasMore bool            `json:"hasMore"`
}

type streamItem struct {
	Index int           `json:"index"`
	Item  *listing.View `json:"item,omitempty"`
	Error string        `json:"error,omitempty"`
}

func bind(c echo.Context, p interface{}) error {
	if err := c.Bind(p); err != nil {
		return xerrors.Errorf("%v: %w", err, domain.ErrBadParamInput)
	}
	if err := c.Validate(p); err != nil {
		return xerrors.Errorf("%v: %w", err, domain.ErrBadParamInput)
	}
	return nil
}

func parseId(c echo.Context) (listing.ListingId, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, xerrors.Errorf("listing id %q: %w", c.Param("id"), domain.ErrBadParamInput)
	}
	return listing.ListingId(id), nil
}

func (h *handler) list(c echo.Context) error {
	ctx := middleware.Ctx(c)

	p := &listParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	views, hasMore, err := h.listing.ListListings(ctx, p.toFilter())
	if err != nil {
		ctx.WithField("err", err).Error("listing.ListListings failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, listResp{Items: views, HasMore: hasMore})
}

// stream writes one line per listing as soon as it and every earlier one is ready
func (h *handler) stream(c echo.Context) error {
	ctx := middleware.Ctx(c)

	p := &listParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	items, err := h.listing.StreamList(ctx, p.toFilter())
	if err != nil {
		ctx.WithField("err", err).Error("listing.StreamList failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}

	w := delivery.NewNDJSONWriter(c)
	for it := range items {
		line := streamItem{Index: it.Index, Item: it.View}
		if it.Err != nil {
			line.Error = it.Err.Error()
		}
		if err := w.Write(line); err != nil {
			ctx.WithFields(log.Fields{"err": err, "index": it.Index}).Info("stream client went away")
			return nil
		}
	}
	w.Finish()
	return nil
}

func (h *handler) get(c echo.Context) error {
	ctx := middleware.Ctx(c)

	id, err := parseId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	v, err := h.listing.GetListing(ctx, id)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "listingId": id}).Warn("listing.GetListing failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, v)
}

func (h *handler) getBids(c echo.Context) error {
	ctx := middleware.Ctx(c)

	id, err := parseId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	bids, err := h.listing.GetBids(ctx, id)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "listingId": id}).Warn("listing.GetBids failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, bids)
}

func (h *handler) getOffers(c echo.Context) error {
	ctx := middleware.Ctx(c)

	id, err := parseId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	offers, err := h.listing.GetOffers(ctx, id)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "listingId": id}).Warn("listing.GetOffers failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, offers)
}

func (h *handler) getBySeller(c echo.Context) error {
	ctx := middleware.Ctx(c)

	p := &pageParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	views, err := h.listing.GetListingsBySeller(ctx, domain.Address(c.Param("address")), p.first(), p.Skip)
	if err != nil {
		ctx.WithField("err", err).Error("listing.GetListingsBySeller failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, views)
}

func (h *handler) getByBidder(c echo.Context) error {
	ctx := middleware.Ctx(c)

	p := &pageParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	views, err := h.listing.GetListingsByBidder(ctx, domain.Address(c.Param("address")), p.first(), p.Skip)
	if err != nil {
		ctx.WithField("err", err).Error("listing.GetListingsByBidder failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, views)
}

func (h *handler) invalidate(c echo.Context) error {
	ctx := middleware.Ctx(c)

	id, err := parseId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	if err := h.listing.InvalidateListing(ctx, id); err != nil {
		ctx.WithFields(log.Fields{"err": err, "listingId": id}).Error("listing.InvalidateListing failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) getAnomalies(c echo.Context) error {
	ctx := middleware.Ctx(c)

	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return delivery.MakeJsonResp(c, http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	res, err := h.listing.ListAnomalies(ctx, limit)
	if err != nil {
		ctx.WithField("err", err).Error("listing.ListAnomalies failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, res)
}
