package usecase

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	priceformatter "github.com/x-xyz/listingengine/base/price_formatter"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/invalidation"
	"github.com/x-xyz/listingengine/service/metadata"
	"github.com/x-xyz/listingengine/service/statecache"
)

const (
	defaultViewTtl           = 30 * time.Second
	defaultPageTtl           = 5 * time.Second
	defaultMetadataTimeout   = 800 * time.Millisecond
	defaultStreamItemTimeout = 2 * time.Second
	defaultMaxPageSize       = 100
	defaultAnomalyLimit      = 50
	maxAnomalyLimit          = 500
)

type QueryUseCaseCfg struct {
	ListingRepo listing.Repo
	BidRepo     listing.BidRepo
	OfferRepo   listing.OfferRepo
	AnomalyRepo listing.AnomalyRepo
	Cache       statecache.Service

	// optional enrichment
	Metadata       metadata.Client
	PriceFormatter priceformatter.PriceFormatter

	// Publisher fans admin invalidations out to every replica, the local
	// cache is invalidated either way
	Publisher invalidation.Publisher

	ViewTtl           time.Duration
	PageTtl           time.Duration
	MetadataTimeout   time.Duration
	StreamItemTimeout time.Duration
	MaxPageSize       int
	Clock             func() time.Time
}

type queryUseCase struct {
	listingRepo       listing.Repo
	bidRepo           listing.BidRepo
	offerRepo         listing.OfferRepo
	anomalyRepo       listing.AnomalyRepo
	cache             statecache.Service
	metadata          metadata.Client
	priceFormatter    priceformatter.PriceFormatter
	publisher         invalidation.Publisher
	viewTtl           time.Duration
	pageTtl           time.Duration
	metadataTimeout   time.Duration
	streamItemTimeout time.Duration
	maxPageSize       int
	clock             func() time.Time
}

func NewQueryUseCase(cfg *QueryUseCaseCfg) listing.QueryUseCase {
	im := &queryUseCase{
		listingRepo:       cfg.ListingRepo,
		bidRepo:           cfg.BidRepo,
		offerRepo:         cfg.OfferRepo,
		anomalyRepo:       cfg.AnomalyRepo,
		cache:             cfg.Cache,
		metadata:          cfg.Metadata,
		priceFormatter:    cfg.PriceFormatter,
		publisher:         cfg.Publisher,
		viewTtl:           cfg.ViewTtl,
		pageTtl:           cfg.PageTtl,
		metadataTimeout:   cfg.MetadataTimeout,
		streamItemTimeout: cfg.StreamItemTimeout,
		maxPageSize:       cfg.MaxPageSize,
		clock:             cfg.Clock,
	}
	if im.viewTtl <= 0 {
		im.viewTtl = defaultViewTtl
	}
	if im.pageTtl <= 0 {
		im.pageTtl = defaultPageTtl
	}
	if im.metadataTimeout <= 0 {
		im.metadataTimeout = defaultMetadataTimeout
	}
	if im.streamItemTimeout <= 0 {
		im.streamItemTimeout = defaultStreamItemTimeout
	}
	if im.maxPageSize <= 0 {
		im.maxPageSize = defaultMaxPageSize
	}
	if im.clock == nil {
		im.clock = time.Now
	}
	return im
}

func snapshotKey(id listing.ListingId) string {
	return "v:snapshot:" + id.String()
}

func (im *queryUseCase) snapshot(c ctx.Ctx, id listing.ListingId) (*listing.Snapshot, error) {
	v, err := im.cache.GetOrCompute(c, snapshotKey(id), im.viewTtl, []string{listing.TagListing(id)}, func(lc ctx.Ctx) (interface{}, error) {
		l, err := im.listingRepo.FindOne(lc, id)
		if err != nil {
			return nil, err
		}
		bids, err := im.bidRepo.FindByListing(lc, id)
		if err != nil {
			return nil, err
		}
		return &listing.Snapshot{Listing: l, Bids: bids}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*listing.Snapshot), nil
}

func (im *queryUseCase) view(c ctx.Ctx, id listing.ListingId) (*listing.View, error) {
	snap, err := im.snapshot(c, id)
	if err != nil {
		return nil, err
	}
	v := listing.Derive(snap.Listing, snap.Bids, im.clock())
	im.enrich(c, &v)
	return &v, nil
}

// enrich fills display fields, a failure only leaves them empty
func (im *queryUseCase) enrich(c ctx.Ctx, v *listing.View) {
	if im.priceFormatter != nil && v.Core != nil {
		if p := v.CurrentPrice.Big(); p != nil {
			d, err := im.priceFormatter.DisplayPrice(c, v.ChainId, v.Core.Currency, p)
			if err == nil {
				v.DisplayPrice = d.String()
			}
		}
	}
	if im.metadata != nil && v.Token != nil {
		mc, cancel := ctx.WithTimeout(c, im.metadataTimeout)
		defer cancel()
		m, err := im.metadata.Get(mc, v.ChainId, v.Token.Contract, v.Token.TokenId)
		if err != nil {
			c.WithFields(log.Fields{"err": err, "listingId": v.Id}).Debug("metadata unavailable")
			return
		}
		v.Metadata = m
	}
}

func (im *queryUseCase) GetListing(c ctx.Ctx, id listing.ListingId) (*listing.View, error) {
	if id == 0 {
		return nil, domain.ErrBadParamInput
	}
	return im.view(c, id)
}

func (im *queryUseCase) checkPage(first, skip int) error {
	if first <= 0 || first > im.maxPageSize || skip < 0 {
		return xerrors.Errorf("first %d skip %d: %w", first, skip, domain.ErrBadParamInput)
	}
	return nil
}

// pageIds loads the ids of one page, fetching one extra row so that callers can tell whether more follow
func (im *queryUseCase) pageIds(c ctx.Ctx, f listing.ListFilter) ([]listing.ListingId, error) {
	if err := im.checkPage(f.First, f.Skip); err != nil {
		return nil, err
	}
	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = listing.OrderByCreatedAt
	}
	dir := f.Direction
	if dir != domain.SortDirAsc {
		dir = domain.SortDirDesc
	}
	status := "any"
	opts := []listing.FindAllOptionsFunc{
		listing.WithSort(orderBy, dir),
		listing.WithPagination(f.Skip, f.First+1),
		listing.WithNow(im.clock()),
	}
	if f.Status != nil {
		status = string(*f.Status)
		opts = append(opts, listing.WithStatus(*f.Status))
	}
	key := fmt.Sprintf("v:page:%s:%s:%d:%d:%d", status, orderBy, dir, f.First, f.Skip)
	v, err := im.cache.GetOrCompute(c, key, im.pageTtl, []string{listing.TagAllListings}, func(lc ctx.Ctx) (interface{}, error) {
		rows, err := im.listingRepo.FindAll(lc, opts...)
		if err != nil {
			return nil, err
		}
		return idsOf(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]listing.ListingId), nil
}

func idsOf(rows []*listing.Listing) []listing.ListingId {
	ids := make([]listing.ListingId, 0, len(rows))
	for _, l := range rows {
		ids = append(ids, l.Id)
	}
	return ids
}

// views resolves ids in order and drops rows that disappeared meanwhile
func (im *queryUseCase) views(c ctx.Ctx, ids []listing.ListingId) ([]*listing.View, error) {
	res := make([]*listing.View, 0, len(ids))
	for _, id := range ids {
		v, err := im.view(c, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func (im *queryUseCase) ListListings(c ctx.Ctx, f listing.ListFilter) ([]*listing.View, bool, error) {
	ids, err := im.pageIds(c, f)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(ids) > f.First
	if hasMore {
		ids = ids[:f.First]
	}
	views, err := im.views(c, ids)
	if err != nil {
		return nil, false, err
	}
	return views, hasMore, nil
}

func (im *queryUseCase) StreamList(c ctx.Ctx, f listing.ListFilter) (<-chan listing.StreamItem, error) {
	ids, err := im.pageIds(c, f)
	if err != nil {
		return nil, err
	}
	if len(ids) > f.First {
		ids = ids[:f.First]
	}
	items := im.cache.Stream(c, len(ids), im.streamItemTimeout, func(fc ctx.Ctx, i int) (interface{}, error) {
		return im.view(fc, ids[i])
	})
	out := make(chan listing.StreamItem)
	go func() {
		defer close(out)
		for it := range items {
			si := listing.StreamItem{Index: it.Index, Err: it.Err}
			if v, ok := it.Value.(*listing.View); ok {
				si.View = v
			}
			select {
			case out <- si:
			case <-c.Done():
				return
			}
		}
	}()
	return out, nil
}

func (im *queryUseCase) GetListingsBySeller(c ctx.Ctx, seller domain.Address, first, skip int) ([]*listing.View, error) {
	if err := im.checkPage(first, skip); err != nil {
		return nil, err
	}
	seller = seller.ToLower()
	key := fmt.Sprintf("v:seller:%s:%d:%d", seller, first, skip)
	tags := []string{listing.TagSeller(seller), listing.TagAllListings}
	v, err := im.cache.GetOrCompute(c, key, im.pageTtl, tags, func(lc ctx.Ctx) (interface{}, error) {
		rows, err := im.listingRepo.FindAll(lc,
			listing.WithSeller(seller),
			listing.WithSort(listing.OrderByCreatedAt, domain.SortDirDesc),
			listing.WithPagination(skip, first),
		)
		if err != nil {
			return nil, err
		}
		return idsOf(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return im.views(c, v.([]listing.ListingId))
}

func (im *queryUseCase) GetListingsByBidder(c ctx.Ctx, bidder domain.Address, first, skip int) ([]*listing.BidderView, error) {
	if err := im.checkPage(first, skip); err != nil {
		return nil, err
	}
	bidder = bidder.ToLower()
	key := fmt.Sprintf("v:bidder:%s:%d:%d", bidder, first, skip)
	tags := []string{listing.TagBidder(bidder), listing.TagAllListings}
	v, err := im.cache.GetOrCompute(c, key, im.pageTtl, tags, func(lc ctx.Ctx) (interface{}, error) {
		return im.bidRepo.FindBidderListings(lc, bidder, skip, first)
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]*listing.BidderEntry)
	res := make([]*listing.BidderView, 0, len(entries))
	for _, e := range entries {
		view, err := im.view(c, e.ListingId)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, &listing.BidderView{View: *view, BidderHighest: e.BidderHighest})
	}
	return res, nil
}

func (im *queryUseCase) GetBids(c ctx.Ctx, id listing.ListingId) ([]*listing.Bid, error) {
	if id == 0 {
		return nil, domain.ErrBadParamInput
	}
	snap, err := im.snapshot(c, id)
	if err != nil {
		return nil, err
	}
	return snap.Bids, nil
}

func (im *queryUseCase) GetOffers(c ctx.Ctx, id listing.ListingId) ([]*listing.Offer, error) {
	if id == 0 {
		return nil, domain.ErrBadParamInput
	}
	v, err := im.cache.GetOrCompute(c, "v:offers:"+id.String(), im.viewTtl, []string{listing.TagListing(id)}, func(lc ctx.Ctx) (interface{}, error) {
		return im.offerRepo.FindByListing(lc, id)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*listing.Offer), nil
}

// InvalidateListing drops every cached value derived from the listing. Calling
// it again is harmless.
func (im *queryUseCase) InvalidateListing(c ctx.Ctx, id listing.ListingId) error {
	if id == 0 {
		return domain.ErrBadParamInput
	}
	tag := listing.TagListing(id)
	n := im.cache.Invalidate(c, tag)
	c.WithFields(log.Fields{"listingId": id, "entries": n}).Info("listing invalidated")
	if im.publisher == nil {
		return nil
	}
	return im.publisher.Publish(c, tag)
}

func (im *queryUseCase) ListAnomalies(c ctx.Ctx, limit int) ([]*listing.Anomaly, error) {
	if limit <= 0 {
		limit = defaultAnomalyLimit
	}
	if limit > maxAnomalyLimit {
		limit = maxAnomalyLimit
	}
	return im.anomalyRepo.FindRecent(c, limit)
}
