package listing

import (
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
)

type OrderBy string

const (
	OrderByCreatedAt OrderBy = "createdAt"
	OrderById        OrderBy = "id"
)

type FindAllOptions struct {
	Status      *Status
	Seller      *domain.Address
	UpdatedFrom *time.Time
	OrderBy     OrderBy
	Direction   domain.SortDir
	Offset      int
	Limit       int
	// Now anchors time based status filters
	Now time.Time
}

type FindAllOptionsFunc func(*FindAllOptions) error

func GetFindAllOptions(opts ...FindAllOptionsFunc) (FindAllOptions, error) {
	res := FindAllOptions{
		OrderBy:   OrderByCreatedAt,
		Direction: domain.SortDirDesc,
		Limit:     20,
		Now:       time.Now(),
	}
	for _, opt := range opts {
		if err := opt(&res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func WithStatus(s Status) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		if !s.IsValid() {
			return domain.ErrBadParamInput
		}
		options.Status = &s
		return nil
	}
}

func WithSeller(seller domain.Address) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		s := seller.ToLower()
		options.Seller = &s
		return nil
	}
}

func WithUpdatedFrom(t time.Time) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.UpdatedFrom = &t
		return nil
	}
}

func WithSort(orderBy OrderBy, dir domain.SortDir) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		if orderBy != OrderByCreatedAt && orderBy != OrderById {
			return domain.ErrBadParamInput
		}
		options.OrderBy = orderBy
		options.Direction = dir
		return nil
	}
}

func WithPagination(offset, limit int) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		if offset < 0 || limit <= 0 {
			return domain.ErrBadParamInput
		}
		options.Offset = offset
		options.Limit = limit
		return nil
	}
}

func WithNow(now time.Time) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.Now = now
		return nil
	}
}

type Repo interface {
	FindOne(c ctx.Ctx, id ListingId) (*Listing, error)
	FindAll(c ctx.Ctx, opts ...FindAllOptionsFunc) ([]*Listing, error)
	// Create fails with domain.ErrConflict when the id already exists
	Create(c ctx.Ctx, l *Listing) error
	// Save writes l if the stored version still equals l.Version and bumps it,
	// otherwise it fails with domain.ErrConflict
	Save(c ctx.Ctx, l *Listing) error
}

type BidRepo interface {
	// Insert fails with domain.ErrDuplicate for a known (txHash, logIndex)
	Insert(c ctx.Ctx, b *Bid) error
	// Exists checks the key without writing, a failed write would abort a transaction
	Exists(c ctx.Ctx, key RowKey) (bool, error)
	FindByListing(c ctx.Ctx, id ListingId) ([]*Bid, error)
	CountByListing(c ctx.Ctx, id ListingId) (int, error)
	// FindBidderListings returns one entry per listing holding the bidder's top bid
	FindBidderListings(c ctx.Ctx, bidder domain.Address, offset, limit int) ([]*BidderEntry, error)
}

type OfferRepo interface {
	Insert(c ctx.Ctx, o *Offer) error
	Exists(c ctx.Ctx, key RowKey) (bool, error)
	FindByListing(c ctx.Ctx, id ListingId) ([]*Offer, error)
	// Resolve moves the offerer's latest pending offer to status, stamping it
	// with the resolving log by. It reports false when no offer is pending or
	// when by already resolved one.
	Resolve(c ctx.Ctx, id ListingId, offerer domain.Address, status OfferStatus, by RowKey) (bool, error)
}

type PurchaseRepo interface {
	Insert(c ctx.Ctx, p *Purchase) error
	Exists(c ctx.Ctx, key RowKey) (bool, error)
	SumUnits(c ctx.Ctx, id ListingId) (uint64, error)
}

type AnomalyRepo interface {
	Insert(c ctx.Ctx, a *Anomaly) error
	FindRecent(c ctx.Ctx, limit int) ([]*Anomaly, error)
}

// AnomalyHook is notified about every invariant violation
type AnomalyHook interface {
	Report(c ctx.Ctx, a Anomaly)
}

// Reconciler applies chain events to stored listings
type Reconciler interface {
	Apply(c ctx.Ctx, e *Event) error
}

type Snapshot struct {
	Listing *Listing
	Bids    []*Bid
}

type ListFilter struct {
	Status    *Status
	OrderBy   OrderBy
	Direction domain.SortDir
	First     int
	Skip      int
}

type BidderView struct {
	View
	BidderHighest Amount `json:"bidderHighest"`
}

type StreamItem struct {
	Index int
	View  *View
	Err   error
}

type QueryUseCase interface {
	GetListing(c ctx.Ctx, id ListingId) (*View, error)
	ListListings(c ctx.Ctx, f ListFilter) ([]*View, bool, error)
	StreamList(c ctx.Ctx, f ListFilter) (<-chan StreamItem, error)
	GetListingsBySeller(c ctx.Ctx, seller domain.Address, first, skip int) ([]*View, error)
	GetListingsByBidder(c ctx.Ctx, bidder domain.Address, first, skip int) ([]*BidderView, error)
	GetBids(c ctx.Ctx, id ListingId) ([]*Bid, error)
	GetOffers(c ctx.Ctx, id ListingId) ([]*Offer, error)
	InvalidateListing(c ctx.Ctx, id ListingId) error
	ListAnomalies(c ctx.Ctx, limit int) ([]*Anomaly, error)
}

// Auditor re-checks stored invariants
type Auditor interface {
	Audit(c ctx.Ctx, since time.Time) (int, error)
}
