package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/query"
)

type fakeListingRepo struct {
	mu        sync.Mutex
	rows      map[listing.ListingId]*listing.Listing
	finds     int
	conflicts int
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{rows: map[listing.ListingId]*listing.Listing{}}
}

func (r *fakeListingRepo) FindOne(_ ctx.Ctx, id listing.ListingId) (*listing.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	l, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *fakeListingRepo) FindAll(_ ctx.Ctx, optFns ...listing.FindAllOptionsFunc) ([]*listing.Listing, error) {
	opts, err := listing.GetFindAllOptions(optFns...)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []*listing.Listing{}
	for _, l := range r.rows {
		if opts.Seller != nil && (l.Core == nil || l.Core.Seller != *opts.Seller) {
			continue
		}
		if opts.UpdatedFrom != nil && l.UpdatedAt.Before(*opts.UpdatedFrom) {
			continue
		}
		if opts.Status != nil && listing.Derive(l, nil, opts.Now).Status != *opts.Status {
			continue
		}
		res = append(res, l.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		less := a.Id < b.Id
		if opts.OrderBy == listing.OrderByCreatedAt && !a.CreatedAt.Equal(b.CreatedAt) {
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if opts.Direction == domain.SortDirDesc {
			return !less
		}
		return less
	})
	if opts.Offset >= len(res) {
		return []*listing.Listing{}, nil
	}
	res = res[opts.Offset:]
	if len(res) > opts.Limit {
		res = res[:opts.Limit]
	}
	return res, nil
}

func (r *fakeListingRepo) Create(_ ctx.Ctx, l *listing.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[l.Id]; ok {
		return domain.ErrConflict
	}
	l.Version = 1
	r.rows[l.Id] = l.Clone()
	return nil
}

func (r *fakeListingRepo) Save(_ ctx.Ctx, l *listing.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrConflict
	}
	cur, ok := r.rows[l.Id]
	if !ok || cur.Version != l.Version {
		return domain.ErrConflict
	}
	l.Version++
	r.rows[l.Id] = l.Clone()
	return nil
}

func (r *fakeListingRepo) put(l *listing.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[l.Id] = l
}

func (r *fakeListingRepo) findCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

type fakeBidRepo struct {
	mu   sync.Mutex
	rows []*listing.Bid
}

func (r *fakeBidRepo) Insert(_ ctx.Ctx, b *listing.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.TxHash == b.TxHash && x.LogIndex == b.LogIndex {
			return domain.ErrDuplicate
		}
	}
	r.rows = append(r.rows, b)
	return nil
}

func (r *fakeBidRepo) Exists(_ ctx.Ctx, key listing.RowKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.TxHash == key.TxHash && x.LogIndex == key.LogIndex {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBidRepo) FindByListing(_ ctx.Ctx, id listing.ListingId) ([]*listing.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []*listing.Bid{}
	for _, x := range r.rows {
		if x.ListingId == id {
			res = append(res, x)
		}
	}
	return res, nil
}

func (r *fakeBidRepo) CountByListing(c ctx.Ctx, id listing.ListingId) (int, error) {
	bids, _ := r.FindByListing(c, id)
	return len(bids), nil
}

func (r *fakeBidRepo) FindBidderListings(_ ctx.Ctx, bidder domain.Address, offset, limit int) ([]*listing.BidderEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	top := map[listing.ListingId]*listing.Bid{}
	last := map[listing.ListingId]domain.BlockNumber{}
	for _, x := range r.rows {
		if x.Bidder != bidder.ToLower() {
			continue
		}
		if cur, ok := top[x.ListingId]; !ok || x.AmountKey > cur.AmountKey {
			top[x.ListingId] = x
		}
		if x.Block > last[x.ListingId] {
			last[x.ListingId] = x.Block
		}
	}
	res := []*listing.BidderEntry{}
	for id, b := range top {
		res = append(res, &listing.BidderEntry{ListingId: id, BidderHighest: b.Amount})
	}
	sort.Slice(res, func(i, j int) bool {
		bi, bj := last[res[i].ListingId], last[res[j].ListingId]
		if bi != bj {
			return bi > bj
		}
		return res[i].ListingId > res[j].ListingId
	})
	if offset >= len(res) {
		return []*listing.BidderEntry{}, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type fakeOfferRepo struct {
	mu   sync.Mutex
	rows []*listing.Offer
}

func (r *fakeOfferRepo) Insert(_ ctx.Ctx, o *listing.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, o)
	return nil
}

func (r *fakeOfferRepo) Exists(_ ctx.Ctx, key listing.RowKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.TxHash == key.TxHash && x.LogIndex == key.LogIndex {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOfferRepo) FindByListing(_ ctx.Ctx, id listing.ListingId) ([]*listing.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []*listing.Offer{}
	for _, x := range r.rows {
		if x.ListingId == id {
			res = append(res, x)
		}
	}
	return res, nil
}

func (r *fakeOfferRepo) Resolve(_ ctx.Ctx, id listing.ListingId, offerer domain.Address, status listing.OfferStatus, by listing.RowKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *listing.Offer
	for _, x := range r.rows {
		if x.ResolvedBy != nil && *x.ResolvedBy == by {
			return false, nil
		}
	}
	for _, x := range r.rows {
		if x.ListingId != id || x.Offerer != offerer.ToLower() || x.Status != listing.OfferStatusPending {
			continue
		}
		if latest == nil || x.Block > latest.Block || (x.Block == latest.Block && x.LogIndex > latest.LogIndex) {
			latest = x
		}
	}
	if latest == nil {
		return false, nil
	}
	latest.Status = status
	latest.ResolvedBy = &by
	return true, nil
}

type fakePurchaseRepo struct {
	mu   sync.Mutex
	rows []*listing.Purchase
}

func (r *fakePurchaseRepo) Insert(_ ctx.Ctx, p *listing.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, p)
	return nil
}

func (r *fakePurchaseRepo) Exists(_ ctx.Ctx, key listing.RowKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.TxHash == key.TxHash && x.LogIndex == key.LogIndex {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePurchaseRepo) SumUnits(_ ctx.Ctx, id listing.ListingId) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := uint64(0)
	for _, x := range r.rows {
		if x.ListingId == id {
			sum += x.Units
		}
	}
	return sum, nil
}

type fakeAnomalyRepo struct {
	mu   sync.Mutex
	rows []*listing.Anomaly
}

func (r *fakeAnomalyRepo) Insert(_ ctx.Ctx, a *listing.Anomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, a)
	return nil
}

func (r *fakeAnomalyRepo) FindRecent(_ ctx.Ctx, limit int) ([]*listing.Anomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := append([]*listing.Anomaly(nil), r.rows...)
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type recordingHook struct {
	mu        sync.Mutex
	anomalies []listing.Anomaly
}

func (h *recordingHook) Report(_ ctx.Ctx, a listing.Anomaly) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.anomalies = append(h.anomalies, a)
}

func (h *recordingHook) kinds() []listing.AnomalyKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := []listing.AnomalyKind{}
	for _, a := range h.anomalies {
		res = append(res, a.Kind)
	}
	return res
}

type recordingPublisher struct {
	mu   sync.Mutex
	tags [][]string
}

func (p *recordingPublisher) Publish(_ ctx.Ctx, tags ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags = append(p.tags, tags)
	return nil
}

func (p *recordingPublisher) published() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.tags...)
}

// txMongo only runs transactions, AfterCommit hooks fire immediately
type txMongo struct {
	query.Mongo
}

func (txMongo) RunWithTransaction(c ctx.Ctx, run func(ctx.Ctx) error) error {
	return run(c)
}

var seller = domain.Address("0xseller")

func meta(block domain.BlockNumber, logIndex uint) domain.LogMeta {
	return domain.LogMeta{
		Contract:    "0xmarket",
		BlockNumber: block,
		LogIndex:    logIndex,
		BlockTime:   time.Unix(int64(1_700_000_000+block*12), 0).UTC(),
		TxHash:      domain.TxHash("0xtx"),
	}
}

func coreEvent(id listing.ListingId, block domain.BlockNumber, totalAvailable uint64) *listing.Event {
	return &listing.Event{
		ListingId: id,
		ChainId:   1,
		Kind:      listing.EventCreateCore,
		Meta:      meta(block, 0),
		Core: &listing.CoreGroup{
			Seller:          seller,
			Kind:            listing.KindAuction,
			InitialAmount:   "100",
			TotalAvailable:  totalAvailable,
			UnitsPerSale:    1,
			EndTime:         1_800_000_000,
			MinIncrementBps: 500,
			Currency:        domain.EmptyAddress,
		},
	}
}

func tokenEvent(id listing.ListingId, block domain.BlockNumber) *listing.Event {
	return &listing.Event{
		ListingId: id,
		ChainId:   1,
		Kind:      listing.EventCreateToken,
		Meta:      meta(block, 1),
		Token:     &listing.TokenGroup{Contract: "0xnft", TokenId: "42", Standard: listing.StandardSingle},
	}
}

func feesEvent(id listing.ListingId, block domain.BlockNumber) *listing.Event {
	return &listing.Event{
		ListingId: id,
		ChainId:   1,
		Kind:      listing.EventCreateFees,
		Meta:      meta(block, 2),
		Fees:      &listing.FeeGroup{DeliveryFeeBps: 250, DeliveryFixedFee: "10"},
	}
}

func bidEvent(id listing.ListingId, block domain.BlockNumber, logIndex uint, bidder domain.Address, amount listing.Amount) *listing.Event {
	m := meta(block, logIndex)
	m.TxHash = domain.TxHash("0xbid" + string(amount))
	return &listing.Event{
		ListingId: id,
		ChainId:   1,
		Kind:      listing.EventBid,
		Meta:      m,
		Bid:       &listing.BidPayload{Bidder: bidder, Amount: amount},
	}
}

func purchaseEvent(id listing.ListingId, block domain.BlockNumber, units uint64) *listing.Event {
	m := meta(block, 5)
	m.TxHash = domain.TxHash("0xbuy")
	return &listing.Event{
		ListingId: id,
		ChainId:   1,
		Kind:      listing.EventPurchase,
		Meta:      m,
		Purchase:  &listing.PurchasePayload{Buyer: "0xbuyer", Units: units, Amount: "100"},
	}
}
