package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/statecache"
)

var queryNow = time.Unix(1_750_000_000, 0)

type querySuite struct {
	suite.Suite
	listings  *fakeListingRepo
	bids      *fakeBidRepo
	offers    *fakeOfferRepo
	anomalies *fakeAnomalyRepo
	publisher *recordingPublisher
	cache     statecache.Service
	im        listing.QueryUseCase
}

func TestQueryUseCase(t *testing.T) {
	suite.Run(t, new(querySuite))
}

func (s *querySuite) SetupTest() {
	s.listings = newFakeListingRepo()
	s.bids = &fakeBidRepo{}
	s.offers = &fakeOfferRepo{}
	s.anomalies = &fakeAnomalyRepo{}
	s.publisher = &recordingPublisher{}
	s.cache = statecache.New(statecache.Config{
		Shards:          4,
		ComputeTimeout:  time.Second,
		JanitorInterval: time.Hour,
		PoolSize:        8,
		Clock:           func() time.Time { return queryNow },
	})
	s.im = NewQueryUseCase(&QueryUseCaseCfg{
		ListingRepo: s.listings,
		BidRepo:     s.bids,
		OfferRepo:   s.offers,
		AnomalyRepo: s.anomalies,
		Cache:       s.cache,
		Publisher:   s.publisher,
		MaxPageSize: 10,
		Clock:       func() time.Time { return queryNow },
	})
}

func (s *querySuite) TearDownTest() {
	s.cache.Close()
}

// putListing stores a complete auction created i minutes after the first one
func (s *querySuite) putListing(id listing.ListingId, owner domain.Address) *listing.Listing {
	l := listing.New(id, 1, "0xmarket")
	l.Core = &listing.CoreGroup{
		Seller:          owner,
		Kind:            listing.KindAuction,
		InitialAmount:   "100",
		TotalAvailable:  1,
		UnitsPerSale:    1,
		EndTime:         1_800_000_000,
		MinIncrementBps: 500,
	}
	l.Token = &listing.TokenGroup{Contract: "0xnft", TokenId: "42", Standard: listing.StandardSingle}
	l.Fees = &listing.FeeGroup{DeliveryFixedFee: "0"}
	l.CreatedAt = time.Unix(1_700_000_000+int64(id)*60, 0)
	l.UpdatedAt = l.CreatedAt
	l.Version = 1
	s.listings.put(l)
	return l
}

func (s *querySuite) putBid(id listing.ListingId, bidder domain.Address, amount listing.Amount, block domain.BlockNumber) {
	s.bids.rows = append(s.bids.rows, &listing.Bid{
		ListingId: id,
		TxHash:    domain.TxHash("0x" + string(amount)),
		Bidder:    bidder,
		Amount:    amount,
		AmountKey: amount.Key(),
		Block:     block,
	})
}

func viewIds(views []*listing.View) []listing.ListingId {
	res := []listing.ListingId{}
	for _, v := range views {
		res = append(res, v.Id)
	}
	return res
}

func (s *querySuite) TestGetListingDerivesStatus() {
	s.putListing(1, seller)
	s.putBid(1, "0xb1", "150", 20)

	v, err := s.im.GetListing(mockCtx, 1)
	s.Require().NoError(err)
	s.Require().Equal(listing.StatusActive, v.Status)
	s.Require().Equal(listing.Amount("150"), v.CurrentPrice)
	s.Require().Equal(domain.Address("0xb1"), v.HighestBidder)
	s.Require().Equal(1, v.BidCount)
	s.Require().Equal(int64(1_800_000_000-1_750_000_000), v.TimeRemaining)
}

func (s *querySuite) TestPartialListingIsForming() {
	l := listing.New(2, 1, "0xmarket")
	l.Token = &listing.TokenGroup{Contract: "0xnft", TokenId: "1"}
	s.listings.put(l)

	v, err := s.im.GetListing(mockCtx, 2)
	s.Require().NoError(err)
	s.Require().Equal(listing.StatusForming, v.Status)
	s.Require().Equal([]string{"core", "fees"}, v.PendingGroups)
	s.Require().Empty(v.CurrentPrice)
}

func (s *querySuite) TestGetListingErrors() {
	_, err := s.im.GetListing(mockCtx, 0)
	s.Require().ErrorIs(err, domain.ErrBadParamInput)

	_, err = s.im.GetListing(mockCtx, 99)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *querySuite) TestCachedUntilInvalidated() {
	s.putListing(1, seller)

	_, err := s.im.GetListing(mockCtx, 1)
	s.Require().NoError(err)
	_, err = s.im.GetListing(mockCtx, 1)
	s.Require().NoError(err)
	s.Require().Equal(1, s.listings.findCount())

	sold := s.putListing(1, seller)
	sold.TotalSold = 1
	s.Require().NoError(s.im.InvalidateListing(mockCtx, 1))

	v, err := s.im.GetListing(mockCtx, 1)
	s.Require().NoError(err)
	s.Require().True(v.SoldOut)
	s.Require().Equal(listing.StatusActive, v.Status)
	s.Require().Equal(2, s.listings.findCount())
	s.Require().Equal([][]string{{"listing:1"}}, s.publisher.published())

	s.Require().NoError(s.im.InvalidateListing(mockCtx, 1))
	s.Require().ErrorIs(s.im.InvalidateListing(mockCtx, 0), domain.ErrBadParamInput)
}

func (s *querySuite) TestListListingsPages() {
	for id := listing.ListingId(1); id <= 3; id++ {
		s.putListing(id, seller)
	}

	views, hasMore, err := s.im.ListListings(mockCtx, listing.ListFilter{First: 2})
	s.Require().NoError(err)
	s.Require().True(hasMore)
	s.Require().Equal([]listing.ListingId{3, 2}, viewIds(views))

	views, hasMore, err = s.im.ListListings(mockCtx, listing.ListFilter{First: 2, Skip: 2})
	s.Require().NoError(err)
	s.Require().False(hasMore)
	s.Require().Equal([]listing.ListingId{1}, viewIds(views))

	views, _, err = s.im.ListListings(mockCtx, listing.ListFilter{First: 5, OrderBy: listing.OrderById, Direction: domain.SortDirAsc})
	s.Require().NoError(err)
	s.Require().Equal([]listing.ListingId{1, 2, 3}, viewIds(views))
}

func (s *querySuite) TestListListingsByStatus() {
	s.putListing(1, seller)
	forming := listing.New(2, 1, "0xmarket")
	s.listings.put(forming)

	status := listing.StatusForming
	views, _, err := s.im.ListListings(mockCtx, listing.ListFilter{First: 5, Status: &status})
	s.Require().NoError(err)
	s.Require().Equal([]listing.ListingId{2}, viewIds(views))
}

func (s *querySuite) TestListListingsRejectsBadPages() {
	for _, f := range []listing.ListFilter{{First: 0}, {First: 11}, {First: 1, Skip: -1}} {
		_, _, err := s.im.ListListings(mockCtx, f)
		s.Require().ErrorIs(err, domain.ErrBadParamInput, "%+v", f)
	}
	_, err := s.im.StreamList(mockCtx, listing.ListFilter{First: 0})
	s.Require().ErrorIs(err, domain.ErrBadParamInput)
}

func (s *querySuite) TestStreamKeepsOrder() {
	for id := listing.ListingId(1); id <= 4; id++ {
		s.putListing(id, seller)
	}
	items, err := s.im.StreamList(mockCtx, listing.ListFilter{First: 3})
	s.Require().NoError(err)

	got := []listing.ListingId{}
	for it := range items {
		s.Require().NoError(it.Err)
		s.Require().Equal(len(got), it.Index)
		got = append(got, it.View.Id)
	}
	s.Require().Equal([]listing.ListingId{4, 3, 2}, got)
}

func (s *querySuite) TestStreamStopsWithContext() {
	for id := listing.ListingId(1); id <= 4; id++ {
		s.putListing(id, seller)
	}
	cc, cancel := context.WithCancel(context.Background())
	c := ctx.From(cc)
	items, err := s.im.StreamList(c, listing.ListFilter{First: 4})
	s.Require().NoError(err)
	cancel()

	s.Require().Eventually(func() bool {
		for range items {
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func (s *querySuite) TestListingsBySeller() {
	s.putListing(1, seller)
	s.putListing(2, "0xother")
	s.putListing(3, seller)

	views, err := s.im.GetListingsBySeller(mockCtx, "0xSELLER", 10, 0)
	s.Require().NoError(err)
	s.Require().Equal([]listing.ListingId{3, 1}, viewIds(views))
}

func (s *querySuite) TestListingsByBidder() {
	s.putListing(1, seller)
	s.putListing(2, seller)
	s.putBid(1, "0xb1", "120", 10)
	s.putBid(1, "0xb1", "180", 12)
	s.putBid(1, "0xb2", "200", 13)
	s.putBid(2, "0xb1", "110", 30)

	views, err := s.im.GetListingsByBidder(mockCtx, "0xB1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(views, 2)
	s.Require().Equal(listing.ListingId(2), views[0].Id)
	s.Require().Equal(listing.Amount("110"), views[0].BidderHighest)
	s.Require().Equal(listing.ListingId(1), views[1].Id)
	s.Require().Equal(listing.Amount("180"), views[1].BidderHighest)
	s.Require().Equal(domain.Address("0xb2"), views[1].HighestBidder)
}

func (s *querySuite) TestBidsAndOffers() {
	s.putListing(1, seller)
	s.putBid(1, "0xb1", "120", 10)
	s.offers.rows = append(s.offers.rows, &listing.Offer{ListingId: 1, Offerer: "0xo", Amount: "90", Status: listing.OfferStatusPending})

	bids, err := s.im.GetBids(mockCtx, 1)
	s.Require().NoError(err)
	s.Require().Len(bids, 1)

	offers, err := s.im.GetOffers(mockCtx, 1)
	s.Require().NoError(err)
	s.Require().Len(offers, 1)
	s.Require().Equal(listing.OfferStatusPending, offers[0].Status)

	_, err = s.im.GetBids(mockCtx, 0)
	s.Require().ErrorIs(err, domain.ErrBadParamInput)
}

func (s *querySuite) TestListAnomaliesLimits() {
	for i := 0; i < defaultAnomalyLimit+5; i++ {
		s.anomalies.rows = append(s.anomalies.rows, &listing.Anomaly{
			Kind:      listing.AnomalyOversell,
			CreatedAt: time.Unix(int64(1_700_000_000+i), 0),
		})
	}
	res, err := s.im.ListAnomalies(mockCtx, 0)
	s.Require().NoError(err)
	s.Require().Len(res, defaultAnomalyLimit)
	s.Require().True(res[0].CreatedAt.After(res[1].CreatedAt))

	res, err = s.im.ListAnomalies(mockCtx, 3)
	s.Require().NoError(err)
	s.Require().Len(res, 3)
}
