package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
)

var mockCtx = ctx.Background()

type reconcilerSuite struct {
	suite.Suite
	listings  *fakeListingRepo
	bids      *fakeBidRepo
	offers    *fakeOfferRepo
	purchases *fakePurchaseRepo
	hook      *recordingHook
	publisher *recordingPublisher
	im        listing.Reconciler
}

func TestReconciler(t *testing.T) {
	suite.Run(t, new(reconcilerSuite))
}

func (s *reconcilerSuite) SetupTest() {
	s.listings = newFakeListingRepo()
	s.bids = &fakeBidRepo{}
	s.offers = &fakeOfferRepo{}
	s.purchases = &fakePurchaseRepo{}
	s.hook = &recordingHook{}
	s.publisher = &recordingPublisher{}
	s.im = NewReconciler(&ReconcilerCfg{
		Mongo:        txMongo{},
		ListingRepo:  s.listings,
		BidRepo:      s.bids,
		OfferRepo:    s.offers,
		PurchaseRepo: s.purchases,
		AnomalyHook:  s.hook,
		Publisher:    s.publisher,
	})
}

func (s *reconcilerSuite) stored(id listing.ListingId) *listing.Listing {
	l, err := s.listings.FindOne(mockCtx, id)
	s.Require().NoError(err)
	return l
}

func (s *reconcilerSuite) TestCreationGroupsCommute() {
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var first *listing.Listing
	for _, order := range orders {
		s.SetupTest()
		events := []*listing.Event{coreEvent(7, 10, 1), tokenEvent(7, 10), feesEvent(7, 10)}
		for _, i := range order {
			s.Require().NoError(s.im.Apply(mockCtx, events[i]))
		}
		got := s.stored(7)
		s.Require().Empty(got.PendingGroups(), "order %v", order)
		if first == nil {
			first = got
			continue
		}
		s.Require().Equal(first, got, "order %v", order)
	}
	s.Require().Equal(seller, first.Core.Seller)
	s.Require().Equal(domain.Address("0xmarket"), first.Contract)
}

func (s *reconcilerSuite) TestDuplicateBidIsNoop() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	bid := bidEvent(7, 11, 3, "0xB1", "200")

	s.Require().NoError(s.im.Apply(mockCtx, bid))
	published := len(s.publisher.published())
	version := s.stored(7).Version

	s.Require().NoError(s.im.Apply(mockCtx, bid))
	s.Require().Len(s.bids.rows, 1)
	s.Require().Len(s.publisher.published(), published)
	s.Require().Equal(version, s.stored(7).Version)
}

func (s *reconcilerSuite) TestBidPublishesBidderTag() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	s.Require().NoError(s.im.Apply(mockCtx, bidEvent(7, 11, 3, "0xB1", "200")))

	published := s.publisher.published()
	last := published[len(published)-1]
	s.Require().Contains(last, "bidder:0xb1")
	s.Require().Contains(last, "listing:7")
	s.Require().Contains(last, "seller:0xseller")
	s.Require().True(s.stored(7).HasBid)
	s.Require().Equal(domain.Address("0xb1"), s.bids.rows[0].Bidder)
}

func (s *reconcilerSuite) TestBidBeforeCoreKeepsPartialListing() {
	s.Require().NoError(s.im.Apply(mockCtx, bidEvent(7, 11, 3, "0xb1", "200")))
	got := s.stored(7)
	s.Require().True(got.HasBid)
	s.Require().Nil(got.Core)
	s.Require().Equal([]string{"core", "token", "fees"}, got.PendingGroups())
}

func (s *reconcilerSuite) TestMalformedEventWritesNothing() {
	e := bidEvent(7, 11, 3, "", "200")
	err := s.im.Apply(mockCtx, e)
	s.Require().ErrorIs(err, domain.ErrMalformedEvent)
	s.Require().Empty(s.bids.rows)
	s.Require().Empty(s.listings.rows)
	s.Require().Empty(s.publisher.published())
}

func (s *reconcilerSuite) TestStaleCoreWriteIsSkipped() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	older := coreEvent(7, 9, 5)
	s.Require().NoError(s.im.Apply(mockCtx, older))

	got := s.stored(7)
	s.Require().Equal(uint64(1), got.Core.TotalAvailable)
	s.Require().Equal(domain.BlockNumber(10), got.Core.WrittenAt.BlockNumber)
	s.Require().Len(s.publisher.published(), 1)
}

func (s *reconcilerSuite) TestOversellReachesHook() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	s.Require().NoError(s.im.Apply(mockCtx, purchaseEvent(7, 12, 2)))

	s.Require().Equal(uint64(1), s.stored(7).TotalSold)
	s.Require().Equal([]listing.AnomalyKind{listing.AnomalyOversell}, s.hook.kinds())
	s.Require().Len(s.purchases.rows, 1)
}

func (s *reconcilerSuite) TestConflictIsRetried() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	s.listings.conflicts = maxCasAttempts - 1

	s.Require().NoError(s.im.Apply(mockCtx, tokenEvent(7, 10)))
	s.Require().NotNil(s.stored(7).Token)
}

func (s *reconcilerSuite) TestConflictGivesUp() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	s.listings.conflicts = maxCasAttempts

	err := s.im.Apply(mockCtx, tokenEvent(7, 10))
	s.Require().ErrorIs(err, domain.ErrConflict)
	s.Require().Nil(s.stored(7).Token)
}

func offerEvent(block domain.BlockNumber, logIndex uint, offerer domain.Address) *listing.Event {
	return &listing.Event{
		ListingId: 7,
		ChainId:   1,
		Kind:      listing.EventOffer,
		Meta:      meta(block, logIndex),
		Offer:     &listing.OfferPayload{Offerer: offerer, Amount: "90"},
	}
}

func resolveEvent(kind listing.EventKind, block domain.BlockNumber, logIndex uint, offerer domain.Address) *listing.Event {
	return &listing.Event{
		ListingId: 7,
		ChainId:   1,
		Kind:      kind,
		Meta:      meta(block, logIndex),
		Resolve:   &listing.OfferResolution{Offerer: offerer},
	}
}

func (s *reconcilerSuite) TestAcceptOfferResolvesOnce() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 5)))
	s.Require().NoError(s.im.Apply(mockCtx, offerEvent(11, 4, "0xO")))
	s.Require().Len(s.offers.rows, 1)

	accept := resolveEvent(listing.EventAcceptOffer, 12, 1, "0xo")
	s.Require().NoError(s.im.Apply(mockCtx, accept))
	s.Require().Equal(uint64(1), s.stored(7).TotalSold)
	s.Require().Equal(listing.OfferStatusAccepted, s.offers.rows[0].Status)
	s.Require().Equal(&listing.RowKey{TxHash: "0xtx", LogIndex: 1}, s.offers.rows[0].ResolvedBy)

	// the offerer has a new pending offer when the same accept log arrives again
	s.Require().NoError(s.im.Apply(mockCtx, offerEvent(13, 0, "0xo")))
	version := s.stored(7).Version
	s.Require().NoError(s.im.Apply(mockCtx, accept))
	s.Require().Equal(uint64(1), s.stored(7).TotalSold)
	s.Require().Equal(version, s.stored(7).Version)
	s.Require().Equal(listing.OfferStatusPending, s.offers.rows[1].Status)
	s.Require().Nil(s.offers.rows[1].ResolvedBy)

	// a distinct accept log still resolves it
	s.Require().NoError(s.im.Apply(mockCtx, resolveEvent(listing.EventAcceptOffer, 14, 2, "0xo")))
	s.Require().Equal(uint64(2), s.stored(7).TotalSold)
	s.Require().Equal(listing.OfferStatusAccepted, s.offers.rows[1].Status)
}

func (s *reconcilerSuite) TestAcceptWithoutPendingOfferIsNoop() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 5)))
	s.Require().NoError(s.im.Apply(mockCtx, resolveEvent(listing.EventAcceptOffer, 12, 1, "0xo")))
	s.Require().Equal(uint64(0), s.stored(7).TotalSold)
}

func (s *reconcilerSuite) TestRescindReplayKeepsLiveOffer() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 5)))
	s.Require().NoError(s.im.Apply(mockCtx, offerEvent(11, 4, "0xo")))
	rescind := resolveEvent(listing.EventRescindOffer, 12, 1, "0xo")
	s.Require().NoError(s.im.Apply(mockCtx, rescind))
	s.Require().Equal(listing.OfferStatusRescinded, s.offers.rows[0].Status)

	s.Require().NoError(s.im.Apply(mockCtx, offerEvent(13, 0, "0xo")))
	s.Require().NoError(s.im.Apply(mockCtx, rescind))
	s.Require().Equal(listing.OfferStatusPending, s.offers.rows[1].Status)
	s.Require().Equal(uint64(0), s.stored(7).TotalSold)
}

func (s *reconcilerSuite) TestFinalizeTwiceIsDuplicate() {
	s.Require().NoError(s.im.Apply(mockCtx, coreEvent(7, 10, 1)))
	fin := &listing.Event{ListingId: 7, ChainId: 1, Kind: listing.EventFinalize, Meta: meta(20, 0)}
	s.Require().NoError(s.im.Apply(mockCtx, fin))
	version := s.stored(7).Version

	s.Require().NoError(s.im.Apply(mockCtx, fin))
	s.Require().Equal(version, s.stored(7).Version)
	s.Require().True(s.stored(7).IsFinalized())
}

func TestInsertOnce(t *testing.T) {
	exists := func(found bool) func(ctx.Ctx, listing.RowKey) (bool, error) {
		return func(ctx.Ctx, listing.RowKey) (bool, error) { return found, nil }
	}
	inserted := 0
	insert := func(ctx.Ctx) error {
		inserted++
		return nil
	}

	fresh, err := insertOnce(mockCtx, listing.RowKey{}, exists(true), insert)
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, 0, inserted)

	fresh, err = insertOnce(mockCtx, listing.RowKey{}, exists(false), insert)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 1, inserted)

	fresh, err = insertOnce(mockCtx, listing.RowKey{}, exists(false), func(ctx.Ctx) error { return domain.ErrDuplicate })
	require.NoError(t, err)
	require.False(t, fresh)
}
