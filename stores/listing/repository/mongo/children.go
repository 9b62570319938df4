package mongo

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/query"
)

func insertChild(ctx bCtx.Ctx, q query.Mongo, table domain.Table, row interface{}) error {
	if err := q.Insert(ctx, table, row); errors.Is(err, query.ErrDuplicateKey) {
		return domain.ErrDuplicate
	} else if err != nil {
		ctx.WithFields(log.Fields{"err": err, "table": table}).Error("q.Insert failed")
		return err
	}
	return nil
}

func rowExists(ctx bCtx.Ctx, q query.Mongo, table domain.Table, key listing.RowKey) (bool, error) {
	n, err := q.Count(ctx, table, bson.M{"txHash": key.TxHash, "logIndex": key.LogIndex})
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "table": table}).Error("q.Count failed")
		return false, err
	}
	return n > 0, nil
}

type bidRepo struct {
	q query.Mongo
}

func NewBidRepo(q query.Mongo) listing.BidRepo {
	return &bidRepo{q: q}
}

func (r *bidRepo) Exists(ctx bCtx.Ctx, key listing.RowKey) (bool, error) {
	return rowExists(ctx, r.q, domain.TableBids, key)
}

func (r *bidRepo) Insert(ctx bCtx.Ctx, b *listing.Bid) error {
	return insertChild(ctx, r.q, domain.TableBids, b)
}

func (r *bidRepo) FindByListing(ctx bCtx.Ctx, id listing.ListingId) ([]*listing.Bid, error) {
	res := []*listing.Bid{}
	sorts := []string{"blockNumber", "logIndex"}
	if err := r.q.SearchNSorts(ctx, domain.TableBids, 0, 0, sorts, bson.M{"listingId": id}, &res); err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.SearchNSorts failed")
		return nil, err
	}
	return res, nil
}

func (r *bidRepo) CountByListing(ctx bCtx.Ctx, id listing.ListingId) (int, error) {
	n, err := r.q.Count(ctx, domain.TableBids, bson.M{"listingId": id})
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.Count failed")
		return 0, err
	}
	return n, nil
}

func bidderListingsPipeline(bidder domain.Address, offset, limit int) bson.A {
	return bson.A{
		bson.M{"$match": bson.M{"bidder": bidder.ToLower()}},
		bson.M{"$sort": bson.D{{Key: "amountKey", Value: -1}, {Key: "blockNumber", Value: 1}}},
		bson.M{"$group": bson.M{
			"_id":       "$listingId",
			"amount":    bson.M{"$first": "$amount"},
			"lastBlock": bson.M{"$max": "$blockNumber"},
		}},
		bson.M{"$sort": bson.D{{Key: "lastBlock", Value: -1}, {Key: "_id", Value: -1}}},
		bson.M{"$skip": offset},
		bson.M{"$limit": limit},
	}
}

func (r *bidRepo) FindBidderListings(ctx bCtx.Ctx, bidder domain.Address, offset, limit int) ([]*listing.BidderEntry, error) {
	iter, closeFn, err := r.q.Pipe(ctx, domain.TableBids, bidderListingsPipeline(bidder, offset, limit))
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "bidder": bidder}).Error("q.Pipe failed")
		return nil, err
	}
	defer closeFn()

	res := []*listing.BidderEntry{}
	if err := iter.All(ctx, &res); err != nil {
		ctx.WithFields(log.Fields{"err": err, "bidder": bidder}).Error("iter.All failed")
		return nil, err
	}
	return res, nil
}

type offerRepo struct {
	q query.Mongo
}

func NewOfferRepo(q query.Mongo) listing.OfferRepo {
	return &offerRepo{q: q}
}

func (r *offerRepo) Exists(ctx bCtx.Ctx, key listing.RowKey) (bool, error) {
	return rowExists(ctx, r.q, domain.TableOffers, key)
}

func (r *offerRepo) Insert(ctx bCtx.Ctx, o *listing.Offer) error {
	return insertChild(ctx, r.q, domain.TableOffers, o)
}

func (r *offerRepo) FindByListing(ctx bCtx.Ctx, id listing.ListingId) ([]*listing.Offer, error) {
	res := []*listing.Offer{}
	sorts := []string{"blockNumber", "logIndex"}
	if err := r.q.SearchNSorts(ctx, domain.TableOffers, 0, 0, sorts, bson.M{"listingId": id}, &res); err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.SearchNSorts failed")
		return nil, err
	}
	return res, nil
}

func resolvedBy(key listing.RowKey) bson.M {
	return bson.M{"resolvedBy.txHash": key.TxHash, "resolvedBy.logIndex": key.LogIndex}
}

func (r *offerRepo) Resolve(ctx bCtx.Ctx, id listing.ListingId, offerer domain.Address, status listing.OfferStatus, by listing.RowKey) (bool, error) {
	n, err := r.q.Count(ctx, domain.TableOffers, resolvedBy(by))
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.Count failed")
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	pending := []*listing.Offer{}
	qry := bson.M{"listingId": id, "offerer": offerer.ToLower(), "status": listing.OfferStatusPending}
	sorts := []string{"-blockNumber", "-logIndex"}
	if err := r.q.SearchNSorts(ctx, domain.TableOffers, 0, 1, sorts, qry, &pending); err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.SearchNSorts failed")
		return false, err
	}
	if len(pending) == 0 {
		return false, nil
	}
	o := pending[0]
	selector := bson.M{"txHash": o.TxHash, "logIndex": o.LogIndex, "status": listing.OfferStatusPending}
	if err := r.q.Patch(ctx, domain.TableOffers, selector, bson.M{"status": status, "resolvedBy": by}); errors.Is(err, query.ErrNotFound) {
		return false, nil
	} else if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.Patch failed")
		return false, err
	}
	return true, nil
}

type purchaseRepo struct {
	q query.Mongo
}

func NewPurchaseRepo(q query.Mongo) listing.PurchaseRepo {
	return &purchaseRepo{q: q}
}

func (r *purchaseRepo) Exists(ctx bCtx.Ctx, key listing.RowKey) (bool, error) {
	return rowExists(ctx, r.q, domain.TablePurchases, key)
}

func (r *purchaseRepo) Insert(ctx bCtx.Ctx, p *listing.Purchase) error {
	return insertChild(ctx, r.q, domain.TablePurchases, p)
}

func (r *purchaseRepo) SumUnits(ctx bCtx.Ctx, id listing.ListingId) (uint64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"listingId": id}},
		bson.M{"$group": bson.M{"_id": nil, "units": bson.M{"$sum": "$units"}}},
	}
	iter, closeFn, err := r.q.Pipe(ctx, domain.TablePurchases, pipeline)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.Pipe failed")
		return 0, err
	}
	defer closeFn()

	var sum struct {
		Units int64 `bson:"units"`
	}
	ok, err := iter.Next(ctx, &sum)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("iter.Next failed")
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return uint64(sum.Units), nil
}

type anomalyRepo struct {
	q query.Mongo
}

func NewAnomalyRepo(q query.Mongo) listing.AnomalyRepo {
	return &anomalyRepo{q: q}
}

func (r *anomalyRepo) Insert(ctx bCtx.Ctx, a *listing.Anomaly) error {
	if err := r.q.Insert(ctx, domain.TableAnomalies, a); err != nil {
		ctx.WithFields(log.Fields{"err": err, "kind": a.Kind}).Error("q.Insert failed")
		return err
	}
	return nil
}

func (r *anomalyRepo) FindRecent(ctx bCtx.Ctx, limit int) ([]*listing.Anomaly, error) {
	res := []*listing.Anomaly{}
	if err := r.q.Search(ctx, domain.TableAnomalies, 0, limit, "-createdAt", bson.M{}, &res); err != nil {
		ctx.WithField("err", err).Error("q.Search failed")
		return nil, err
	}
	return res, nil
}
