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

type listingRepo struct {
	q query.Mongo
}

func NewListingRepo(q query.Mongo) listing.Repo {
	return &listingRepo{q: q}
}

func (r *listingRepo) FindOne(ctx bCtx.Ctx, id listing.ListingId) (*listing.Listing, error) {
	l := &listing.Listing{}
	if err := r.q.FindOne(ctx, domain.TableListings, bson.M{"id": id}, l); errors.Is(err, query.ErrNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": id}).Error("q.FindOne failed")
		return nil, err
	}
	return l, nil
}

func (r *listingRepo) FindAll(ctx bCtx.Ctx, optFns ...listing.FindAllOptionsFunc) ([]*listing.Listing, error) {
	opts, err := listing.GetFindAllOptions(optFns...)
	if err != nil {
		return nil, err
	}

	qry := bson.M{}
	if opts.Status != nil {
		qry = statusQuery(*opts.Status, opts.Now.Unix())
	}
	if opts.Seller != nil {
		qry["core.seller"] = *opts.Seller
	}
	if opts.UpdatedFrom != nil {
		qry["updatedAt"] = bson.M{"$gte": *opts.UpdatedFrom}
	}

	sortFields := []string{string(opts.OrderBy)}
	if opts.OrderBy != listing.OrderById {
		sortFields = append(sortFields, "id")
	}
	if opts.Direction == domain.SortDirDesc {
		for i := range sortFields {
			sortFields[i] = "-" + sortFields[i]
		}
	}

	res := []*listing.Listing{}
	if err := r.q.SearchNSorts(ctx, domain.TableListings, opts.Offset, opts.Limit, sortFields, qry, &res); err != nil {
		ctx.WithFields(log.Fields{"err": err, "query": qry}).Error("q.SearchNSorts failed")
		return nil, err
	}
	return res, nil
}

func (r *listingRepo) Create(ctx bCtx.Ctx, l *listing.Listing) error {
	doc := *l
	doc.Version = 1
	if err := r.q.Insert(ctx, domain.TableListings, &doc); errors.Is(err, query.ErrDuplicateKey) {
		return domain.ErrConflict
	} else if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": l.Id}).Error("q.Insert failed")
		return err
	}
	l.Version = doc.Version
	return nil
}

func (r *listingRepo) Save(ctx bCtx.Ctx, l *listing.Listing) error {
	doc := *l
	doc.Version = l.Version + 1
	selector := bson.M{"id": l.Id, "version": l.Version}
	if err := r.q.Patch(ctx, domain.TableListings, selector, &doc); errors.Is(err, query.ErrNotFound) {
		return domain.ErrConflict
	} else if err != nil {
		ctx.WithFields(log.Fields{"err": err, "id": l.Id}).Error("q.Patch failed")
		return err
	}
	l.Version = doc.Version
	return nil
}

func notTerminal() bson.M {
	return bson.M{"cancelled": nil, "finalized": nil}
}

// statusQuery selects the rows Derive would give status at unix time now
func statusQuery(status listing.Status, now int64) bson.M {
	switch status {
	case listing.StatusFinalized:
		return bson.M{"finalized": bson.M{"$ne": nil}}
	case listing.StatusCancelled:
		return bson.M{"cancelled": bson.M{"$ne": nil}, "finalized": nil}
	case listing.StatusForming:
		q := notTerminal()
		q["core"] = nil
		return q
	case listing.StatusNotStarted:
		q := notTerminal()
		q["core.startTime"] = bson.M{"$gt": now}
		return q
	case listing.StatusEnded:
		q := notTerminal()
		q["core"] = bson.M{"$ne": nil}
		q["core.startTime"] = bson.M{"$lte": now}
		q["core.endTime"] = bson.M{"$ne": 0, "$lte": now}
		return q
	case listing.StatusActive:
		q := notTerminal()
		q["core"] = bson.M{"$ne": nil}
		q["core.startTime"] = bson.M{"$lte": now}
		q["$or"] = bson.A{
			bson.M{"core.endTime": 0},
			bson.M{"core.endTime": bson.M{"$gt": now}},
		}
		return q
	}
	return bson.M{}
}
