package mongo

import (
	"errors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/service/query"
)

// Indexes of domain.TableTrackerStates, one cursor per chain, contract and tag
var Indexes = []query.Index{
	{Keys: []string{"chainId", "contractAddress", "tag"}, Unique: true},
}

type cursorRepo struct {
	q query.Mongo
}

func NewTrackerStateMongoRepo(q query.Mongo) domain.TrackerStateRepo {
	return &cursorRepo{q: q}
}

func (r *cursorRepo) Get(c ctx.Ctx, id *domain.TrackerStateId) (*domain.TrackerState, error) {
	var s domain.TrackerState
	if err := r.q.FindOne(c, domain.TableTrackerStates, id, &s); err != nil {
		return nil, r.translate(c, "FindOne", id, err)
	}
	return &s, nil
}

func (r *cursorRepo) Store(c ctx.Ctx, s *domain.TrackerState) error {
	if err := r.q.Insert(c, domain.TableTrackerStates, s); err != nil {
		return r.translate(c, "Insert", s.ToId(), err)
	}
	return nil
}

func (r *cursorRepo) Update(c ctx.Ctx, s *domain.TrackerState) error {
	if err := r.q.Patch(c, domain.TableTrackerStates, s.ToId(), s); err != nil {
		return r.translate(c, "Patch", s.ToId(), err)
	}
	return nil
}

func (r *cursorRepo) translate(c ctx.Ctx, op string, id *domain.TrackerStateId, err error) error {
	switch {
	case errors.Is(err, query.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, query.ErrDuplicateKey):
		return domain.ErrConflict
	}
	c.WithFields(log.Fields{"err": err, "id": id, "op": op}).Error("tracker state query failed")
	return err
}
