package repository

import (
	"errors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/service/query"
)

// Indexes of domain.TablePayTokens
var Indexes = []query.Index{
	{Keys: []string{"chainId", "address"}, Unique: true},
}

type payTokens struct {
	q query.Mongo
}

func NewPayTokenRepo(q query.Mongo) domain.PayTokenRepo {
	return &payTokens{q: q}
}

func (r *payTokens) FindOne(c ctx.Ctx, chainId domain.ChainId, addr domain.Address) (*domain.PayToken, error) {
	id := &domain.PayTokenId{ChainId: chainId, Address: addr.ToLower()}
	t := &domain.PayToken{}
	switch err := r.q.FindOne(c, domain.TablePayTokens, id, t); {
	case errors.Is(err, query.ErrNotFound):
		return nil, nil
	case err != nil:
		c.WithFields(log.Fields{"err": err, "chainId": chainId, "address": id.Address}).Error("finding pay token failed")
		return nil, err
	}
	return t, nil
}

func (r *payTokens) Upsert(c ctx.Ctx, t *domain.PayToken) error {
	t.Address = t.Address.ToLower()
	err := r.q.Upsert(c, domain.TablePayTokens, t.ToId(), t)
	if err != nil {
		c.WithFields(log.Fields{"err": err, "chainId": t.ChainId, "address": t.Address}).Error("storing pay token failed")
	}
	return err
}
