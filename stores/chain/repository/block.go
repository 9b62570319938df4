package repository

import (
	"errors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/chain"
	"github.com/x-xyz/listingengine/service/query"
)

// Indexes of domain.TableBlocks
var Indexes = []query.Index{
	{Keys: []string{"chainId", "number"}, Unique: true},
}

type blocks struct {
	q query.Mongo
}

func NewBlockRepo(q query.Mongo) chain.BlockRepo {
	return &blocks{q: q}
}

func (r *blocks) FindOne(c ctx.Ctx, id *chain.BlockId) (*chain.Block, error) {
	b := &chain.Block{}
	switch err := r.q.FindOne(c, domain.TableBlocks, id, b); {
	case errors.Is(err, query.ErrNotFound):
		return nil, domain.ErrNotFound
	case err != nil:
		c.WithFields(log.Fields{"err": err, "chainId": id.ChainId, "block": id.Number}).Error("finding block failed")
		return nil, err
	}
	return b, nil
}

func (r *blocks) Upsert(c ctx.Ctx, b *chain.Block) error {
	err := r.q.Upsert(c, domain.TableBlocks, b.Id(), b)
	if err != nil {
		c.WithFields(log.Fields{"err": err, "chainId": b.ChainId, "block": b.Number}).Error("storing block failed")
	}
	return err
}
