// Package chain holds what the tracker remembers about blocks.
package chain

import (
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
)

// BlockId fields follow the unique index so the value doubles as a filter
type BlockId struct {
	ChainId domain.ChainId     `bson:"chainId"`
	Number  domain.BlockNumber `bson:"number"`
}

// Block is the header data events need: the mining time stamps every
// listing change applied from the block.
type Block struct {
	ChainId domain.ChainId     `bson:"chainId"`
	Number  domain.BlockNumber `bson:"number"`
	Hash    domain.BlockHash   `bson:"hash"`
	Time    time.Time          `bson:"time"`
}

func (b *Block) Id() *BlockId {
	return &BlockId{ChainId: b.ChainId, Number: b.Number}
}

// BlockRepo answers domain.ErrNotFound for a block it never stored. Upsert
// may be repeated for the same block.
type BlockRepo interface {
	FindOne(c ctx.Ctx, id *BlockId) (*Block, error)
	Upsert(c ctx.Ctx, b *Block) error
}

// BlockUseCase is a BlockRepo with an in-process cache of block times
type BlockUseCase interface {
	BlockRepo
}
