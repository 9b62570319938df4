package usecase

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/coocood/freecache"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain/chain"
)

const blockTimeCacheSize = 4 * 1024 * 1024

// blockUseCase keeps recently seen block times in memory, the tracker asks
// for the same block once per log
type blockUseCase struct {
	repo  chain.BlockRepo
	times *freecache.Cache
}

func NewBlockUseCase(r chain.BlockRepo) chain.BlockUseCase {
	return &blockUseCase{repo: r, times: freecache.NewCache(blockTimeCacheSize)}
}

func cacheKey(id *chain.BlockId) []byte {
	return []byte(fmt.Sprintf("%d:%d", id.ChainId, id.Number))
}

func (u *blockUseCase) Upsert(ctx bCtx.Ctx, b *chain.Block) error {
	if err := u.repo.Upsert(ctx, b); err != nil {
		return err
	}
	u.remember(b)
	return nil
}

func (u *blockUseCase) FindOne(ctx bCtx.Ctx, id *chain.BlockId) (*chain.Block, error) {
	if v, err := u.times.Get(cacheKey(id)); err == nil && len(v) == 8 {
		return &chain.Block{
			ChainId: id.ChainId,
			Number:  id.Number,
			Time:    time.Unix(int64(binary.BigEndian.Uint64(v)), 0),
		}, nil
	}
	b, err := u.repo.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	u.remember(b)
	return b, nil
}

func (u *blockUseCase) remember(b *chain.Block) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(b.Time.Unix()))
	_ = u.times.Set(cacheKey(b.Id()), v, 0)
}
