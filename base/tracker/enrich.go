package tracker

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/backoff"
	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/chain"
)

const (
	headerAttempts   = 8
	headerBackoffMin = 500 * time.Millisecond
	headerBackoffMax = 16 * time.Second
)

// enrich attaches the block time to each log and, when enabled, the sender of
// the transaction that emitted it.
func (f *EventTracker) enrich(ctx bCtx.Ctx, logs []types.Log) ([]chainLog, error) {
	res := make([]chainLog, len(logs))
	var (
		blk uint64
		at  time.Time
	)
	for i, l := range logs {
		if i == 0 || l.BlockNumber != blk {
			t, err := f.blockTime(ctx, l.BlockNumber)
			if err != nil {
				return nil, xerrors.Errorf("block time of %d: %w", l.BlockNumber, err)
			}
			blk, at = l.BlockNumber, t
		}
		res[i] = chainLog{Log: l, blockTime: at}
		if !f.decodeSender {
			continue
		}
		// logs of one tx are adjacent, reuse the previous sender
		if i > 0 && logs[i-1].TxHash == l.TxHash {
			res[i].sender = res[i-1].sender
			continue
		}
		sender, err := f.txSender(ctx, &l)
		if err != nil {
			return nil, err
		}
		res[i].sender = sender
	}
	return res, nil
}

func (f *EventTracker) txSender(ctx bCtx.Ctx, l *types.Log) (domain.Address, error) {
	tx, _, err := f.rpc.TransactionByHash(ctx, l.TxHash)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "txHash": l.TxHash.Hex()}).Error("rpc.TransactionByHash failed")
		return "", err
	}
	from, err := types.Sender(f.signer, tx)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "txHash": l.TxHash.Hex()}).Error("types.Sender failed")
		return "", err
	}
	return toDomainAddress(from), nil
}

// blockTime reads the block table first and falls back to the node
func (f *EventTracker) blockTime(ctx bCtx.Ctx, number uint64) (time.Time, error) {
	id := &chain.BlockId{ChainId: domain.ChainId(f.chainId), Number: domain.BlockNumber(number)}
	if b, err := f.blocks.FindOne(ctx, id); err == nil {
		return b.Time, nil
	}

	h, err := f.header(ctx, number)
	if err != nil {
		return time.Time{}, err
	}
	b := &chain.Block{
		ChainId: id.ChainId,
		Number:  id.Number,
		Hash:    domain.BlockHash(lowerHex(h.Hash())),
		Time:    time.Unix(int64(h.Time), 0),
	}
	if err := f.blocks.Upsert(ctx, b); err != nil {
		return time.Time{}, err
	}
	return b.Time, nil
}

// header retries HeaderByNumber, fresh blocks are not always served by every
// node behind a load balancer yet
func (f *EventTracker) header(ctx bCtx.Ctx, number uint64) (*types.Header, error) {
	b := backoff.NewExponential(headerBackoffMin, headerBackoffMax)
	n := new(big.Int).SetUint64(number)
	for attempt := 1; ; attempt++ {
		h, err := f.rpc.HeaderByNumber(ctx, n)
		if err == nil {
			return h, nil
		}
		if attempt >= headerAttempts {
			ctx.WithFields(log.Fields{"err": err, "block": number}).Error("rpc.HeaderByNumber failed")
			return nil, err
		}
		f.met.BumpSum("header.retry", 1)
		if err := b.Backoff(ctx); err != nil {
			return nil, err
		}
	}
}
