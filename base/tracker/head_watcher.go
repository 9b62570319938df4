package tracker

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
)

type CurrentBlockProvider interface {
	BlockNumber(context.Context) (uint64, error)
}

// HeadSource is the part of ethclient.Client the watcher needs
type HeadSource interface {
	BlockNumber(context.Context) (uint64, error)
	SubscribeNewHead(context.Context, chan<- *types.Header) (ethereum.Subscription, error)
}

// HeadWatcher serves the latest head seen on a newHeads subscription so that
// trackers don't ask the node on every tick.
type HeadWatcher struct {
	source HeadSource
	head   atomic.Uint64
	errCh  chan<- error
	done   chan struct{}
}

func NewHeadWatcher(source HeadSource, errCh chan<- error) *HeadWatcher {
	return &HeadWatcher{
		source: source,
		errCh:  errCh,
		done:   make(chan struct{}),
	}
}

func (w *HeadWatcher) BlockNumber(context.Context) (uint64, error) {
	return w.head.Load(), nil
}

// Start reads the head once and then follows new heads until ctx is done
func (w *HeadWatcher) Start(ctx bCtx.Ctx) error {
	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		ctx.WithField("err", err).Error("source.BlockNumber failed")
		return err
	}
	w.head.Store(head)

	headers := make(chan *types.Header, 16)
	sub, err := w.source.SubscribeNewHead(ctx, headers)
	if err != nil {
		ctx.WithField("err", err).Error("source.SubscribeNewHead failed")
		return err
	}
	go w.follow(ctx, sub, headers)
	return nil
}

func (w *HeadWatcher) Wait() {
	<-w.done
}

func (w *HeadWatcher) follow(ctx bCtx.Ctx, sub ethereum.Subscription, headers <-chan *types.Header) {
	defer close(w.done)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-headers:
			// heads may arrive out of order around reorgs, never step back
			if n := h.Number.Uint64(); n > w.head.Load() {
				w.head.Store(n)
			}
		case err := <-sub.Err():
			ctx.WithField("err", err).Error("head subscription dropped")
			w.errCh <- err
			return
		}
	}
}
