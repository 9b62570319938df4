package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/semaphore"

	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
)

// ThrottledClient lets at most n rpc calls reach the node at once. A caller
// whose context ends while queued gets the context error without a call.
type ThrottledClient struct {
	client domain.EthClientRepo
	sem    *semaphore.Weighted
	met    metrics.Service
}

func NewThrottledClient(client domain.EthClientRepo, n int, met metrics.Service) *ThrottledClient {
	return &ThrottledClient{
		client: client,
		sem:    semaphore.NewWeighted(int64(n)),
		met:    met,
	}
}

func (c *ThrottledClient) acquire(ctx context.Context, call string) (func(), error) {
	queued := time.Now()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.met.BumpSum("throttle.cancelled", 1, "call", call)
		return nil, err
	}
	c.met.BumpHistogram("throttle.wait", float64(time.Since(queued).Milliseconds()), "call", call)
	end := c.met.BumpTime("rpc.latency", "call", call)
	return func() {
		end.End()
		c.sem.Release(1)
	}, nil
}

func throttled[T any](c *ThrottledClient, ctx context.Context, call string, f func() (T, error)) (T, error) {
	release, err := c.acquire(ctx, call)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return f()
}

func (c *ThrottledClient) BlockNumber(ctx context.Context) (uint64, error) {
	return throttled(c, ctx, "blockNumber", func() (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
}

func (c *ThrottledClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return throttled(c, ctx, "headerByNumber", func() (*types.Header, error) {
		return c.client.HeaderByNumber(ctx, number)
	})
}

func (c *ThrottledClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return throttled(c, ctx, "filterLogs", func() ([]types.Log, error) {
		return c.client.FilterLogs(ctx, q)
	})
}

// SubscribeFilterLogs only throttles the subscribe call, not the stream
func (c *ThrottledClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return throttled(c, ctx, "subscribeFilterLogs", func() (ethereum.Subscription, error) {
		return c.client.SubscribeFilterLogs(ctx, q, ch)
	})
}

func (c *ThrottledClient) CodeAt(ctx context.Context, addr common.Address, number *big.Int) ([]byte, error) {
	return throttled(c, ctx, "codeAt", func() ([]byte, error) {
		return c.client.CodeAt(ctx, addr, number)
	})
}

func (c *ThrottledClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	release, err := c.acquire(ctx, "transactionByHash")
	if err != nil {
		return nil, false, err
	}
	defer release()
	return c.client.TransactionByHash(ctx, hash)
}
