package tracker

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/chain"
	"github.com/x-xyz/listingengine/service/query"
)

type EventHandler interface {
	GetFilterTopics() [][]common.Hash
	ProcessEvents(bCtx.Ctx, []chainLog) error
}

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 5
)

type RetryCfg struct {
	Min      time.Duration
	Max      time.Duration
	Attempts int
}

var defaultRetry = RetryCfg{Min: 500 * time.Millisecond, Max: 30 * time.Second, Attempts: 8}

type EventTrackerCfg struct {
	ChainId  int64
	Contract common.Address
	Tag      string

	Head CurrentBlockProvider
	// Ws serves the log subscription, Rpc serves ranges, headers and txs,
	// Archive is only needed to find the deployment block
	Ws      domain.EthClientRepo
	Rpc     domain.EthClientRepo
	Archive domain.EthClientRepo

	Mongo   query.Mongo
	States  domain.TrackerStateUseCase
	Blocks  chain.BlockUseCase
	Handler EventHandler
	ErrorCh chan<- error

	// FollowDistance is how deep a block must be before it is applied
	FollowDistance uint64
	// DeployedBlock skips the deployment search for a fresh cursor when set
	DeployedBlock uint64
	DecodeSender  bool
	PollInterval  time.Duration
	BatchSize     int
	Retry         RetryCfg
}

// EventTracker applies the logs of one contract in order, block by block,
// and keeps a cursor of the last applied log next to the data it produced.
type EventTracker struct {
	chainId        int64
	contract       common.Address
	tag            string
	head           CurrentBlockProvider
	ws             domain.EthClientRepo
	rpc            domain.EthClientRepo
	archive        domain.EthClientRepo
	q              query.Mongo
	states         domain.TrackerStateUseCase
	blocks         chain.BlockUseCase
	handler        EventHandler
	errorCh        chan<- error
	signer         types.Signer
	filter         ethereum.FilterQuery
	followDistance uint64
	deployedBlock  uint64
	decodeSender   bool
	pollInterval   time.Duration
	batchSize      int
	retry          RetryCfg
	met            metrics.Service

	state   *domain.TrackerState
	stopped chan struct{}
}

func NewEventTracker(cfg *EventTrackerCfg) (*EventTracker, error) {
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("tracker needs a contract address")
	}
	retry := cfg.Retry
	if retry.Min <= 0 {
		retry.Min = defaultRetry.Min
	}
	if retry.Max <= 0 {
		retry.Max = defaultRetry.Max
	}
	if retry.Attempts <= 0 {
		retry.Attempts = defaultRetry.Attempts
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	tag := cfg.Tag
	if tag == "" {
		tag = domain.DefaultTag
	}
	return &EventTracker{
		chainId:  cfg.ChainId,
		contract: cfg.Contract,
		tag:      tag,
		head:     cfg.Head,
		ws:       cfg.Ws,
		rpc:      cfg.Rpc,
		archive:  cfg.Archive,
		q:        cfg.Mongo,
		states:   cfg.States,
		blocks:   cfg.Blocks,
		handler:  cfg.Handler,
		errorCh:  cfg.ErrorCh,
		signer:   types.LatestSignerForChainID(big.NewInt(cfg.ChainId)),
		filter: ethereum.FilterQuery{
			Addresses: []common.Address{cfg.Contract},
			Topics:    cfg.Handler.GetFilterTopics(),
		},
		followDistance: cfg.FollowDistance,
		deployedBlock:  cfg.DeployedBlock,
		decodeSender:   cfg.DecodeSender,
		pollInterval:   poll,
		batchSize:      batch,
		retry:          retry,
		met:            metrics.New("tracker"),
		stopped:        make(chan struct{}),
	}, nil
}

func (f *EventTracker) Start(ctx bCtx.Ctx) {
	go func() {
		defer close(f.stopped)
		if err := f.run(ctx); err != nil {
			f.errorCh <- err
		}
	}()
}

func (f *EventTracker) Wait() {
	<-f.stopped
}

func (f *EventTracker) run(ctx bCtx.Ctx) error {
	ctx = bCtx.WithValues(ctx, map[string]interface{}{
		"contract": lowerHex(f.contract),
		"tag":      f.tag,
	})
	state, err := f.resume(ctx)
	if err != nil {
		ctx.WithField("err", err).Error("resume failed")
		return err
	}
	f.state = state

	if err := f.catchUp(ctx); err != nil {
		ctx.WithField("err", err).Error("catchUp failed")
		return err
	}
	return f.follow(ctx)
}

// follow waits for the subscription to announce logs and applies everything
// up to the safe head once the earliest announced block is deep enough.
func (f *EventTracker) follow(ctx bCtx.Ctx) error {
	// a subscription filter must not carry a block range
	sub := ethereum.FilterQuery{Addresses: f.filter.Addresses, Topics: f.filter.Topics}
	ch := make(chan types.Log, 1024)
	s, err := f.ws.SubscribeFilterLogs(ctx, sub, ch)
	if err != nil {
		ctx.WithField("err", err).Error("ws.SubscribeFilterLogs failed")
		return err
	}
	defer s.Unsubscribe()

	// logs between the catch up and the subscription are covered by a marker
	// at the current head
	head, err := f.head.BlockNumber(ctx)
	if err != nil {
		return err
	}
	w := &waitList{}
	w.add(head)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.Err():
			ctx.WithField("err", err).Error("log subscription dropped")
			return err
		case l := <-ch:
			if !w.add(l.BlockNumber) {
				ctx.WithFields(log.Fields{"block": l.BlockNumber, "latest": w.latest}).Warn("log behind the wait list")
			}
		case <-ticker.C:
			if w.empty() {
				continue
			}
			target, ok, err := f.safeHead(ctx)
			if err != nil {
				return err
			}
			if !ok || !w.ready(target) || target < f.state.LastBlockProcessed {
				continue
			}
			if err := f.scan(ctx, newBlockRange(f.state.LastBlockProcessed, target)); err != nil {
				ctx.WithField("err", err).Error("scan failed")
				return err
			}
			w.drop(target)
		}
	}
}

// waitList holds announced block numbers in ascending order
type waitList struct {
	blocks []uint64
	latest uint64
}

// add returns false when n is older than the latest announced block
func (w *waitList) add(n uint64) bool {
	if n < w.latest {
		return false
	}
	if n > w.latest || w.empty() {
		w.latest = n
		w.blocks = append(w.blocks, n)
	}
	return true
}

func (w *waitList) empty() bool {
	return len(w.blocks) == 0
}

func (w *waitList) ready(target uint64) bool {
	return len(w.blocks) > 0 && w.blocks[0] <= target
}

func (w *waitList) drop(target uint64) {
	i := 0
	for i < len(w.blocks) && w.blocks[i] <= target {
		i++
	}
	w.blocks = w.blocks[i:]
}
