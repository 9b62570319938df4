package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/chain"
	"github.com/x-xyz/listingengine/domain/mocks"
	"github.com/x-xyz/listingengine/service/query"
)

var contract = common.BigToAddress(big.NewInt(1))

func codeFrom(deployed uint64) func(context.Context, common.Address, *big.Int) []byte {
	return func(_ context.Context, _ common.Address, blk *big.Int) []byte {
		if blk.Uint64() >= deployed {
			return []byte{0x60}
		}
		return nil
	}
}

func TestLocateDeployment(t *testing.T) {
	for _, tt := range []struct{ head, deployed uint64 }{
		{12345, 0},
		{12345, 3},
		{12345, 6001},
		{12345, 12345},
		{12346, 6000},
	} {
		t.Run(fmt.Sprintf("%d/%d", tt.deployed, tt.head), func(t *testing.T) {
			client := new(mocks.EthClientRepo)
			client.On("BlockNumber", mock.Anything).Return(tt.head, nil)
			client.On("CodeAt", mock.Anything, contract, mock.AnythingOfType("*big.Int")).Return(codeFrom(tt.deployed), nil)
			blk, err := locateDeployment(bCtx.Background(), client, contract)
			require.NoError(t, err)
			require.Equal(t, tt.deployed, blk)
		})
	}
}

func TestLocateDeploymentWithoutCode(t *testing.T) {
	client := new(mocks.EthClientRepo)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil)
	client.On("CodeAt", mock.Anything, contract, mock.AnythingOfType("*big.Int")).Return(nil, nil)
	_, err := locateDeployment(bCtx.Background(), client, contract)
	require.Error(t, err)
}

func cursorId() *domain.TrackerStateId {
	return &domain.TrackerStateId{ChainId: 1, ContractAddress: toDomainAddress(contract), Tag: "market"}
}

func TestResume(t *testing.T) {
	t.Run("stored cursor", func(t *testing.T) {
		req := require.New(t)
		states := new(mocks.TrackerStateUseCase)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states}
		stored := &domain.TrackerState{ChainId: 1, ContractAddress: toDomainAddress(contract), Tag: "market", Version: CursorVersion, LastBlockProcessed: 20}
		states.On("Get", mock.Anything, cursorId()).Return(stored, nil)

		got, err := f.resume(bCtx.Background())
		req.NoError(err)
		req.Equal(stored, got)
	})

	t.Run("old cursor is migrated", func(t *testing.T) {
		req := require.New(t)
		states := new(mocks.TrackerStateUseCase)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states}
		stored := &domain.TrackerState{Version: CursorVersion - 1, LastBlockProcessed: 20, LastLogIndexProcessed: 3}
		states.On("Get", mock.Anything, cursorId()).Return(stored, nil)
		states.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := f.resume(bCtx.Background())
		req.NoError(err)
		req.Equal(uint64(21), got.LastBlockProcessed)
		req.Equal(int64(-1), got.LastLogIndexProcessed)
		req.Equal(uint64(CursorVersion), got.Version)
	})

	t.Run("unknown version", func(t *testing.T) {
		states := new(mocks.TrackerStateUseCase)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states}
		states.On("Get", mock.Anything, cursorId()).Return(&domain.TrackerState{Version: CursorVersion + 1}, nil)
		_, err := f.resume(bCtx.Background())
		require.Error(t, err)
	})

	t.Run("fresh cursor at deployment", func(t *testing.T) {
		req := require.New(t)
		states := new(mocks.TrackerStateUseCase)
		archive := new(mocks.EthClientRepo)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states, archive: archive}
		want := &domain.TrackerState{
			ChainId:               1,
			ContractAddress:       toDomainAddress(contract),
			Tag:                   "market",
			Version:               CursorVersion,
			LastBlockProcessed:    365,
			LastLogIndexProcessed: -1,
		}
		states.On("Get", mock.Anything, cursorId()).Return(nil, query.ErrNotFound)
		states.On("Store", mock.Anything, want).Return(nil)
		archive.On("BlockNumber", mock.Anything).Return(uint64(1024), nil)
		archive.On("CodeAt", mock.Anything, contract, mock.AnythingOfType("*big.Int")).Return(codeFrom(365), nil)

		got, err := f.resume(bCtx.Background())
		req.NoError(err)
		req.Equal(want, got)
	})

	t.Run("configured deployment block", func(t *testing.T) {
		states := new(mocks.TrackerStateUseCase)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states, deployedBlock: 99}
		states.On("Get", mock.Anything, cursorId()).Return(nil, domain.ErrNotFound)
		states.On("Store", mock.Anything, mock.Anything).Return(nil)

		got, err := f.resume(bCtx.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(99), got.LastBlockProcessed)
	})

	t.Run("store failure", func(t *testing.T) {
		states := new(mocks.TrackerStateUseCase)
		f := &EventTracker{chainId: 1, contract: contract, tag: "market", states: states}
		states.On("Get", mock.Anything, cursorId()).Return(nil, errors.New("mongo down"))
		_, err := f.resume(bCtx.Background())
		require.EqualError(t, err, "mongo down")
	})
}

func TestSeen(t *testing.T) {
	state := &domain.TrackerState{LastBlockProcessed: 10, LastLogIndexProcessed: 2}
	at := func(blk uint64, idx uint) *chainLog {
		return &chainLog{Log: types.Log{BlockNumber: blk, Index: idx}}
	}
	require.True(t, seen(state, at(9, 7)))
	require.True(t, seen(state, at(10, 2)))
	require.False(t, seen(state, at(10, 3)))
	require.False(t, seen(state, at(11, 0)))

	fresh := &domain.TrackerState{LastBlockProcessed: 10, LastLogIndexProcessed: -1}
	require.False(t, seen(fresh, at(10, 0)))
}

func TestWaitList(t *testing.T) {
	req := require.New(t)
	w := &waitList{}
	req.True(w.empty())
	req.True(w.add(10))
	req.True(w.add(10))
	req.True(w.add(12))
	req.False(w.add(11))
	req.Equal([]uint64{10, 12}, w.blocks)

	req.False(w.ready(9))
	req.True(w.ready(10))
	w.drop(11)
	req.Equal([]uint64{12}, w.blocks)
	w.drop(12)
	req.True(w.empty())
}

// txMongo runs the closure as if it were a transaction
type txMongo struct {
	query.Mongo
	calls int
}

func (m *txMongo) RunWithTransaction(c bCtx.Ctx, run func(bCtx.Ctx) error) error {
	m.calls++
	return run(c)
}

type flakyHandler struct {
	failures int
	calls    int
	seen     [][]chainLog
}

func (h *flakyHandler) GetFilterTopics() [][]common.Hash { return nil }

func (h *flakyHandler) ProcessEvents(_ bCtx.Ctx, logs []chainLog) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("store down")
	}
	h.seen = append(h.seen, append([]chainLog(nil), logs...))
	return nil
}

type memBlocks struct {
	chain.BlockUseCase
}

func (memBlocks) FindOne(_ bCtx.Ctx, id *chain.BlockId) (*chain.Block, error) {
	return &chain.Block{ChainId: id.ChainId, Number: id.Number, Time: time.Unix(1_700_000_000+int64(id.Number)*12, 0)}, nil
}

func newTestTracker(h EventHandler, states domain.TrackerStateUseCase, attempts int) (*EventTracker, *txMongo) {
	q := &txMongo{}
	return &EventTracker{
		chainId:   1,
		contract:  contract,
		q:         q,
		handler:   h,
		states:    states,
		blocks:    memBlocks{},
		state:     &domain.TrackerState{LastBlockProcessed: 10, LastLogIndexProcessed: 2},
		batchSize: 2,
		retry:     RetryCfg{Min: time.Millisecond, Max: 4 * time.Millisecond, Attempts: attempts},
		met:       metrics.NewNop(),
	}, q
}

func TestCommitRetries(t *testing.T) {
	req := require.New(t)
	states := new(mocks.TrackerStateUseCase)
	states.On("Update", mock.Anything, &domain.TrackerState{LastBlockProcessed: 12, LastLogIndexProcessed: 4}).Return(nil).Once()
	h := &flakyHandler{failures: 2}
	f, q := newTestTracker(h, states, 5)

	req.NoError(f.commit(bCtx.Background(), []chainLog{{}}, 12, 4))
	req.Equal(3, q.calls)
	req.Equal(uint64(12), f.state.LastBlockProcessed)
	req.Equal(int64(4), f.state.LastLogIndexProcessed)
	states.AssertExpectations(t)
}

func TestCommitKeepsCursorOnFailure(t *testing.T) {
	req := require.New(t)
	states := new(mocks.TrackerStateUseCase)
	h := &flakyHandler{failures: 10}
	f, q := newTestTracker(h, states, 3)

	req.Error(f.commit(bCtx.Background(), []chainLog{{}}, 12, 4))
	req.Equal(3, q.calls)
	req.Equal(uint64(10), f.state.LastBlockProcessed)
	req.Equal(int64(2), f.state.LastLogIndexProcessed)
	states.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestScanSkipsCommittedLogsAndBatches(t *testing.T) {
	req := require.New(t)
	states := new(mocks.TrackerStateUseCase)
	states.On("Update", mock.Anything, mock.Anything).Return(nil)
	rpc := new(mocks.EthClientRepo)
	rpc.On("FilterLogs", mock.Anything, mock.AnythingOfType("ethereum.FilterQuery")).Return([]types.Log{
		{BlockNumber: 10, Index: 1},
		{BlockNumber: 10, Index: 2},
		{BlockNumber: 10, Index: 3},
		{BlockNumber: 11, Index: 0},
		{BlockNumber: 12, Index: 4},
	}, nil)
	h := &flakyHandler{}
	f, _ := newTestTracker(h, states, 1)
	f.rpc = rpc

	req.NoError(f.scan(bCtx.Background(), newBlockRange(10, 12)))
	req.Len(h.seen, 2)
	req.Len(h.seen[0], 2)
	req.Len(h.seen[1], 1)
	req.Equal(uint64(10), h.seen[0][0].BlockNumber)
	req.Equal(uint(3), h.seen[0][0].Index)
	req.Equal(time.Unix(1_700_000_000+11*12, 0), h.seen[0][1].blockTime)
	req.Equal(uint64(13), f.state.LastBlockProcessed)
	req.Equal(int64(-1), f.state.LastLogIndexProcessed)
}

// refusingRpc rejects ranges wider than two blocks
type refusingRpc struct {
	domain.EthClientRepo
	asked []string
}

func (r *refusingRpc) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	r.asked = append(r.asked, fmt.Sprintf("%d-%d", from, to))
	if to-from > 1 {
		return nil, errors.New("query returned more than 10000 results")
	}
	return nil, nil
}

func TestScanSplitsRefusedRanges(t *testing.T) {
	req := require.New(t)
	states := new(mocks.TrackerStateUseCase)
	states.On("Update", mock.Anything, mock.Anything).Return(nil)
	rpc := &refusingRpc{}
	f, _ := newTestTracker(&flakyHandler{}, states, 1)
	f.rpc = rpc
	f.state = &domain.TrackerState{LastBlockProcessed: 20, LastLogIndexProcessed: -1}

	req.NoError(f.scan(bCtx.Background(), newBlockRange(20, 23)))
	req.Equal([]string{"20-23", "20-21", "22-23"}, rpc.asked)
	req.Equal(uint64(24), f.state.LastBlockProcessed)
}
