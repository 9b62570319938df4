package tracker

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/service/query"
)

// CursorVersion is bumped whenever the meaning of a stored cursor changes.
// Version 0 cursors pointed at the last fully processed block.
const CursorVersion = 1

// seen reports whether l is at or before the committed cursor
func seen(state *domain.TrackerState, l *chainLog) bool {
	return state.Covers(l.BlockNumber, int64(l.Index))
}

func (f *EventTracker) cursorId() *domain.TrackerStateId {
	return &domain.TrackerStateId{
		ChainId:         domain.ChainId(f.chainId),
		ContractAddress: toDomainAddress(f.contract),
		Tag:             f.tag,
	}
}

// resume loads the stored cursor, creating one at the deployment block of the
// contract on the first run.
func (f *EventTracker) resume(ctx bCtx.Ctx) (*domain.TrackerState, error) {
	id := f.cursorId()
	state, err := f.states.Get(ctx, id)
	switch {
	case err == nil:
		return f.migrate(ctx, state)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, query.ErrNotFound):
	default:
		return nil, err
	}

	start := f.deployedBlock
	if start == 0 {
		if start, err = locateDeployment(ctx, f.archive, f.contract); err != nil {
			ctx.WithFields(log.Fields{"err": err, "contract": id.ContractAddress}).Error("locateDeployment failed")
			return nil, err
		}
	}
	ctx.WithFields(log.Fields{"contract": id.ContractAddress, "tag": f.tag, "start": start}).Info("new cursor")

	state = &domain.TrackerState{
		ChainId:               id.ChainId,
		ContractAddress:       id.ContractAddress,
		Tag:                   id.Tag,
		Version:               CursorVersion,
		LastBlockProcessed:    start,
		LastLogIndexProcessed: -1,
	}
	if err := f.states.Store(ctx, state); err != nil {
		ctx.WithField("err", err).Error("states.Store failed")
		return nil, err
	}
	return state, nil
}

func (f *EventTracker) migrate(ctx bCtx.Ctx, state *domain.TrackerState) (*domain.TrackerState, error) {
	switch state.Version {
	case CursorVersion:
		return state, nil
	case CursorVersion - 1:
		state.Version = CursorVersion
		state.LastBlockProcessed++
		state.LastLogIndexProcessed = -1
		if err := f.states.Update(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	return nil, fmt.Errorf("unsupported cursor version %d", state.Version)
}

// locateDeployment finds the first block where addr has code
func locateDeployment(ctx bCtx.Ctx, c domain.EthClientRepo, addr common.Address) (uint64, error) {
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	var searchErr error
	blk := sort.Search(int(head)+1, func(i int) bool {
		if searchErr != nil {
			return true
		}
		code, err := c.CodeAt(ctx, addr, new(big.Int).SetUint64(uint64(i)))
		if err != nil {
			searchErr = err
			return true
		}
		return len(code) > 0
	})
	if searchErr != nil {
		return 0, searchErr
	}
	if uint64(blk) > head {
		return 0, fmt.Errorf("no code at %s", addr.Hex())
	}
	return uint64(blk), nil
}
