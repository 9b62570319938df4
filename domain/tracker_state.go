package domain

import (
	"github.com/x-xyz/listingengine/base/ctx"
)

// DefaultTag names the cursor of a tracker configured without a tag
const DefaultTag = "default"

// TrackerStateId selects one cursor. The field order matches the unique
// index, so the value itself is the mongo filter.
type TrackerStateId struct {
	ChainId         ChainId `bson:"chainId"`
	ContractAddress Address `bson:"contractAddress"`
	Tag             string  `bson:"tag"`
}

// TrackerState is a durable cursor: everything up to and including log
// LastLogIndexProcessed of block LastBlockProcessed has been applied. An
// index of -1 means no log of that block is applied yet.
type TrackerState struct {
	ChainId               ChainId `bson:"chainId"`
	ContractAddress       Address `bson:"contractAddress"`
	Tag                   string  `bson:"tag"`
	Version               uint64  `bson:"version"`
	LastBlockProcessed    uint64  `bson:"lastBlockProcessed"`
	LastLogIndexProcessed int64   `bson:"lastLogIndexProcessed"`
}

func (s *TrackerState) ToId() *TrackerStateId {
	return &TrackerStateId{
		ChainId:         s.ChainId,
		ContractAddress: s.ContractAddress,
		Tag:             s.Tag,
	}
}

// Covers is true for a log at or before the cursor
func (s *TrackerState) Covers(block uint64, logIndex int64) bool {
	switch {
	case block < s.LastBlockProcessed:
		return true
	case block > s.LastBlockProcessed:
		return false
	}
	return logIndex <= s.LastLogIndexProcessed
}

type TrackerStateRepo interface {
	Get(c ctx.Ctx, id *TrackerStateId) (*TrackerState, error)
	// Store inserts a new cursor, ErrConflict if one exists
	Store(c ctx.Ctx, s *TrackerState) error
	// Update moves an existing cursor, ErrNotFound if there is none
	Update(c ctx.Ctx, s *TrackerState) error
}

// TrackerStateUseCase bounds every repository call by a timeout
type TrackerStateUseCase interface {
	Get(c ctx.Ctx, id *TrackerStateId) (*TrackerState, error)
	Store(c ctx.Ctx, s *TrackerState) error
	Update(c ctx.Ctx, s *TrackerState) error
}
