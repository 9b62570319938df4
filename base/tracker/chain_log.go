package tracker

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/x-xyz/listingengine/domain"
)

// chainLog is a raw log plus what the reconciler needs from its block and tx
type chainLog struct {
	types.Log
	blockTime time.Time
	sender    domain.Address
}

func (l *chainLog) meta() domain.LogMeta {
	return domain.LogMeta{
		Contract:    toDomainAddress(l.Address),
		BlockNumber: domain.BlockNumber(l.BlockNumber),
		BlockTime:   l.blockTime,
		TxHash:      domain.TxHash(lowerHex(l.TxHash)),
		TxIndex:     l.TxIndex,
		LogIndex:    l.Index,
		Sender:      l.sender,
	}
}

type hexer interface {
	Hex() string
}

func lowerHex(h hexer) string {
	return strings.ToLower(h.Hex())
}

func toDomainAddress(h hexer) domain.Address {
	return domain.Address(lowerHex(h))
}
