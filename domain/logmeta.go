package domain

import "time"

// LogMeta locates an event on chain. Sender is empty unless the tracker
// decodes transaction senders.
type LogMeta struct {
	Contract    Address
	BlockNumber BlockNumber
	BlockTime   time.Time
	TxHash      TxHash
	TxIndex     uint
	LogIndex    uint
	Sender      Address
}

func (m LogMeta) Position() Position {
	return Position{BlockNumber: m.BlockNumber, LogIndex: m.LogIndex}
}
