package listing

import (
	"time"

	"github.com/x-xyz/listingengine/domain"
)

type AnomalyKind string

const (
	AnomalyBidAfterFinalize    AnomalyKind = "bid_after_finalize"
	AnomalyWriteAfterFinalize  AnomalyKind = "write_after_finalize"
	AnomalyOversell            AnomalyKind = "oversell"
	AnomalyFinalizeAfterCancel AnomalyKind = "finalize_after_cancel"
	AnomalyDecodeFailure       AnomalyKind = "decode_failure"
	AnomalyHasBidMismatch      AnomalyKind = "has_bid_mismatch"
	AnomalySoldMismatch        AnomalyKind = "sold_mismatch"
)

// Anomaly is an operator visible record of an event that broke an invariant
type Anomaly struct {
	Id        string          `bson:"id" json:"id"`
	Kind      AnomalyKind     `bson:"kind" json:"kind"`
	ListingId ListingId       `bson:"listingId" json:"listingId"`
	EventKind EventKind       `bson:"eventKind,omitempty" json:"eventKind,omitempty"`
	At        domain.Position `bson:"at" json:"at"`
	TxHash    domain.TxHash   `bson:"txHash,omitempty" json:"txHash,omitempty"`
	Detail    string          `bson:"detail" json:"detail"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
}

func newAnomaly(kind AnomalyKind, e *Event, detail string) Anomaly {
	return Anomaly{
		Kind:      kind,
		ListingId: e.ListingId,
		EventKind: e.Kind,
		At:        e.Position(),
		TxHash:    e.Meta.TxHash,
		Detail:    detail,
	}
}

// DecodeFailure records a market log that could not be turned into an event
func DecodeFailure(id ListingId, meta domain.LogMeta, detail string) Anomaly {
	return Anomaly{
		Kind:      AnomalyDecodeFailure,
		ListingId: id,
		At:        meta.Position(),
		TxHash:    meta.TxHash,
		Detail:    detail,
	}
}

// AuditFailure records a stored listing whose counters disagree with its rows
func AuditFailure(kind AnomalyKind, l *Listing, detail string) Anomaly {
	return Anomaly{
		Kind:      kind,
		ListingId: l.Id,
		At:        domain.Position{BlockNumber: l.LastWriteBlock},
		Detail:    detail,
	}
}
