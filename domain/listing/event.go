package listing

import (
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/domain"
)

type EventKind string

const (
	EventCreateCore   EventKind = "create_core"
	EventCreateToken  EventKind = "create_token"
	EventCreateFees   EventKind = "create_fees"
	EventBid          EventKind = "bid"
	EventOffer        EventKind = "offer"
	EventRescindOffer EventKind = "rescind_offer"
	EventAcceptOffer  EventKind = "accept_offer"
	EventPurchase     EventKind = "purchase"
	EventModify       EventKind = "modify"
	EventCancel       EventKind = "cancel"
	EventFinalize     EventKind = "finalize"
)

type BidPayload struct {
	Bidder   domain.Address
	Amount   Amount
	Referrer domain.Address
}

type OfferPayload struct {
	Offerer domain.Address
	Amount  Amount
}

type OfferResolution struct {
	Offerer domain.Address
	// Units sold by an accepted offer, zero means one sale of unitsPerSale
	Units uint64
}

type PurchasePayload struct {
	Buyer    domain.Address
	Units    uint64
	Amount   Amount
	Referrer domain.Address
}

type ModifyPayload struct {
	InitialAmount Amount
	StartTime     int64
	EndTime       int64
}

type CancelPayload struct {
	HoldbackBps uint32
}

// Event is one decoded market log addressed to a listing
type Event struct {
	ListingId ListingId
	Kind      EventKind
	ChainId   domain.ChainId
	Meta      domain.LogMeta

	Core     *CoreGroup
	Token    *TokenGroup
	Fees     *FeeGroup
	Bid      *BidPayload
	Offer    *OfferPayload
	Resolve  *OfferResolution
	Purchase *PurchasePayload
	Modify   *ModifyPayload
	Cancel   *CancelPayload
}

func (e *Event) Position() domain.Position {
	return e.Meta.Position()
}

func (e *Event) RowKey() RowKey {
	return RowKey{TxHash: e.Meta.TxHash, LogIndex: e.Meta.LogIndex}
}

func malformed(e *Event, reason string) error {
	return xerrors.Errorf("%s at block %d log %d: %s: %w", e.Kind, e.Meta.BlockNumber, e.Meta.LogIndex, reason, domain.ErrMalformedEvent)
}

// Validate checks that the payload matches the kind
func (e *Event) Validate() error {
	if e.ListingId == 0 {
		return malformed(e, "missing listing id")
	}
	switch e.Kind {
	case EventCreateCore:
		if e.Core == nil {
			return malformed(e, "missing core payload")
		}
		if !e.Core.Kind.IsValid() {
			return malformed(e, "unknown listing kind "+string(e.Core.Kind))
		}
		if !e.Core.InitialAmount.IsValid() {
			return malformed(e, "invalid initial amount")
		}
		if e.Core.EndTime != 0 && e.Core.StartTime > e.Core.EndTime {
			return malformed(e, "start after end")
		}
	case EventCreateToken:
		if e.Token == nil || e.Token.Contract.IsEmpty() {
			return malformed(e, "missing token payload")
		}
	case EventCreateFees:
		if e.Fees == nil {
			return malformed(e, "missing fees payload")
		}
		if e.Fees.DeliveryFixedFee != "" && !e.Fees.DeliveryFixedFee.IsValid() {
			return malformed(e, "invalid delivery fee")
		}
	case EventBid:
		if e.Bid == nil || e.Bid.Bidder.IsEmpty() || !e.Bid.Amount.IsValid() {
			return malformed(e, "invalid bid payload")
		}
	case EventOffer:
		if e.Offer == nil || e.Offer.Offerer.IsEmpty() || !e.Offer.Amount.IsValid() {
			return malformed(e, "invalid offer payload")
		}
	case EventRescindOffer, EventAcceptOffer:
		if e.Resolve == nil || e.Resolve.Offerer.IsEmpty() {
			return malformed(e, "missing offerer")
		}
	case EventPurchase:
		if e.Purchase == nil || e.Purchase.Buyer.IsEmpty() || e.Purchase.Units == 0 || !e.Purchase.Amount.IsValid() {
			return malformed(e, "invalid purchase payload")
		}
	case EventModify:
		if e.Modify == nil || !e.Modify.InitialAmount.IsValid() {
			return malformed(e, "invalid modify payload")
		}
		if e.Modify.EndTime != 0 && e.Modify.StartTime > e.Modify.EndTime {
			return malformed(e, "start after end")
		}
	case EventCancel:
		if e.Cancel != nil && e.Cancel.HoldbackBps > 10000 {
			return malformed(e, "holdback above 100%")
		}
	case EventFinalize:
	default:
		return malformed(e, "unknown kind")
	}
	return nil
}

func (e *Event) ToBid() *Bid {
	return &Bid{
		ListingId: e.ListingId,
		TxHash:    e.Meta.TxHash,
		LogIndex:  e.Meta.LogIndex,
		Bidder:    e.Bid.Bidder.ToLower(),
		Amount:    e.Bid.Amount,
		AmountKey: e.Bid.Amount.Key(),
		Referrer:  e.Bid.Referrer.ToLower(),
		Block:     e.Meta.BlockNumber,
		BlockTime: e.Meta.BlockTime,
	}
}

func (e *Event) ToOffer() *Offer {
	return &Offer{
		ListingId: e.ListingId,
		TxHash:    e.Meta.TxHash,
		LogIndex:  e.Meta.LogIndex,
		Offerer:   e.Offer.Offerer.ToLower(),
		Amount:    e.Offer.Amount,
		Status:    OfferStatusPending,
		Block:     e.Meta.BlockNumber,
		BlockTime: e.Meta.BlockTime,
	}
}

func (e *Event) ToPurchase() *Purchase {
	return &Purchase{
		ListingId: e.ListingId,
		TxHash:    e.Meta.TxHash,
		LogIndex:  e.Meta.LogIndex,
		Buyer:     e.Purchase.Buyer.ToLower(),
		Units:     e.Purchase.Units,
		Amount:    e.Purchase.Amount,
		Referrer:  e.Purchase.Referrer.ToLower(),
		Block:     e.Meta.BlockNumber,
		BlockTime: e.Meta.BlockTime,
	}
}
