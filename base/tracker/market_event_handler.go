package tracker

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/abi"
	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
)

var (
	createListingSig             = abi.MarketABI.Events["CreateListing"].ID
	createListingTokenDetailsSig = abi.MarketABI.Events["CreateListingTokenDetails"].ID
	createListingFeesSig         = abi.MarketABI.Events["CreateListingFees"].ID
	purchaseSig                  = abi.MarketABI.Events["PurchaseEvent"].ID
	bidSig                       = abi.MarketABI.Events["BidEvent"].ID
	offerSig                     = abi.MarketABI.Events["OfferEvent"].ID
	rescindOfferSig              = abi.MarketABI.Events["RescindOfferEvent"].ID
	acceptOfferSig               = abi.MarketABI.Events["AcceptOfferEvent"].ID
	modifyListingSig             = abi.MarketABI.Events["ModifyListing"].ID
	cancelListingSig             = abi.MarketABI.Events["CancelListing"].ID
	finalizeListingSig           = abi.MarketABI.Events["FinalizeListing"].ID
)

var (
	errUnknownSignature   = errors.New("unknown signature")
	errUnknownListingType = errors.New("unknown listing type")
)

type MarketEventHandlerCfg struct {
	ChainId     int64
	Reconciler  listing.Reconciler
	AnomalyHook listing.AnomalyHook
}

type MarketEventHandler struct {
	chainId     domain.ChainId
	reconciler  listing.Reconciler
	anomalyHook listing.AnomalyHook
}

func NewMarketEventHandler(cfg *MarketEventHandlerCfg) EventHandler {
	return &MarketEventHandler{
		chainId:     domain.ChainId(cfg.ChainId),
		reconciler:  cfg.Reconciler,
		anomalyHook: cfg.AnomalyHook,
	}
}

func (h *MarketEventHandler) GetFilterTopics() [][]common.Hash {
	return [][]common.Hash{
		{
			createListingSig,
			createListingTokenDetailsSig,
			createListingFeesSig,
			purchaseSig,
			bidSig,
			offerSig,
			rescindOfferSig,
			acceptOfferSig,
			modifyListingSig,
			cancelListingSig,
			finalizeListingSig,
		},
	}
}

// ProcessEvents decodes and applies logs in order. A log that cannot be
// decoded or carries a malformed payload is recorded and skipped, any other
// failure aborts the batch so that the tracker retries it.
func (h *MarketEventHandler) ProcessEvents(ctx bCtx.Ctx, logs []chainLog) error {
	for i := range logs {
		l := &logs[i]
		meta := l.meta()
		e, err := h.toEvent(l, meta)
		if err != nil {
			if len(l.Topics) > 0 && errors.Is(err, errUnknownSignature) {
				ctx.WithField("signature", l.Topics[0]).Warn("unrecognized signature, skipping")
				continue
			}
			ctx.WithFields(log.Fields{
				"err":      err,
				"txHash":   meta.TxHash,
				"logIndex": meta.LogIndex,
			}).Error("failed to decode market log")
			h.anomalyHook.Report(ctx, listing.DecodeFailure(listingIdOf(l), meta, err.Error()))
			continue
		}

		err = h.reconciler.Apply(ctx, e)
		if errors.Is(err, domain.ErrMalformedEvent) {
			h.anomalyHook.Report(ctx, listing.DecodeFailure(e.ListingId, meta, err.Error()))
			continue
		}
		if err != nil {
			ctx.WithFields(log.Fields{
				"err":       err,
				"listingId": e.ListingId,
				"kind":      e.Kind,
			}).Error("reconciler.Apply failed")
			return err
		}
	}
	return nil
}

func listingIdOf(l *chainLog) listing.ListingId {
	if len(l.Topics) < 2 {
		return 0
	}
	return listing.ListingId(new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64())
}

func (h *MarketEventHandler) toEvent(l *chainLog, meta domain.LogMeta) (*listing.Event, error) {
	if len(l.Topics) == 0 {
		return nil, errUnknownSignature
	}
	e := &listing.Event{ChainId: h.chainId, Meta: meta}
	switch l.Topics[0] {
	case createListingSig:
		d, err := abi.ToCreateListingLog(&l.Log)
		if err != nil {
			return nil, err
		}
		kind, err := toListingKind(d.ListingType)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventCreateCore
		e.Core = &listing.CoreGroup{
			Seller:            l.sender,
			Kind:              kind,
			InitialAmount:     listing.AmountFromBig(d.InitialAmount),
			TotalAvailable:    d.TotalAvailable.Uint64(),
			UnitsPerSale:      d.TotalPerSale.Uint64(),
			StartTime:         d.StartTime.Int64(),
			EndTime:           d.EndTime.Int64(),
			ExtensionInterval: int64(d.ExtensionInterval),
			MinIncrementBps:   uint32(d.MinIncrementBPS),
			Currency:          toDomainAddress(d.Erc20),
			IdentityVerifier:  toDomainAddress(d.IdentityVerifier),
			MarketplaceFeeBps: uint32(d.MarketplaceBPS),
			ReferrerFeeBps:    uint32(d.ReferrerBPS),
		}
	case createListingTokenDetailsSig:
		d, err := abi.ToCreateListingTokenDetailsLog(&l.Log)
		if err != nil {
			return nil, err
		}
		std := listing.StandardSingle
		if d.Spec == 2 {
			std = listing.StandardMulti
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventCreateToken
		e.Token = &listing.TokenGroup{
			Contract: toDomainAddress(d.Token),
			TokenId:  domain.TokenId(d.TokenId.String()),
			Standard: std,
			LazyMint: d.Lazy,
		}
	case createListingFeesSig:
		d, err := abi.ToCreateListingFeesLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventCreateFees
		e.Fees = &listing.FeeGroup{
			DeliveryFeeBps:   uint32(d.DeliverBPS),
			DeliveryFixedFee: listing.AmountFromBig(d.DeliverFixed),
		}
	case purchaseSig:
		d, err := abi.ToPurchaseLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventPurchase
		e.Purchase = &listing.PurchasePayload{
			Buyer:    toDomainAddress(d.Buyer),
			Units:    d.Count.Uint64(),
			Amount:   listing.AmountFromBig(d.Amount),
			Referrer: toDomainAddress(d.Referrer),
		}
	case bidSig:
		d, err := abi.ToBidLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventBid
		e.Bid = &listing.BidPayload{
			Bidder:   toDomainAddress(d.Bidder),
			Amount:   listing.AmountFromBig(d.Amount),
			Referrer: toDomainAddress(d.Referrer),
		}
	case offerSig:
		d, err := abi.ToOfferLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventOffer
		e.Offer = &listing.OfferPayload{
			Offerer: toDomainAddress(d.Offerer),
			Amount:  listing.AmountFromBig(d.Amount),
		}
	case rescindOfferSig:
		d, err := abi.ToRescindOfferLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventRescindOffer
		e.Resolve = &listing.OfferResolution{Offerer: toDomainAddress(d.Offerer)}
	case acceptOfferSig:
		d, err := abi.ToAcceptOfferLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventAcceptOffer
		e.Resolve = &listing.OfferResolution{Offerer: toDomainAddress(d.Offerer)}
	case modifyListingSig:
		d, err := abi.ToModifyListingLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventModify
		e.Modify = &listing.ModifyPayload{
			InitialAmount: listing.AmountFromBig(d.InitialAmount),
			StartTime:     d.StartTime.Int64(),
			EndTime:       d.EndTime.Int64(),
		}
	case cancelListingSig:
		d, err := abi.ToCancelListingLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventCancel
		e.Cancel = &listing.CancelPayload{HoldbackBps: uint32(d.HoldbackBPS)}
	case finalizeListingSig:
		d, err := abi.ToFinalizeListingLog(&l.Log)
		if err != nil {
			return nil, err
		}
		e.ListingId = listing.ListingId(d.ListingId)
		e.Kind = listing.EventFinalize
	default:
		return nil, errUnknownSignature
	}
	return e, nil
}

func toListingKind(t uint8) (listing.Kind, error) {
	switch t {
	case 1:
		return listing.KindAuction, nil
	case 2:
		return listing.KindFixedPrice, nil
	case 3:
		return listing.KindDynamicPrice, nil
	case 4:
		return listing.KindOffersOnly, nil
	}
	return "", xerrors.Errorf("%d: %w", t, errUnknownListingType)
}
