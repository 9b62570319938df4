package abi

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrMissingTopic = errors.New("log has no listing id topic")

var MarketABI abi.ABI

func init() {
	_abi, err := abi.JSON(strings.NewReader(marketABIJson))
	if err != nil {
		panic("Failed to parse market abi")
	}
	MarketABI = _abi
}

type CreateListingLog struct {
	ListingId         uint64 // indexed
	MarketplaceBPS    uint16
	ReferrerBPS       uint16
	ListingType       uint8
	TotalAvailable    *big.Int
	TotalPerSale      *big.Int
	StartTime         *big.Int
	EndTime           *big.Int
	InitialAmount     *big.Int
	ExtensionInterval uint16
	MinIncrementBPS   uint16
	Erc20             common.Address
	IdentityVerifier  common.Address
}

type CreateListingTokenDetailsLog struct {
	ListingId uint64 // indexed
	TokenId   *big.Int
	Token     common.Address
	Spec      uint8
	Lazy      bool
}

type CreateListingFeesLog struct {
	ListingId    uint64 // indexed
	DeliverBPS   uint16
	DeliverFixed *big.Int
}

type PurchaseLog struct {
	ListingId uint64 // indexed
	Referrer  common.Address
	Buyer     common.Address
	Count     *big.Int
	Amount    *big.Int
}

type BidLog struct {
	ListingId uint64 // indexed
	Referrer  common.Address
	Bidder    common.Address
	Amount    *big.Int
}

type OfferLog struct {
	ListingId uint64 // indexed
	Referrer  common.Address
	Offerer   common.Address
	Amount    *big.Int
}

type RescindOfferLog struct {
	ListingId uint64 // indexed
	Offerer   common.Address
	Amount    *big.Int
}

type AcceptOfferLog struct {
	ListingId uint64 // indexed
	Offerer   common.Address
	Amount    *big.Int
}

type ModifyListingLog struct {
	ListingId     uint64 // indexed
	InitialAmount *big.Int
	StartTime     *big.Int
	EndTime       *big.Int
}

type CancelListingLog struct {
	ListingId   uint64 // indexed
	Requestor   common.Address
	HoldbackBPS uint16
}

type FinalizeListingLog struct {
	ListingId uint64 // indexed
}

func listingIdTopic(log *types.Log) (uint64, error) {
	if len(log.Topics) < 2 {
		return 0, ErrMissingTopic
	}
	return new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64(), nil
}

func unpackMarketLog(out interface{}, event string, log *types.Log) (uint64, error) {
	id, err := listingIdTopic(log)
	if err != nil {
		return 0, err
	}
	if len(MarketABI.Events[event].Inputs.NonIndexed()) == 0 {
		return id, nil
	}
	if err := MarketABI.UnpackIntoInterface(out, event, log.Data); err != nil {
		return 0, err
	}
	return id, nil
}

func ToCreateListingLog(log *types.Log) (*CreateListingLog, error) {
	var l CreateListingLog
	id, err := unpackMarketLog(&l, "CreateListing", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToCreateListingTokenDetailsLog(log *types.Log) (*CreateListingTokenDetailsLog, error) {
	var l CreateListingTokenDetailsLog
	id, err := unpackMarketLog(&l, "CreateListingTokenDetails", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToCreateListingFeesLog(log *types.Log) (*CreateListingFeesLog, error) {
	var l CreateListingFeesLog
	id, err := unpackMarketLog(&l, "CreateListingFees", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToPurchaseLog(log *types.Log) (*PurchaseLog, error) {
	var l PurchaseLog
	id, err := unpackMarketLog(&l, "PurchaseEvent", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToBidLog(log *types.Log) (*BidLog, error) {
	var l BidLog
	id, err := unpackMarketLog(&l, "BidEvent", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToOfferLog(log *types.Log) (*OfferLog, error) {
	var l OfferLog
	id, err := unpackMarketLog(&l, "OfferEvent", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToRescindOfferLog(log *types.Log) (*RescindOfferLog, error) {
	var l RescindOfferLog
	id, err := unpackMarketLog(&l, "RescindOfferEvent", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToAcceptOfferLog(log *types.Log) (*AcceptOfferLog, error) {
	var l AcceptOfferLog
	id, err := unpackMarketLog(&l, "AcceptOfferEvent", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToModifyListingLog(log *types.Log) (*ModifyListingLog, error) {
	var l ModifyListingLog
	id, err := unpackMarketLog(&l, "ModifyListing", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToCancelListingLog(log *types.Log) (*CancelListingLog, error) {
	var l CancelListingLog
	id, err := unpackMarketLog(&l, "CancelListing", log)
	if err != nil {
		return nil, err
	}
	l.ListingId = id
	return &l, nil
}

func ToFinalizeListingLog(log *types.Log) (*FinalizeListingLog, error) {
	id, err := listingIdTopic(log)
	if err != nil {
		return nil, err
	}
	return &FinalizeListingLog{ListingId: id}, nil
}

var marketABIJson = `[
{"type":"event","anonymous":false,"name":"CreateListing","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"marketplaceBPS","type":"uint16"},
	{"indexed":false,"name":"referrerBPS","type":"uint16"},
	{"indexed":false,"name":"listingType","type":"uint8"},
	{"indexed":false,"name":"totalAvailable","type":"uint24"},
	{"indexed":false,"name":"totalPerSale","type":"uint24"},
	{"indexed":false,"name":"startTime","type":"uint48"},
	{"indexed":false,"name":"endTime","type":"uint48"},
	{"indexed":false,"name":"initialAmount","type":"uint256"},
	{"indexed":false,"name":"extensionInterval","type":"uint16"},
	{"indexed":false,"name":"minIncrementBPS","type":"uint16"},
	{"indexed":false,"name":"erc20","type":"address"},
	{"indexed":false,"name":"identityVerifier","type":"address"}]},
{"type":"event","anonymous":false,"name":"CreateListingTokenDetails","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"tokenId","type":"uint256"},
	{"indexed":false,"name":"token","type":"address"},
	{"indexed":false,"name":"spec","type":"uint8"},
	{"indexed":false,"name":"lazy","type":"bool"}]},
{"type":"event","anonymous":false,"name":"CreateListingFees","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"deliverBPS","type":"uint16"},
	{"indexed":false,"name":"deliverFixed","type":"uint240"}]},
{"type":"event","anonymous":false,"name":"PurchaseEvent","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"referrer","type":"address"},
	{"indexed":false,"name":"buyer","type":"address"},
	{"indexed":false,"name":"count","type":"uint24"},
	{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","anonymous":false,"name":"BidEvent","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"referrer","type":"address"},
	{"indexed":false,"name":"bidder","type":"address"},
	{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","anonymous":false,"name":"OfferEvent","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"referrer","type":"address"},
	{"indexed":false,"name":"offerer","type":"address"},
	{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","anonymous":false,"name":"RescindOfferEvent","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"offerer","type":"address"},
	{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","anonymous":false,"name":"AcceptOfferEvent","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"offerer","type":"address"},
	{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","anonymous":false,"name":"ModifyListing","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"initialAmount","type":"uint256"},
	{"indexed":false,"name":"startTime","type":"uint48"},
	{"indexed":false,"name":"endTime","type":"uint48"}]},
{"type":"event","anonymous":false,"name":"CancelListing","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"},
	{"indexed":false,"name":"requestor","type":"address"},
	{"indexed":false,"name":"holdbackBPS","type":"uint16"}]},
{"type":"event","anonymous":false,"name":"FinalizeListing","inputs":[
	{"indexed":true,"name":"listingId","type":"uint40"}]}
]`
