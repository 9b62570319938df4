package listing

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/x-xyz/listingengine/domain"
)

type ListingId uint64

func (id ListingId) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type Kind string

const (
	KindAuction      Kind = "auction"
	KindFixedPrice   Kind = "fixed_price"
	KindDynamicPrice Kind = "dynamic_price"
	KindOffersOnly   Kind = "offers_only"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindAuction, KindFixedPrice, KindDynamicPrice, KindOffersOnly:
		return true
	}
	return false
}

type Standard string

const (
	StandardSingle Standard = "single"
	StandardMulti  Standard = "multi"
)

// Amount is an unsigned 256 bit integer in base 10
type Amount string

const amountKeyWidth = 78 // digits of 2^256

func AmountFromBig(v *big.Int) Amount {
	if v == nil {
		return "0"
	}
	return Amount(v.String())
}

func (a Amount) Big() *big.Int {
	v, ok := new(big.Int).SetString(string(a), 10)
	if !ok {
		return nil
	}
	return v
}

func (a Amount) IsValid() bool {
	v := a.Big()
	return v != nil && v.Sign() >= 0 && len(a) <= amountKeyWidth
}

// Key pads the amount so that string order equals numeric order
func (a Amount) Key() string {
	s := strings.TrimLeft(string(a), "0")
	if len(s) >= amountKeyWidth {
		return s
	}
	return strings.Repeat("0", amountKeyWidth-len(s)) + s
}

type CoreGroup struct {
	Seller            domain.Address  `bson:"seller" json:"seller"`
	Kind              Kind            `bson:"kind" json:"kind"`
	InitialAmount     Amount          `bson:"initialAmount" json:"initialAmount"`
	TotalAvailable    uint64          `bson:"totalAvailable" json:"totalAvailable"`
	UnitsPerSale      uint64          `bson:"unitsPerSale" json:"unitsPerSale"`
	StartTime         int64           `bson:"startTime" json:"startTime"`
	EndTime           int64           `bson:"endTime" json:"endTime"`
	ExtensionInterval int64           `bson:"extensionInterval" json:"extensionInterval"`
	MinIncrementBps   uint32          `bson:"minIncrementBps" json:"minIncrementBps"`
	Currency          domain.Address  `bson:"currency" json:"currency"`
	IdentityVerifier  domain.Address  `bson:"identityVerifier" json:"identityVerifier"`
	MarketplaceFeeBps uint32          `bson:"marketplaceFeeBps" json:"marketplaceFeeBps"`
	ReferrerFeeBps    uint32          `bson:"referrerFeeBps" json:"referrerFeeBps"`
	WrittenAt         domain.Position `bson:"writtenAt" json:"-"`
	ModifiedAt        domain.Position `bson:"modifiedAt" json:"-"`
}

// SaleUnits is how many units one accepted offer sells
func (c *CoreGroup) SaleUnits() uint64 {
	if c.UnitsPerSale == 0 {
		return 1
	}
	return c.UnitsPerSale
}

type TokenGroup struct {
	Contract  domain.Address  `bson:"contract" json:"contract"`
	TokenId   domain.TokenId  `bson:"tokenId" json:"tokenId"`
	Standard  Standard        `bson:"standard" json:"standard"`
	LazyMint  bool            `bson:"lazyMint" json:"lazyMint"`
	WrittenAt domain.Position `bson:"writtenAt" json:"-"`
}

type FeeGroup struct {
	DeliveryFeeBps   uint32          `bson:"deliveryFeeBps" json:"deliveryFeeBps"`
	DeliveryFixedFee Amount          `bson:"deliveryFixedFee" json:"deliveryFixedFee"`
	WrittenAt        domain.Position `bson:"writtenAt" json:"-"`
}

type Cancellation struct {
	HoldbackBps uint32          `bson:"holdbackBps" json:"holdbackBps"`
	TxHash      domain.TxHash   `bson:"txHash" json:"txHash"`
	At          domain.Position `bson:"at" json:"-"`
}

type Finalization struct {
	TxHash domain.TxHash   `bson:"txHash" json:"txHash"`
	At     domain.Position `bson:"at" json:"-"`
}

// Modification is a price/time overwrite
type Modification struct {
	InitialAmount Amount          `bson:"initialAmount"`
	StartTime     int64           `bson:"startTime"`
	EndTime       int64           `bson:"endTime"`
	At            domain.Position `bson:"at"`
}

type Listing struct {
	Id             ListingId          `bson:"id"`
	ChainId        domain.ChainId     `bson:"chainId"`
	Contract       domain.Address     `bson:"contract"`
	Core           *CoreGroup         `bson:"core"`
	Token          *TokenGroup        `bson:"token"`
	Fees           *FeeGroup          `bson:"fees"`
	TotalSold      uint64             `bson:"totalSold"`
	HasBid         bool               `bson:"hasBid"`
	Cancelled      *Cancellation      `bson:"cancelled"`
	Finalized      *Finalization      `bson:"finalized"`
	PendingModify  *Modification      `bson:"pendingModify"`
	PendingSales   uint64             `bson:"pendingSales"`
	LastWriteBlock domain.BlockNumber `bson:"lastWriteBlock"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
	Version        int64              `bson:"version"`
}

func New(id ListingId, chainId domain.ChainId, contract domain.Address) *Listing {
	return &Listing{
		Id:       id,
		ChainId:  chainId,
		Contract: contract.ToLower(),
	}
}

// Clone copies the listing deep enough for the reducer to mutate it
func (l *Listing) Clone() *Listing {
	c := *l
	if l.Core != nil {
		core := *l.Core
		c.Core = &core
	}
	if l.Token != nil {
		token := *l.Token
		c.Token = &token
	}
	if l.Fees != nil {
		fees := *l.Fees
		c.Fees = &fees
	}
	if l.Cancelled != nil {
		cancelled := *l.Cancelled
		c.Cancelled = &cancelled
	}
	if l.Finalized != nil {
		finalized := *l.Finalized
		c.Finalized = &finalized
	}
	if l.PendingModify != nil {
		m := *l.PendingModify
		c.PendingModify = &m
	}
	return &c
}

// PendingGroups names the creation groups that have not arrived yet
func (l *Listing) PendingGroups() []string {
	res := []string{}
	if l.Core == nil {
		res = append(res, "core")
	}
	if l.Token == nil {
		res = append(res, "token")
	}
	if l.Fees == nil {
		res = append(res, "fees")
	}
	return res
}

func (l *Listing) IsFinalized() bool {
	return l.Finalized != nil
}

func (l *Listing) IsCancelled() bool {
	return l.Cancelled != nil
}

// Tags are the cache tags a write to this listing invalidates
func (l *Listing) Tags() []string {
	tags := []string{TagListing(l.Id), TagAllListings}
	if l.Core != nil {
		tags = append(tags, TagSeller(l.Core.Seller))
	}
	return tags
}

// RowKey identifies an immutable child row by the log that produced it
type RowKey struct {
	TxHash   domain.TxHash `bson:"txHash" json:"txHash"`
	LogIndex uint          `bson:"logIndex" json:"logIndex"`
}

type Bid struct {
	ListingId ListingId          `bson:"listingId" json:"listingId"`
	TxHash    domain.TxHash      `bson:"txHash" json:"txHash"`
	LogIndex  uint               `bson:"logIndex" json:"logIndex"`
	Bidder    domain.Address     `bson:"bidder" json:"bidder"`
	Amount    Amount             `bson:"amount" json:"amount"`
	AmountKey string             `bson:"amountKey" json:"-"`
	Referrer  domain.Address     `bson:"referrer" json:"referrer"`
	Block     domain.BlockNumber `bson:"blockNumber" json:"blockNumber"`
	BlockTime time.Time          `bson:"blockTime" json:"blockTime"`
}

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRescinded OfferStatus = "rescinded"
)

type Offer struct {
	ListingId ListingId          `bson:"listingId" json:"listingId"`
	TxHash    domain.TxHash      `bson:"txHash" json:"txHash"`
	LogIndex  uint               `bson:"logIndex" json:"logIndex"`
	Offerer   domain.Address     `bson:"offerer" json:"offerer"`
	Amount    Amount             `bson:"amount" json:"amount"`
	Status    OfferStatus        `bson:"status" json:"status"`
	Block     domain.BlockNumber `bson:"blockNumber" json:"blockNumber"`
	BlockTime time.Time          `bson:"blockTime" json:"blockTime"`

	// ResolvedBy is the accept or rescind log that moved the offer out of pending
	ResolvedBy *RowKey `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
}

type Purchase struct {
	ListingId ListingId          `bson:"listingId" json:"listingId"`
	TxHash    domain.TxHash      `bson:"txHash" json:"txHash"`
	LogIndex  uint               `bson:"logIndex" json:"logIndex"`
	Buyer     domain.Address     `bson:"buyer" json:"buyer"`
	Units     uint64             `bson:"units" json:"units"`
	Amount    Amount             `bson:"amount" json:"amount"`
	Referrer  domain.Address     `bson:"referrer" json:"referrer"`
	Block     domain.BlockNumber `bson:"blockNumber" json:"blockNumber"`
	BlockTime time.Time          `bson:"blockTime" json:"blockTime"`
}

// BidderEntry is one listing a bidder took part in, with the bidder's top bid
type BidderEntry struct {
	ListingId     ListingId `bson:"_id"`
	BidderHighest Amount    `bson:"amount"`
}

const (
	TagAllListings = "listings:all"
)

func TagListing(id ListingId) string {
	return "listing:" + id.String()
}

func TagSeller(addr domain.Address) string {
	return "seller:" + addr.ToLowerStr()
}

func TagBidder(addr domain.Address) string {
	return "bidder:" + addr.ToLowerStr()
}
