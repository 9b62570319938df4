package listing

import (
	"math/big"
	"time"

	"github.com/x-xyz/listingengine/domain"
)

type Status string

const (
	StatusForming    Status = "FORMING"
	StatusNotStarted Status = "NOT_STARTED"
	StatusActive     Status = "ACTIVE"
	StatusEnded      Status = "ENDED"
	StatusCancelled  Status = "CANCELLED"
	StatusFinalized  Status = "FINALIZED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusForming, StatusNotStarted, StatusActive, StatusEnded, StatusCancelled, StatusFinalized:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusFinalized
}

// View is the derived, never persisted read model of a listing
type View struct {
	Id                  ListingId      `json:"id"`
	ChainId             domain.ChainId `json:"chainId"`
	Status              Status         `json:"status"`
	PendingGroups       []string       `json:"pendingGroups,omitempty"`
	Core                *CoreGroup     `json:"core,omitempty"`
	Token               *TokenGroup    `json:"token,omitempty"`
	Fees                *FeeGroup      `json:"fees,omitempty"`
	TotalSold           uint64         `json:"totalSold"`
	SoldOut             bool           `json:"soldOut"`
	HasBid              bool           `json:"hasBid"`
	BidCount            int            `json:"bidCount"`
	HighestBidder       domain.Address `json:"highestBidder,omitempty"`
	CurrentPrice        Amount         `json:"currentPrice,omitempty"`
	MinimumNextBid      Amount         `json:"minimumNextBid,omitempty"`
	MinimumBidExclusive bool           `json:"minimumBidExclusive"`
	DisplayPrice        string         `json:"displayPrice,omitempty"`
	Running             bool           `json:"running"`
	TimeRemaining       int64          `json:"timeRemaining"`
	SecondsUntilStart   int64          `json:"secondsUntilStart"`
	HoldbackBps         uint32         `json:"holdbackBps,omitempty"`
	Metadata            *AssetMetadata `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// AssetMetadata is auxiliary data about the listed token
type AssetMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Derive computes the view of l at now. It never touches storage.
func Derive(l *Listing, bids []*Bid, now time.Time) View {
	v := View{
		Id:            l.Id,
		ChainId:       l.ChainId,
		PendingGroups: l.PendingGroups(),
		Core:          l.Core,
		Token:         l.Token,
		Fees:          l.Fees,
		TotalSold:     l.TotalSold,
		HasBid:        l.HasBid || len(bids) > 0,
		BidCount:      len(bids),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if len(v.PendingGroups) == 0 {
		v.PendingGroups = nil
	}
	if l.Cancelled != nil {
		v.HoldbackBps = l.Cancelled.HoldbackBps
	}

	v.Status = deriveStatus(l, now)
	if l.Core == nil {
		return v
	}
	core := l.Core
	ts := now.Unix()

	price := core.InitialAmount.Big()
	if price == nil {
		price = new(big.Int)
	}
	if top := HighestBid(bids); top != nil {
		price = top.Amount.Big()
		v.HighestBidder = top.Bidder
	}
	v.CurrentPrice = AmountFromBig(price)
	v.MinimumNextBid = AmountFromBig(MinimumNextBid(price, core.MinIncrementBps))
	v.MinimumBidExclusive = core.MinIncrementBps == 0
	v.SoldOut = core.TotalAvailable > 0 && l.TotalSold >= core.TotalAvailable

	if core.StartTime > ts {
		v.SecondsUntilStart = core.StartTime - ts
	}

	switch v.Status {
	case StatusNotStarted:
		if core.EndTime != 0 {
			v.TimeRemaining = core.EndTime - core.StartTime
		}
	case StatusActive:
		v.Running = core.StartTime != 0 || v.HasBid
		if core.EndTime != 0 && core.EndTime > ts {
			v.TimeRemaining = core.EndTime - ts
		}
	}
	return v
}

func deriveStatus(l *Listing, now time.Time) Status {
	switch {
	case l.Finalized != nil:
		return StatusFinalized
	case l.Cancelled != nil:
		return StatusCancelled
	case l.Core == nil:
		return StatusForming
	}
	core := l.Core
	ts := now.Unix()
	switch {
	case core.StartTime != 0 && ts < core.StartTime:
		return StatusNotStarted
	case core.EndTime != 0 && ts >= core.EndTime:
		return StatusEnded
	}
	return StatusActive
}

// HighestBid compares amounts numerically; the earliest position wins a tie
func HighestBid(bids []*Bid) *Bid {
	var top *Bid
	var topAmount *big.Int
	for _, b := range bids {
		a := b.Amount.Big()
		if a == nil {
			continue
		}
		if top == nil {
			top, topAmount = b, a
			continue
		}
		switch a.Cmp(topAmount) {
		case 1:
			top, topAmount = b, a
		case 0:
			if (domain.Position{BlockNumber: top.Block, LogIndex: top.LogIndex}).After(domain.Position{BlockNumber: b.Block, LogIndex: b.LogIndex}) {
				top, topAmount = b, a
			}
		}
	}
	return top
}

// MinimumNextBid is p + floor(p*bps/10000)
func MinimumNextBid(p *big.Int, bps uint32) *big.Int {
	inc := new(big.Int).Mul(p, big.NewInt(int64(bps)))
	inc.Quo(inc, domain.Big10000)
	return inc.Add(inc, p)
}
