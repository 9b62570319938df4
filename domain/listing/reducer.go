package listing

import (
	"fmt"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeStale means the group already holds a write at or after this position
	OutcomeStale Outcome = "stale"
	// OutcomeDuplicate means the terminal state the event asks for is already set
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected means the event broke an invariant, see Anomalies
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored means the event has no effect in the current state
	OutcomeIgnored Outcome = "ignored"
)

type Result struct {
	Listing   *Listing
	Outcome   Outcome
	Anomalies []Anomaly
}

func (r *Result) Changed() bool {
	return r.Outcome == OutcomeApplied
}

// Reduce folds e into cur and returns the new listing state. cur is never
// mutated and may be nil. Child row events (bid, offer, purchase, offer
// resolution) must only be reduced once their row was newly stored.
func Reduce(cur *Listing, e *Event) Result {
	var l *Listing
	if cur == nil {
		l = New(e.ListingId, e.ChainId, e.Meta.Contract)
	} else {
		l = cur.Clone()
	}
	r := Result{Listing: l, Outcome: OutcomeApplied}

	switch e.Kind {
	case EventCreateCore:
		reduceCore(&r, e)
	case EventCreateToken:
		if l.Token != nil && !e.Position().After(l.Token.WrittenAt) {
			r.Outcome = OutcomeStale
			break
		}
		token := *e.Token
		token.Contract = token.Contract.ToLower()
		token.WrittenAt = e.Position()
		l.Token = &token
	case EventCreateFees:
		if l.Fees != nil && !e.Position().After(l.Fees.WrittenAt) {
			r.Outcome = OutcomeStale
			break
		}
		if l.IsFinalized() && l.Fees != nil {
			reject(&r, newAnomaly(AnomalyWriteAfterFinalize, e, "fees overwrite on finalized listing"))
			break
		}
		fees := *e.Fees
		if fees.DeliveryFixedFee == "" {
			fees.DeliveryFixedFee = "0"
		}
		fees.WrittenAt = e.Position()
		l.Fees = &fees
	case EventBid:
		// the bid row is kept for audit even after finalization
		l.HasBid = true
		if l.IsFinalized() {
			r.Anomalies = append(r.Anomalies, newAnomaly(AnomalyBidAfterFinalize, e,
				fmt.Sprintf("bid of %s by %s", e.Bid.Amount, e.Bid.Bidder)))
		}
	case EventOffer, EventRescindOffer:
		// offers only live in their own rows
	case EventAcceptOffer:
		switch {
		case e.Resolve.Units > 0:
			l.TotalSold += e.Resolve.Units
		case l.Core == nil:
			// sized once core brings unitsPerSale
			l.PendingSales++
		default:
			l.TotalSold += l.Core.SaleUnits()
		}
		clampSold(&r, e)
	case EventPurchase:
		l.TotalSold += e.Purchase.Units
		clampSold(&r, e)
	case EventModify:
		reduceModify(&r, e)
	case EventCancel:
		switch {
		case l.IsFinalized(), l.IsCancelled():
			r.Outcome = OutcomeDuplicate
		default:
			c := &Cancellation{TxHash: e.Meta.TxHash, At: e.Position()}
			if e.Cancel != nil {
				c.HoldbackBps = e.Cancel.HoldbackBps
			}
			l.Cancelled = c
		}
	case EventFinalize:
		switch {
		case l.IsFinalized():
			r.Outcome = OutcomeDuplicate
		case l.IsCancelled():
			reject(&r, newAnomaly(AnomalyFinalizeAfterCancel, e, "finalize on cancelled listing"))
		default:
			l.Finalized = &Finalization{TxHash: e.Meta.TxHash, At: e.Position()}
		}
	}

	if r.Outcome == OutcomeApplied {
		touch(l, e)
	} else {
		r.Listing = cur
		if cur == nil {
			r.Listing = l
		}
	}
	return r
}

func reduceCore(r *Result, e *Event) {
	l := r.Listing
	if l.Core != nil && !e.Position().After(l.Core.WrittenAt) {
		r.Outcome = OutcomeStale
		return
	}
	if l.IsFinalized() && l.Core != nil {
		reject(r, newAnomaly(AnomalyWriteAfterFinalize, e, "core overwrite on finalized listing"))
		return
	}
	core := *e.Core
	core.Seller = core.Seller.ToLower()
	core.Currency = core.Currency.ToLower()
	core.IdentityVerifier = core.IdentityVerifier.ToLower()
	core.WrittenAt = e.Position()
	core.ModifiedAt = e.Position()
	l.Core = &core

	if m := l.PendingModify; m != nil {
		if m.At.After(core.WrittenAt) && !l.IsFinalized() && !l.IsCancelled() {
			applyModification(&core, m)
		}
		l.PendingModify = nil
	}
	if l.PendingSales > 0 {
		l.TotalSold += l.PendingSales * core.SaleUnits()
		l.PendingSales = 0
	}
	clampSold(r, e)
}

func reduceModify(r *Result, e *Event) {
	l := r.Listing
	m := &Modification{
		InitialAmount: e.Modify.InitialAmount,
		StartTime:     e.Modify.StartTime,
		EndTime:       e.Modify.EndTime,
		At:            e.Position(),
	}
	if l.Core == nil {
		if l.PendingModify != nil && !m.At.After(l.PendingModify.At) {
			r.Outcome = OutcomeStale
			return
		}
		l.PendingModify = m
		return
	}
	if !m.At.After(l.Core.ModifiedAt) {
		r.Outcome = OutcomeStale
		return
	}
	if l.IsFinalized() {
		reject(r, newAnomaly(AnomalyWriteAfterFinalize, e, "modify on finalized listing"))
		return
	}
	if l.IsCancelled() {
		r.Outcome = OutcomeIgnored
		return
	}
	applyModification(l.Core, m)
}

func applyModification(core *CoreGroup, m *Modification) {
	core.InitialAmount = m.InitialAmount
	core.StartTime = m.StartTime
	core.EndTime = m.EndTime
	core.ModifiedAt = m.At
}

// clampSold keeps totalSold within totalAvailable once core is known
func clampSold(r *Result, e *Event) {
	l := r.Listing
	if l.Core == nil || l.TotalSold <= l.Core.TotalAvailable {
		return
	}
	r.Anomalies = append(r.Anomalies, newAnomaly(AnomalyOversell, e,
		fmt.Sprintf("sold %d of %d available", l.TotalSold, l.Core.TotalAvailable)))
	l.TotalSold = l.Core.TotalAvailable
}

func reject(r *Result, a Anomaly) {
	r.Outcome = OutcomeRejected
	r.Anomalies = append(r.Anomalies, a)
}

// touch records write bookkeeping in an order independent way
func touch(l *Listing, e *Event) {
	if e.Meta.BlockNumber > l.LastWriteBlock {
		l.LastWriteBlock = e.Meta.BlockNumber
	}
	t := e.Meta.BlockTime
	if t.IsZero() {
		return
	}
	switch e.Kind {
	case EventCreateCore, EventCreateToken, EventCreateFees:
		if l.CreatedAt.IsZero() || t.Before(l.CreatedAt) {
			l.CreatedAt = t
		}
	}
	if t.After(l.UpdatedAt) {
		l.UpdatedAt = t
	}
}
