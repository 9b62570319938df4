package usecase

import (
	"errors"

	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/invalidation"
	"github.com/x-xyz/listingengine/service/query"
)

const maxCasAttempts = 3

type ReconcilerCfg struct {
	Mongo        query.Mongo
	ListingRepo  listing.Repo
	BidRepo      listing.BidRepo
	OfferRepo    listing.OfferRepo
	PurchaseRepo listing.PurchaseRepo
	AnomalyHook  listing.AnomalyHook
	Publisher    invalidation.Publisher
}

type reconciler struct {
	q            query.Mongo
	listingRepo  listing.Repo
	bidRepo      listing.BidRepo
	offerRepo    listing.OfferRepo
	purchaseRepo listing.PurchaseRepo
	hook         listing.AnomalyHook
	publisher    invalidation.Publisher
	met          metrics.Service
}

func NewReconciler(cfg *ReconcilerCfg) listing.Reconciler {
	return &reconciler{
		q:            cfg.Mongo,
		listingRepo:  cfg.ListingRepo,
		bidRepo:      cfg.BidRepo,
		offerRepo:    cfg.OfferRepo,
		purchaseRepo: cfg.PurchaseRepo,
		hook:         cfg.AnomalyHook,
		publisher:    cfg.Publisher,
		met:          metrics.New("reconcile"),
	}
}

// Apply folds e into its listing. It joins the caller's transaction when c
// carries one, invalidation tags are published once that commits.
func (im *reconciler) Apply(c ctx.Ctx, e *listing.Event) error {
	if err := e.Validate(); err != nil {
		im.met.BumpSum("malformed", 1, "kind", string(e.Kind))
		return err
	}
	defer im.met.BumpTime("apply.time", "kind", string(e.Kind)).End()

	return im.q.RunWithTransaction(c, func(tc ctx.Ctx) error {
		return im.apply(tc, e)
	})
}

func (im *reconciler) apply(c ctx.Ctx, e *listing.Event) error {
	c = ctx.WithValues(c, map[string]interface{}{
		"listingId": e.ListingId,
		"kind":      e.Kind,
		"block":     e.Meta.BlockNumber,
		"logIndex":  e.Meta.LogIndex,
	})

	fresh, err := im.storeChild(c, e)
	if err != nil {
		return err
	}
	if !fresh {
		im.met.BumpSum("duplicate", 1, "kind", string(e.Kind))
		c.Debug("child row already stored")
		return nil
	}

	var res listing.Result
	for attempt := 1; ; attempt++ {
		cur, err := im.listingRepo.FindOne(c, e.ListingId)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if errors.Is(err, domain.ErrNotFound) {
			cur = nil
		}

		res = listing.Reduce(cur, e)
		if !res.Changed() {
			break
		}
		if cur == nil {
			err = im.listingRepo.Create(c, res.Listing)
		} else {
			err = im.listingRepo.Save(c, res.Listing)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		im.met.BumpSum("conflict", 1)
		if attempt >= maxCasAttempts {
			return xerrors.Errorf("listing %d after %d attempts: %w", e.ListingId, attempt, err)
		}
	}

	im.met.BumpSum(string(res.Outcome), 1, "kind", string(e.Kind))
	for _, a := range res.Anomalies {
		im.hook.Report(c, a)
	}

	switch res.Outcome {
	case listing.OutcomeApplied:
	case listing.OutcomeStale:
		c.Debug("stale write skipped")
	case listing.OutcomeDuplicate:
		c.Info("terminal event repeated")
	}

	tags := im.tagsOf(res.Listing, e)
	if res.Changed() || e.Kind == listing.EventOffer || e.Kind == listing.EventRescindOffer {
		query.AfterCommit(c, func(cc ctx.Ctx) {
			if err := im.publisher.Publish(cc, tags...); err != nil {
				cc.WithFields(log.Fields{"err": err, "tags": tags}).Warn("publish invalidation failed")
			}
		})
	}
	return nil
}

// storeChild writes the immutable row of a bid, offer or purchase and reports
// whether it is new. Offer resolutions report whether a pending offer moved,
// a replayed resolution never moves a second one.
func (im *reconciler) storeChild(c ctx.Ctx, e *listing.Event) (bool, error) {
	switch e.Kind {
	case listing.EventBid:
		return insertOnce(c, e.RowKey(), im.bidRepo.Exists, func(c ctx.Ctx) error {
			return im.bidRepo.Insert(c, e.ToBid())
		})
	case listing.EventOffer:
		return insertOnce(c, e.RowKey(), im.offerRepo.Exists, func(c ctx.Ctx) error {
			return im.offerRepo.Insert(c, e.ToOffer())
		})
	case listing.EventPurchase:
		return insertOnce(c, e.RowKey(), im.purchaseRepo.Exists, func(c ctx.Ctx) error {
			return im.purchaseRepo.Insert(c, e.ToPurchase())
		})
	case listing.EventAcceptOffer:
		return im.offerRepo.Resolve(c, e.ListingId, e.Resolve.Offerer, listing.OfferStatusAccepted, e.RowKey())
	case listing.EventRescindOffer:
		return im.offerRepo.Resolve(c, e.ListingId, e.Resolve.Offerer, listing.OfferStatusRescinded, e.RowKey())
	}
	return true, nil
}

func insertOnce(c ctx.Ctx, key listing.RowKey, exists func(ctx.Ctx, listing.RowKey) (bool, error), insert func(ctx.Ctx) error) (bool, error) {
	found, err := exists(c, key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := insert(c); errors.Is(err, domain.ErrDuplicate) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (im *reconciler) tagsOf(l *listing.Listing, e *listing.Event) []string {
	tags := l.Tags()
	if e.Kind == listing.EventBid {
		tags = append(tags, listing.TagBidder(e.Bid.Bidder))
	}
	return tags
}
