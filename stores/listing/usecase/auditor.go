package usecase

import (
	"fmt"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
)

const auditPageSize = 200

type AuditorCfg struct {
	ListingRepo  listing.Repo
	BidRepo      listing.BidRepo
	PurchaseRepo listing.PurchaseRepo
	AnomalyHook  listing.AnomalyHook
	// MaxListings bounds one run, 0 means 1000
	MaxListings int
}

type auditor struct {
	listingRepo  listing.Repo
	bidRepo      listing.BidRepo
	purchaseRepo listing.PurchaseRepo
	hook         listing.AnomalyHook
	maxListings  int
	met          metrics.Service
}

func NewAuditor(cfg *AuditorCfg) listing.Auditor {
	maxListings := cfg.MaxListings
	if maxListings <= 0 {
		maxListings = 1000
	}
	return &auditor{
		listingRepo:  cfg.ListingRepo,
		bidRepo:      cfg.BidRepo,
		purchaseRepo: cfg.PurchaseRepo,
		hook:         cfg.AnomalyHook,
		maxListings:  maxListings,
		met:          metrics.New("auditor"),
	}
}

// Audit re-checks listings updated since and returns the number of anomalies found
func (im *auditor) Audit(c ctx.Ctx, since time.Time) (int, error) {
	defer im.met.BumpTime("audit.time").End()
	found := 0
	checked := 0
	for offset := 0; offset < im.maxListings; offset += auditPageSize {
		rows, err := im.listingRepo.FindAll(c,
			listing.WithUpdatedFrom(since),
			listing.WithSort(listing.OrderById, domain.SortDirAsc),
			listing.WithPagination(offset, auditPageSize),
		)
		if err != nil {
			return found, err
		}
		for _, l := range rows {
			n, err := im.check(c, l)
			if err != nil {
				return found, err
			}
			found += n
		}
		checked += len(rows)
		if len(rows) < auditPageSize {
			break
		}
	}
	im.met.BumpSum("checked", float64(checked))
	c.WithFields(log.Fields{"checked": checked, "anomalies": found, "since": since}).Info("audit finished")
	return found, nil
}

func (im *auditor) check(c ctx.Ctx, l *listing.Listing) (int, error) {
	found := 0
	bids, err := im.bidRepo.CountByListing(c, l.Id)
	if err != nil {
		return 0, err
	}
	if l.HasBid != (bids > 0) {
		im.hook.Report(c, listing.AuditFailure(listing.AnomalyHasBidMismatch, l,
			fmt.Sprintf("hasBid=%t with %d bid rows", l.HasBid, bids)))
		found++
	}
	if l.Core == nil {
		return found, nil
	}
	if l.TotalSold > l.Core.TotalAvailable {
		im.hook.Report(c, listing.AuditFailure(listing.AnomalyOversell, l,
			fmt.Sprintf("sold %d of %d available", l.TotalSold, l.Core.TotalAvailable)))
		found++
	}
	if im.purchaseRepo == nil {
		return found, nil
	}
	units, err := im.purchaseRepo.SumUnits(c, l.Id)
	if err != nil {
		return found, err
	}
	// accepted offers add to totalSold without a purchase row
	expected := units
	if expected > l.Core.TotalAvailable {
		expected = l.Core.TotalAvailable
	}
	if l.TotalSold < expected {
		im.hook.Report(c, listing.AuditFailure(listing.AnomalySoldMismatch, l,
			fmt.Sprintf("totalSold=%d below %d purchased units", l.TotalSold, units)))
		found++
	}
	return found, nil
}
