package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain/listing"
)

type anomalyHook struct {
	repo listing.AnomalyRepo
	met  metrics.Service
	now  func() time.Time
}

// NewAnomalyHook logs, counts and stores every anomaly. A failed insert is
// logged and swallowed so that it never blocks reconciliation.
func NewAnomalyHook(repo listing.AnomalyRepo) listing.AnomalyHook {
	return &anomalyHook{
		repo: repo,
		met:  metrics.New("reconcile"),
		now:  time.Now,
	}
}

func (h *anomalyHook) Report(c ctx.Ctx, a listing.Anomaly) {
	a.Id = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = h.now()
	}
	h.met.BumpSum("anomaly", 1, "kind", string(a.Kind))
	logger := c.WithFields(log.Fields{
		"anomalyId": a.Id,
		"anomaly":   a.Kind,
		"listingId": a.ListingId,
		"block":     a.At.BlockNumber,
		"logIndex":  a.At.LogIndex,
		"txHash":    a.TxHash,
		"detail":    a.Detail,
	})
	logger.Warn("listing anomaly")
	if err := h.repo.Insert(c, &a); err != nil {
		logger.WithField("err", err).Error("anomalyRepo.Insert failed")
	}
}
