package usecase

import (
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
)

type cursors struct {
	repo    domain.TrackerStateRepo
	timeout time.Duration
	met     metrics.Service
}

// NewTrackerStateUseCase bounds each call by timeout, 0 leaves calls
// unbounded
func NewTrackerStateUseCase(r domain.TrackerStateRepo, timeout time.Duration) domain.TrackerStateUseCase {
	return &cursors{repo: r, timeout: timeout, met: metrics.New("tracker_state")}
}

func (u *cursors) bound(c ctx.Ctx) (ctx.Ctx, func()) {
	if u.timeout <= 0 {
		return c, func() {}
	}
	return ctx.WithTimeout(c, u.timeout)
}

func (u *cursors) Get(c ctx.Ctx, id *domain.TrackerStateId) (*domain.TrackerState, error) {
	c, done := u.bound(c)
	defer done()
	return u.repo.Get(c, id)
}

func (u *cursors) Store(c ctx.Ctx, s *domain.TrackerState) error {
	c, done := u.bound(c)
	defer done()
	return u.repo.Store(c, s)
}

// Update reports the committed block as a gauge per tag
func (u *cursors) Update(c ctx.Ctx, s *domain.TrackerState) error {
	c, done := u.bound(c)
	defer done()
	if err := u.repo.Update(c, s); err != nil {
		return err
	}
	u.met.BumpAvg("cursor.block", float64(s.LastBlockProcessed), "tag", s.Tag)
	return nil
}
