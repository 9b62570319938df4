package usecase

import (
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/ctx"
	hcdomain "github.com/x-xyz/listingengine/domain/healthcheck"
)

type usecase struct {
	repo hcdomain.HealthCheckRepo
}

func New(repo hcdomain.HealthCheckRepo) hcdomain.HealthCheckUsecase {
	return &usecase{repo: repo}
}

// Check pings the stores concurrently
func (u *usecase) Check(c ctx.Ctx) (hcdomain.Report, error) {
	report := hcdomain.Report{Mongo: hcdomain.StatusOk, Redis: hcdomain.StatusOk}
	var g errgroup.Group
	g.Go(func() error {
		if err := u.repo.PingMongo(c); err != nil {
			report.Mongo = hcdomain.StatusDown
			return xerrors.Errorf("mongo: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := u.repo.PingRedis(c); err != nil {
			report.Redis = hcdomain.StatusDown
			return xerrors.Errorf("redis: %w", err)
		}
		return nil
	})
	err := g.Wait()
	return report, err
}
