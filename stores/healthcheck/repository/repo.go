package repository

import (
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain/healthcheck"
	"github.com/x-xyz/listingengine/service/query"
	"github.com/x-xyz/listingengine/service/redis"
)

const pingTimeout = 2 * time.Second

type repo struct {
	q     query.Mongo
	redis redis.Service
}

func New(q query.Mongo, r redis.Service) healthcheck.HealthCheckRepo {
	return &repo{q: q, redis: r}
}

func (r *repo) PingMongo(c ctx.Ctx) error {
	return ping(c, "mongo", r.q.Ping)
}

func (r *repo) PingRedis(c ctx.Ctx) error {
	return ping(c, "redis", r.redis.Ping)
}

func ping(c ctx.Ctx, store string, f func(ctx.Ctx) error) error {
	tc, cancel := ctx.WithTimeout(c, pingTimeout)
	defer cancel()
	if err := f(tc); err != nil {
		c.WithField("err", err).WithField("store", store).Error("ping failed")
		return err
	}
	return nil
}
