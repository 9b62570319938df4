package healthcheck

import (
	"github.com/x-xyz/listingengine/base/ctx"
)

const (
	StatusOk   = "ok"
	StatusDown = "down"
)

// Report holds one status per backing store
type Report struct {
	Mongo string `json:"mongo"`
	Redis string `json:"redis"`
}

func (r Report) Healthy() bool {
	return r.Mongo == StatusOk && r.Redis == StatusOk
}

type HealthCheckUsecase interface {
	// Check pings every store, the error names the first one down
	Check(c ctx.Ctx) (Report, error)
}

type HealthCheckRepo interface {
	PingMongo(c ctx.Ctx) error
	PingRedis(c ctx.Ctx) error
}
