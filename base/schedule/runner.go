package schedule

import (
	"github.com/robfig/cron/v3"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/goroutine"
	"github.com/x-xyz/listingengine/base/metrics"
)

// Runner runs jobs on cron specs with a seconds field. A run is skipped while
// the previous run of the same job is still going.
type Runner struct {
	cron *cron.Cron
	base ctx.Ctx
	met  metrics.Service
}

func New(base ctx.Ctx) *Runner {
	return &Runner{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		base: base,
		met:  metrics.New("cron"),
	}
}

// Add schedules job under name. Errors and panics are logged and counted.
func (r *Runner) Add(spec, name string, job func(ctx.Ctx) error) error {
	_, err := r.cron.AddFunc(spec, func() {
		c := ctx.WithValue(r.base, "job", name)
		defer r.met.BumpTime("job.time", "job", name).End()
		if err := goroutine.Run(c, name, func() error { return job(c) }); err != nil {
			r.met.BumpSum("job.err", 1, "job", name)
			c.WithField("err", err).Error("job failed")
		}
	})
	return err
}

func (r *Runner) Start() {
	r.base.WithField("jobs", len(r.cron.Entries())).Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to return
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.base.Info("cron stopped")
}
