package schedule

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/x-xyz/listingengine/base/ctx"
)

func TestRunnerRunsJobs(t *testing.T) {
	r := New(ctx.Background())
	var ok, failed, panicked int32
	require.NoError(t, r.Add("* * * * * *", "ok", func(ctx.Ctx) error {
		atomic.AddInt32(&ok, 1)
		return nil
	}))
	require.NoError(t, r.Add("* * * * * *", "failing", func(ctx.Ctx) error {
		atomic.AddInt32(&failed, 1)
		return errors.New("boom")
	}))
	require.NoError(t, r.Add("* * * * * *", "panicking", func(ctx.Ctx) error {
		atomic.AddInt32(&panicked, 1)
		panic("boom")
	}))
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ok) > 1 && atomic.LoadInt32(&failed) > 1 && atomic.LoadInt32(&panicked) > 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(ctx.Background())
	require.Error(t, r.Add("every minute", "bad", func(ctx.Ctx) error { return nil }))
}
