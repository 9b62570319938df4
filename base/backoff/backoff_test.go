package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialIsCapped(t *testing.T) {
	req := require.New(t)
	b := NewExponential(time.Millisecond, 4*time.Millisecond)
	var seen []time.Duration
	for i := 0; i < 4; i++ {
		seen = append(seen, b.NextDuration)
		req.NoError(b.Backoff(context.Background()))
	}
	req.Equal([]time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}, seen)

	b.Reset()
	req.Equal(time.Millisecond, b.NextDuration)
}

func TestLinear(t *testing.T) {
	b := NewLinear(time.Millisecond, 0)
	require.NoError(t, b.Backoff(context.Background()))
	require.NoError(t, b.Backoff(context.Background()))
	require.Equal(t, 3*time.Millisecond, b.NextDuration)
}

func TestBackoffStopsWithContext(t *testing.T) {
	b := NewExponential(time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Backoff(ctx), context.Canceled)
	require.Equal(t, time.Hour, b.NextDuration)
}

func TestOverflowFallsBackToLimit(t *testing.T) {
	require.Equal(t, time.Minute, New(Exponential, time.Hour, time.Minute).wait())
	b := New(Exponential, time.Second, time.Minute)
	b.n = 40
	require.Equal(t, time.Minute, b.wait())
}
