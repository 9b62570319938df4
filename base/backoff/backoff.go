package backoff

import (
	"context"
	"math"
	"time"
)

// Strategy maps the number of waits so far to the next wait
type Strategy func(n int, start time.Duration) time.Duration

func Exponential(n int, start time.Duration) time.Duration {
	d := start
	for i := 0; i < n; i++ {
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	return d
}

func Linear(n int, start time.Duration) time.Duration {
	return time.Duration(n+1) * start
}

// Backoff sleeps for growing durations capped at a limit. It is not safe for
// concurrent use.
type Backoff struct {
	// NextDuration is what the next Backoff call sleeps
	NextDuration time.Duration
	strategy     Strategy
	start        time.Duration
	limit        time.Duration
	n            int
}

func New(strategy Strategy, start, limit time.Duration) *Backoff {
	b := &Backoff{strategy: strategy, start: start, limit: limit}
	b.Reset()
	return b
}

func NewExponential(start, limit time.Duration) *Backoff {
	return New(Exponential, start, limit)
}

func NewLinear(start, limit time.Duration) *Backoff {
	return New(Linear, start, limit)
}

func (b *Backoff) Reset() {
	b.n = 0
	b.NextDuration = b.wait()
}

func (b *Backoff) wait() time.Duration {
	d := b.strategy(b.n, b.start)
	if b.limit > 0 && d > b.limit {
		return b.limit
	}
	return d
}

// Backoff sleeps NextDuration and grows it, or returns ctx.Err() when ctx
// ends first
func (b *Backoff) Backoff(ctx context.Context) error {
	t := time.NewTimer(b.NextDuration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	b.n++
	b.NextDuration = b.wait()
	return nil
}
