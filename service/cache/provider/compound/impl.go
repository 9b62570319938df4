package compound

import (
	"errors"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/service/cache/provider"
)

type chain struct {
	tiers []provider.Provider
	// maxFill bounds the ttl of a copy made into a faster tier, 0 keeps the
	// remaining ttl of the hit
	maxFill time.Duration
}

// NewCompound reads tiers in order, fastest first. A hit in a slower tier
// is copied into every faster one.
func NewCompound(maxFill time.Duration, tiers ...provider.Provider) provider.Provider {
	return &chain{tiers: tiers, maxFill: maxFill}
}

func (ch *chain) Get(c ctx.Ctx, key string) ([]byte, time.Duration, error) {
	for i, t := range ch.tiers {
		val, ttl, err := t.Get(c, key)
		if errors.Is(err, provider.ErrNotFound) {
			continue
		}
		if err != nil {
			// an unreachable tier is treated as a miss
			c.WithFields(log.Fields{"err": err, "key": key, "tier": i}).Warn("tier get failed")
			continue
		}
		ch.fill(c, key, val, ttl, i)
		return val, ttl, nil
	}
	return nil, 0, provider.ErrNotFound
}

func (ch *chain) fill(c ctx.Ctx, key string, val []byte, ttl time.Duration, hit int) {
	if ch.maxFill > 0 && (ttl <= 0 || ttl > ch.maxFill) {
		ttl = ch.maxFill
	}
	for i := hit - 1; i >= 0; i-- {
		if err := ch.tiers[i].Set(c, key, val, ttl); err != nil {
			c.WithFields(log.Fields{"err": err, "key": key, "tier": i}).Warn("tier fill failed")
		}
	}
}

// Set writes the slowest tier first so a faster tier never holds a value
// the shared one lacks
func (ch *chain) Set(c ctx.Ctx, key string, val []byte, ttl time.Duration) error {
	for i := len(ch.tiers) - 1; i >= 0; i-- {
		if err := ch.tiers[i].Set(c, key, val, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Del visits every tier even after a failure and reports the first one
func (ch *chain) Del(c ctx.Ctx, key string) error {
	var first error
	for _, t := range ch.tiers {
		if err := t.Del(c, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
