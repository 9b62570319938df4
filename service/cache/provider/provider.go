// Package provider holds the byte stores the typed cache sits on.
package provider

import (
	"errors"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
)

var ErrNotFound = errors.New("key not cached")

// Provider is a byte store with a ttl per entry. A ttl <= 0 keeps the entry
// until it is evicted or deleted.
type Provider interface {
	// Get answers the value with its remaining ttl, 0 for an entry that does
	// not expire. A miss is ErrNotFound.
	Get(c ctx.Ctx, key string) (val []byte, ttl time.Duration, err error)
	Set(c ctx.Ctx, key string, val []byte, ttl time.Duration) error
	Del(c ctx.Ctx, key string) error
}
