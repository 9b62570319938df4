/*Package invalidation carries cache invalidation tags from the tracker to
every api replica over redis pub/sub.
*/
package invalidation

import (
	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/service/statecache"
)

// Channel is the redis channel listing invalidations travel on
var Channel = keys.RedisKey(keys.PfxInvalidation, "listings")

// Message is the json payload of one publish
type Message struct {
	// Seq increases by one per publish, a jump tells a subscriber it missed some
	Seq    int64    `json:"seq"`
	Tags   []string `json:"tags"`
	Origin string   `json:"origin,omitempty"`
}

// Handler applies the tags of a message
type Handler func(c ctx.Ctx, tags []string)

type Publisher interface {
	Publish(c ctx.Ctx, tags ...string) error
}

type Subscriber interface {
	// Run blocks until c is done, reconnecting on failures
	Run(c ctx.Ctx) error
}

// CacheHandler invalidates every tag on cache
func CacheHandler(cache statecache.Service) Handler {
	return func(c ctx.Ctx, tags []string) {
		for _, t := range tags {
			cache.Invalidate(c, t)
		}
	}
}
