/*Package statecache is the read side cache of derived listing views.

Entries are cache-aside with a fresh ttl followed by a stale window. A stale
hit is served at once while a refresh runs on the worker pool. Concurrent
misses on one key share a single load. Entries carry tags, so a write can
invalidate a listing together with every page that contained it.
*/
package statecache

import (
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
)

// TagAll matches every entry, invalidating it flushes the cache
const TagAll = "*"

// Loader computes the value of a key, it must honour c's deadline
type Loader func(c ctx.Ctx) (interface{}, error)

// Fetch enriches the i-th item of a stream
type Fetch func(c ctx.Ctx, i int) (interface{}, error)

// Item is one element of a stream, yielded in index order
type Item struct {
	Index int
	Value interface{}
	Err   error
}

// Service is a tagged stale-while-revalidate cache
type Service interface {
	// GetOrCompute returns the cached value of key or loads it. On a load
	// timeout or failure the last known value is returned when there is one,
	// domain.ErrUnavailable otherwise. domain.ErrNotFound from the loader is
	// passed through.
	GetOrCompute(c ctx.Ctx, key string, ttl time.Duration, tags []string, loader Loader) (interface{}, error)

	// Invalidate marks key and every entry tagged with it as invalid and
	// returns the number of entries hit. Loads already running when it is
	// called install their result as invalid.
	Invalidate(c ctx.Ctx, keyOrTag string) int

	// Stream runs fetch for 0..n-1 on the worker pool and yields results in
	// order. Each fetch gets its own timeout. The channel is closed after the
	// last item or once c is done.
	Stream(c ctx.Ctx, n int, itemTimeout time.Duration, fetch Fetch) <-chan Item

	Len() int
	Close()
}

type Config struct {
	Shards          int
	StaleWindow     time.Duration
	ComputeTimeout  time.Duration
	JanitorInterval time.Duration
	PoolSize        int
	QueueLength     int
	// Clock defaults to time.Now
	Clock func() time.Time
}

func (cfg *Config) withDefaults() {
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = 2 * time.Minute
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = 3 * time.Second
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 64
	}
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
}
