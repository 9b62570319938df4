package cache

import (
	"errors"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/service/cache/provider"
)

// ErrNotFound is returned for a miss and for a cached negative answer
var ErrNotFound = errors.New("cache miss")

// Loader fetches the value of a missing key. Returning ErrNotFound caches
// the absence for Config.NegativeTtl.
type Loader[T any] func() (*T, error)

// Service is a typed cache on top of a byte provider
type Service[T any] interface {
	// Load reads key, calling load and filling the cache on a miss. Concurrent
	// misses of one key share a single load.
	Load(c ctx.Ctx, key string, load Loader[T]) (*T, error)
	Get(c ctx.Ctx, key string) (*T, error)
	Set(c ctx.Ctx, key string, value *T) error
	Del(c ctx.Ctx, key string) error
}

// Codec converts values to provider bytes, json when unset
type Codec struct {
	Marshal   func(interface{}) ([]byte, error)
	Unmarshal func([]byte, interface{}) error
}

type Config struct {
	Ttl time.Duration
	// NegativeTtl zero disables negative caching
	NegativeTtl time.Duration
	Pfx         string
	Provider    provider.Provider
	Codec       Codec
}
