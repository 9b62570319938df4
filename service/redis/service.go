package redis

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/x-xyz/listingengine/base/ctx"
)

var (
	// ErrNotFound is returned when the key does not exist
	ErrNotFound = redis.ErrNil
	// ErrNoTTL is returned by TTL when the key exists without expiry
	ErrNoTTL = errors.New("key has no ttl")
	// ErrNoPool is returned when the service was built without a pool
	ErrNoPool = errors.New("redis pool unavailable")
)

// Forever is the expire value for keys without ttl
const Forever = time.Duration(-1)

// Service is the subset of redis commands used by the shared cache, the
// health check and the invalidation fan-out.
type Service interface {
	Get(context ctx.Ctx, key string) ([]byte, error)
	Set(context ctx.Ctx, key string, val []byte, expire time.Duration) error
	Del(context ctx.Ctx, keys ...string) (int, error)
	// TTL returns the remaining seconds, ErrNoTTL for a key without expiry
	TTL(context ctx.Ctx, key string) (int, error)
	Incrby(context ctx.Ctx, key string, val int) (int64, error)
	Ping(context ctx.Ctx) error

	// Publish sends msg on channel and returns the number of receivers
	Publish(context ctx.Ctx, channel string, msg []byte) (int, error)
	// Subscribe returns a connection subscribed to channels, the caller closes it
	Subscribe(context ctx.Ctx, channels ...string) (*redis.PubSubConn, error)

	Name() string
}
