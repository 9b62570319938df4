package primitive

import (
	"errors"
	"time"

	"github.com/coocood/freecache"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/service/cache/provider"
)

const mb = 1 << 20

type local struct {
	name string
	fc   *freecache.Cache
}

// NewPrimitive keeps entries in a freecache arena of sizeMB megabytes
func NewPrimitive(name string, sizeMB int) provider.Provider {
	return &local{name: name, fc: freecache.NewCache(sizeMB * mb)}
}

// seconds converts ttl to freecache's whole seconds, rounding up so a short
// ttl does not turn into 0 which freecache reads as "never"
func seconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Second - 1) / time.Second)
}

func (l *local) Get(c ctx.Ctx, key string) ([]byte, time.Duration, error) {
	val, expireAt, err := l.fc.GetWithExpiration([]byte(key))
	switch {
	case errors.Is(err, freecache.ErrNotFound):
		return nil, 0, provider.ErrNotFound
	case err != nil:
		c.WithFields(log.Fields{"err": err, "key": key, "cache": l.name}).Error("freecache get failed")
		return nil, 0, err
	case expireAt == 0:
		return val, 0, nil
	}
	left := time.Until(time.Unix(int64(expireAt), 0))
	if left < 0 {
		left = 0
	}
	return val, left, nil
}

func (l *local) Set(c ctx.Ctx, key string, val []byte, ttl time.Duration) error {
	err := l.fc.Set([]byte(key), val, seconds(ttl))
	if err != nil {
		// freecache refuses entries larger than 1/1024 of the arena
		c.WithFields(log.Fields{"err": err, "key": key, "cache": l.name, "size": len(val)}).Warn("freecache set failed")
	}
	return err
}

func (l *local) Del(_ ctx.Ctx, key string) error {
	l.fc.Del([]byte(key))
	return nil
}
