package redis

import (
	"errors"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/service/cache/provider"
	"github.com/x-xyz/listingengine/service/redis"
)

type shared struct {
	r redis.Service
}

// NewRedis keeps entries in redis so every replica sees them
func NewRedis(r redis.Service) provider.Provider {
	return &shared{r: r}
}

func (s *shared) Get(c ctx.Ctx, key string) ([]byte, time.Duration, error) {
	val, err := s.r.Get(c, key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, 0, provider.ErrNotFound
	}
	if err != nil {
		return nil, 0, s.logged(c, "get", key, err)
	}

	secs, err := s.r.TTL(c, key)
	switch {
	case err == nil:
		return val, time.Duration(secs) * time.Second, nil
	case errors.Is(err, redis.ErrNoTTL):
		return val, 0, nil
	case errors.Is(err, redis.ErrNotFound):
		// gone between GET and TTL
		return nil, 0, provider.ErrNotFound
	}
	return nil, 0, s.logged(c, "ttl", key, err)
}

func (s *shared) Set(c ctx.Ctx, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = redis.Forever
	}
	if err := s.r.Set(c, key, val, ttl); err != nil {
		return s.logged(c, "set", key, err)
	}
	return nil
}

func (s *shared) Del(c ctx.Ctx, key string) error {
	if _, err := s.r.Del(c, key); err != nil {
		return s.logged(c, "del", key, err)
	}
	return nil
}

func (s *shared) logged(c ctx.Ctx, op, key string, err error) error {
	c.WithFields(log.Fields{"err": err, "key": key, "op": op}).Error("redis provider failed")
	return err
}
