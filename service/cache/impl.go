package cache

import (
	"bytes"
	"encoding/json"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/service/cache/provider"
)

// tombstone is stored for keys whose loader answered ErrNotFound
var tombstone = []byte{0}

type typed[T any] struct {
	cfg   Config
	group singleflight.Group
	met   metrics.Service
}

func New[T any](cfg Config) Service[T] {
	if cfg.Codec.Marshal == nil {
		cfg.Codec.Marshal = json.Marshal
	}
	if cfg.Codec.Unmarshal == nil {
		cfg.Codec.Unmarshal = json.Unmarshal
	}
	return &typed[T]{cfg: cfg, met: metrics.New("cache")}
}

func (t *typed[T]) key(k string) string {
	return keys.RedisKey(t.cfg.Pfx, k)
}

func (t *typed[T]) Load(c ctx.Ctx, key string, load Loader[T]) (*T, error) {
	v, negative, err := t.read(c, key)
	switch {
	case err == nil && negative:
		t.met.BumpSum("hit", 1, "pfx", t.cfg.Pfx, "negative", "true")
		return nil, ErrNotFound
	case err == nil:
		t.met.BumpSum("hit", 1, "pfx", t.cfg.Pfx)
		return v, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	t.met.BumpSum("miss", 1, "pfx", t.cfg.Pfx)

	res, err, shared := t.group.Do(key, func() (interface{}, error) {
		return t.fill(c, key, load)
	})
	if shared {
		t.met.BumpSum("shared", 1, "pfx", t.cfg.Pfx)
	}
	if err != nil {
		return nil, err
	}
	return res.(*T), nil
}

func (t *typed[T]) fill(c ctx.Ctx, key string, load Loader[T]) (*T, error) {
	v, err := load()
	if errors.Is(err, ErrNotFound) {
		if t.cfg.NegativeTtl > 0 {
			if err := t.cfg.Provider.Set(c, t.key(key), tombstone, t.cfg.NegativeTtl); err != nil {
				c.WithField("err", err).WithField("key", key).Warn("storing tombstone failed")
			}
		}
		return nil, ErrNotFound
	}
	if err != nil {
		c.WithField("err", err).WithField("key", key).Warn("load failed")
		return nil, err
	}
	// a failed write still serves the loaded value
	_ = t.Set(c, key, v)
	return v, nil
}

func (t *typed[T]) Get(c ctx.Ctx, key string) (*T, error) {
	v, negative, err := t.read(c, key)
	if err != nil {
		return nil, err
	}
	if negative {
		return nil, ErrNotFound
	}
	return v, nil
}

func (t *typed[T]) read(c ctx.Ctx, key string) (*T, bool, error) {
	raw, _, err := t.cfg.Provider.Get(c, t.key(key))
	if errors.Is(err, provider.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		c.WithFields(log.Fields{"err": err, "key": key}).Error("provider.Get failed")
		return nil, false, err
	}
	if bytes.Equal(raw, tombstone) {
		return nil, true, nil
	}
	v := new(T)
	if err := t.cfg.Codec.Unmarshal(raw, v); err != nil {
		c.WithFields(log.Fields{"err": err, "key": key}).Error("unmarshal failed")
		return nil, false, err
	}
	return v, false, nil
}

func (t *typed[T]) Set(c ctx.Ctx, key string, value *T) error {
	raw, err := t.cfg.Codec.Marshal(value)
	if err != nil {
		c.WithFields(log.Fields{"err": err, "key": key}).Error("marshal failed")
		return err
	}
	if err := t.cfg.Provider.Set(c, t.key(key), raw, t.cfg.Ttl); err != nil {
		c.WithFields(log.Fields{"err": err, "key": key}).Error("provider.Set failed")
		return err
	}
	return nil
}

func (t *typed[T]) Del(c ctx.Ctx, key string) error {
	if err := t.cfg.Provider.Del(c, t.key(key)); err != nil {
		c.WithFields(log.Fields{"err": err, "key": key}).Error("provider.Del failed")
		return err
	}
	return nil
}
