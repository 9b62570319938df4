package statecache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viney-shih/goroutines"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
)

const refreshScheduleTimeout = 10 * time.Millisecond

type impl struct {
	cfg    Config
	shards []*shard
	marks  []*markShard
	seq    uint64
	pool   *goroutines.Pool
	met    metrics.Service

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New starts the cache together with its janitor, Close stops both
func New(cfg Config) Service {
	cfg.withDefaults()
	im := &impl{
		cfg:    cfg,
		shards: make([]*shard, cfg.Shards),
		marks:  make([]*markShard, cfg.Shards),
		pool: goroutines.NewPool(
			cfg.PoolSize,
			goroutines.WithTaskQueueLength(cfg.QueueLength),
			goroutines.WithPreAllocWorkers(cfg.PoolSize/4),
		),
		met:  metrics.New("statecache"),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for i := range im.shards {
		im.shards[i] = newShard()
		im.marks[i] = &markShard{marks: map[string]mark{}}
	}
	go im.janitor()
	return im
}

func (im *impl) shardOf(key string) *shard {
	return im.shards[shardIndex(key, len(im.shards))]
}

func (im *impl) markOf(name string) *markShard {
	return im.marks[shardIndex(name, len(im.marks))]
}

func (im *impl) GetOrCompute(c ctx.Ctx, key string, ttl time.Duration, tags []string, loader Loader) (interface{}, error) {
	s := im.shardOf(key)
	now := im.cfg.Clock()

	s.mu.RLock()
	e := s.entries[key]
	var (
		hasLast bool
		last    interface{}
		state   = "miss"
	)
	if e != nil {
		hasLast, last = true, e.value
		switch {
		case e.invalid:
			state = "invalid"
		case now.Before(e.freshUntil):
			state = "hit"
		case now.Before(e.staleUntil):
			state = "stale"
		default:
			state = "expired"
		}
	}
	s.mu.RUnlock()

	im.met.BumpSum("get", 1, "state", state)
	switch state {
	case "hit":
		return last, nil
	case "stale":
		im.scheduleRefresh(c, s, key, ttl, tags, loader)
		return last, nil
	}

	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		return im.load(c, s, key, ttl, tags, loader)
	})
	timer := time.NewTimer(im.cfg.ComputeTimeout)
	defer timer.Stop()

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val, nil
		}
		err = res.Err
	case <-timer.C:
		err = errTimeout(key)
		im.met.BumpSum("timeout", 1)
	case <-c.Done():
		err = c.Err()
	}

	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if hasLast {
		c.WithFields(log.Fields{"key": key, "err": err}).Warn("serving last known value")
		im.met.BumpSum("fallback", 1)
		return last, nil
	}
	c.WithFields(log.Fields{"key": key, "err": err}).Error("compute failed without fallback")
	return nil, xerrors.Errorf("compute %s: %v: %w", key, err, domain.ErrUnavailable)
}

func errTimeout(key string) error {
	return xerrors.Errorf("compute %s timed out", key)
}

// load runs detached from the caller, other waiters share its result
func (im *impl) load(c ctx.Ctx, s *shard, key string, ttl time.Duration, tags []string, loader Loader) (interface{}, error) {
	defer im.met.BumpTime("load.time").End()
	startSeq := atomic.LoadUint64(&im.seq)
	started := im.cfg.Clock()

	lc, cancel := ctx.WithTimeout(ctx.Detach(c), im.cfg.ComputeTimeout)
	defer cancel()

	v, err := loader(lc)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// a vanished key must not keep serving its old value
			s.mu.Lock()
			s.remove(key)
			s.mu.Unlock()
		} else {
			im.met.BumpSum("load.err", 1)
		}
		return nil, err
	}
	im.install(s, key, v, ttl, tags, startSeq, started)
	return v, nil
}

func (im *impl) install(s *shard, key string, v interface{}, ttl time.Duration, tags []string, startSeq uint64, started time.Time) {
	now := im.cfg.Clock()
	e := &entry{
		value:      v,
		freshUntil: now.Add(ttl),
		staleUntil: now.Add(ttl + im.cfg.StaleWindow),
		tags:       append([]string(nil), tags...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// marks are read under the entry lock so an Invalidate sweeping this
	// shard either sees the new entry or left a mark seen here
	e.invalid = im.invalidatedSince(startSeq, started, key, tags)
	s.put(key, e)
}

func (im *impl) invalidatedSince(startSeq uint64, started time.Time, key string, tags []string) bool {
	// marks older than the horizon are pruned, a load that old can not tell
	if im.cfg.Clock().Sub(started) > im.markHorizon() {
		return true
	}
	names := append([]string{key, TagAll}, tags...)
	for _, name := range names {
		ms := im.markOf(name)
		ms.mu.RLock()
		m, ok := ms.marks[name]
		ms.mu.RUnlock()
		if ok && m.seq > startSeq {
			return true
		}
	}
	return false
}

func (im *impl) markHorizon() time.Duration {
	return 2*im.cfg.ComputeTimeout + im.cfg.JanitorInterval
}

func (im *impl) scheduleRefresh(c ctx.Ctx, s *shard, key string, ttl time.Duration, tags []string, loader Loader) {
	s.mu.Lock()
	e := s.entries[key]
	if e == nil || e.refreshing {
		s.mu.Unlock()
		return
	}
	e.refreshing = true
	s.mu.Unlock()

	rc := ctx.Detach(c)
	err := im.pool.ScheduleWithTimeout(refreshScheduleTimeout, func() {
		if _, err, _ := s.inflight.Do(key, func() (interface{}, error) {
			return im.load(rc, s, key, ttl, tags, loader)
		}); err != nil {
			rc.WithFields(log.Fields{"key": key, "err": err}).Warn("background refresh failed")
		}
		im.clearRefreshing(s, key, e)
	})
	if err != nil {
		im.met.BumpSum("refresh.dropped", 1)
		im.clearRefreshing(s, key, e)
	}
}

func (im *impl) clearRefreshing(s *shard, key string, e *entry) {
	s.mu.Lock()
	e.refreshing = false
	s.mu.Unlock()
}

func (im *impl) Invalidate(c ctx.Ctx, keyOrTag string) int {
	seq := atomic.AddUint64(&im.seq, 1)
	ms := im.markOf(keyOrTag)
	ms.mu.Lock()
	ms.marks[keyOrTag] = mark{seq: seq, at: im.cfg.Clock()}
	ms.mu.Unlock()

	n := 0
	for _, s := range im.shards {
		s.mu.Lock()
		n += s.invalidate(keyOrTag)
		s.mu.Unlock()
	}
	im.met.BumpSum("invalidate", float64(n))
	c.WithFields(log.Fields{"name": keyOrTag, "entries": n}).Debug("invalidated")
	return n
}

func (im *impl) Stream(c ctx.Ctx, n int, itemTimeout time.Duration, fetch Fetch) <-chan Item {
	out := make(chan Item)
	if itemTimeout <= 0 {
		itemTimeout = im.cfg.ComputeTimeout
	}
	if n <= 0 {
		close(out)
		return out
	}

	// one buffered slot per item, late workers never block
	slots := make([]chan Item, n)
	for i := range slots {
		slots[i] = make(chan Item, 1)
	}

	go func() {
		for i := 0; i < n; i++ {
			if c.Err() != nil {
				return
			}
			idx := i
			task := func() {
				ic, cancel := ctx.WithTimeout(c, itemTimeout)
				defer cancel()
				v, err := fetch(ic, idx)
				slots[idx] <- Item{Index: idx, Value: v, Err: err}
			}
			if err := im.pool.ScheduleWithTimeout(itemTimeout, task); err != nil {
				slots[idx] <- Item{Index: idx, Err: xerrors.Errorf("schedule item %d: %v: %w", idx, err, domain.ErrUnavailable)}
			}
		}
	}()

	go func() {
		defer close(out)
		for i := 0; i < n; i++ {
			var it Item
			select {
			case it = <-slots[i]:
			case <-c.Done():
				return
			}
			select {
			case out <- it:
			case <-c.Done():
				return
			}
		}
	}()
	return out
}

func (im *impl) Len() int {
	n := 0
	for _, s := range im.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

func (im *impl) Close() {
	im.closeOnce.Do(func() {
		close(im.stop)
		<-im.done
		im.pool.Release()
	})
}

func (im *impl) janitor() {
	defer close(im.done)
	ticker := time.NewTicker(im.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-im.stop:
			return
		case <-ticker.C:
			im.sweep()
		}
	}
}

// sweep drops entries past their stale window and marks past the horizon
func (im *impl) sweep() int {
	now := im.cfg.Clock()
	dropped := 0
	for _, s := range im.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if !now.Before(e.staleUntil) {
				s.remove(key)
				dropped++
			}
		}
		s.mu.Unlock()
	}

	horizon := im.markHorizon()
	for _, ms := range im.marks {
		ms.mu.Lock()
		for name, m := range ms.marks {
			if now.Sub(m.at) > horizon {
				delete(ms.marks, name)
			}
		}
		ms.mu.Unlock()
	}
	im.met.BumpSum("janitor.dropped", float64(dropped))
	return dropped
}
