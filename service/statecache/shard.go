package statecache

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value      interface{}
	freshUntil time.Time
	staleUntil time.Time
	tags       []string
	invalid    bool
	refreshing bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// tag -> keys of this shard carrying it
	tagIndex map[string]map[string]struct{}
	inflight singleflight.Group
}

func newShard() *shard {
	return &shard{
		entries:  map[string]*entry{},
		tagIndex: map[string]map[string]struct{}{},
	}
}

// put must be called with mu held
func (s *shard) put(key string, e *entry) {
	s.remove(key)
	s.entries[key] = e
	for _, t := range e.tags {
		keys, ok := s.tagIndex[t]
		if !ok {
			keys = map[string]struct{}{}
			s.tagIndex[t] = keys
		}
		keys[key] = struct{}{}
	}
}

// remove must be called with mu held
func (s *shard) remove(key string) {
	old, ok := s.entries[key]
	if !ok {
		return
	}
	for _, t := range old.tags {
		if keys, ok := s.tagIndex[t]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.tagIndex, t)
			}
		}
	}
	delete(s.entries, key)
}

// invalidate must be called with mu held
func (s *shard) invalidate(name string) int {
	n := 0
	if name == TagAll {
		for _, e := range s.entries {
			if !e.invalid {
				e.invalid = true
				n++
			}
		}
		return n
	}
	if e, ok := s.entries[name]; ok && !e.invalid {
		e.invalid = true
		n++
	}
	for key := range s.tagIndex[name] {
		if e := s.entries[key]; e != nil && !e.invalid {
			e.invalid = true
			n++
		}
	}
	return n
}

type mark struct {
	seq uint64
	at  time.Time
}

// markShard remembers recent invalidations by key or tag name. Its lock is a
// leaf, it is never held while acquiring another one.
type markShard struct {
	mu    sync.RWMutex
	marks map[string]mark
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
