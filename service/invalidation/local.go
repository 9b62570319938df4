package invalidation

import (
	"sync"

	"github.com/x-xyz/listingengine/base/ctx"
)

// Local delivers publishes in-process, for single process runs and tests
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewLocal(handlers ...Handler) *Local {
	return &Local{handlers: handlers}
}

func (l *Local) Attach(h Handler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

func (l *Local) Publish(c ctx.Ctx, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	l.mu.RLock()
	hs := append([]Handler(nil), l.handlers...)
	l.mu.RUnlock()
	for _, h := range hs {
		h(c, tags)
	}
	return nil
}
