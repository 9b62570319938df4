package query

import (
	"context"
	"sync"

	"github.com/x-xyz/listingengine/base/ctx"
)

type hooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx.Ctx)
}

func (h *commitHooks) add(fn func(ctx.Ctx)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) run(c ctx.Ctx) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// AfterCommit defers fn until the transaction carried by c commits. Outside a
// transaction fn runs right away.
func AfterCommit(c ctx.Ctx, fn func(ctx.Ctx)) {
	if h, ok := c.Value(hooksKey{}).(*commitHooks); ok {
		h.add(fn)
		return
	}
	fn(c)
}

// runWithHooks runs fn without a session while still honouring AfterCommit
func runWithHooks(c ctx.Ctx, run func(ctx.Ctx) error) error {
	hooks := &commitHooks{}
	hc := ctx.Ctx{Context: context.WithValue(c.Context, hooksKey{}, hooks), Logger: c.Logger}
	if err := run(hc); err != nil {
		return err
	}
	hooks.run(c)
	return nil
}
