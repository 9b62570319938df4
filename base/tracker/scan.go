package tracker

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"

	"github.com/x-xyz/listingengine/base/backoff"
	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
)

const (
	// FilterLogsTimeout bounds one FilterLogs call, a timeout splits the range
	FilterLogsTimeout = 30 * time.Second
	// catchUpSlack is how close to the safe head the catch up phase stops
	catchUpSlack = 5
)

// safeHead is the newest block that is followDistance blocks deep
func (f *EventTracker) safeHead(ctx bCtx.Ctx) (uint64, bool, error) {
	head, err := f.head.BlockNumber(ctx)
	if err != nil {
		return 0, false, err
	}
	f.met.BumpAvg("chain.head", float64(head))
	if head < f.followDistance {
		return 0, false, nil
	}
	return head - f.followDistance, true, nil
}

// catchUp scans in large ranges until the cursor is close to the safe head
func (f *EventTracker) catchUp(ctx bCtx.Ctx) error {
	for {
		target, ok, err := f.safeHead(ctx)
		if err != nil {
			return err
		}
		from := f.state.LastBlockProcessed
		if !ok || from+catchUpSlack >= target {
			return nil
		}
		ctx.WithFields(log.Fields{"from": from, "to": target}).Info("catching up")
		if err := f.scan(ctx, newBlockRange(from, target)); err != nil {
			return err
		}
	}
}

// scan fetches and applies every log of r in order. Ranges are cut to
// MaxBlockSpan and halved whenever the node refuses to answer.
func (f *EventTracker) scan(ctx bCtx.Ctx, r *blockRange) error {
	chunks := r.chunks(MaxBlockSpan)
	// stack, earliest range on top
	todo := make([]*blockRange, 0, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		todo = append(todo, chunks[i])
	}
	for len(todo) > 0 {
		cur := todo[len(todo)-1]
		todo = todo[:len(todo)-1]

		raw, err := f.fetch(ctx, cur)
		if err != nil {
			if cur.single() {
				ctx.WithFields(log.Fields{"err": err, "range": cur.String()}).Error("FilterLogs failed on a single block")
				return err
			}
			first, second := cur.split()
			todo = append(todo, second, first)
			ctx.WithFields(log.Fields{"err": err, "range": cur.String()}).Info("splitting range")
			continue
		}

		logs, err := f.enrich(ctx, raw)
		if err != nil {
			return err
		}
		pending := logs[:0]
		for i := range logs {
			if !seen(f.state, &logs[i]) {
				pending = append(pending, logs[i])
			}
		}
		ctx.WithFields(log.Fields{"range": cur.String(), "logs": len(raw), "new": len(pending)}).Info("range fetched")

		for len(pending) > 0 {
			n := f.batchSize
			if n > len(pending) {
				n = len(pending)
			}
			last := pending[n-1]
			if err := f.commit(ctx, pending[:n], last.BlockNumber, int64(last.Index)); err != nil {
				return err
			}
			pending = pending[n:]
		}
		// the whole range is done, the next one starts at a fresh block
		if err := f.commit(ctx, nil, cur.end+1, -1); err != nil {
			return err
		}
	}
	f.met.BumpAvg("cursor.block", float64(f.state.LastBlockProcessed))
	return nil
}

func (f *EventTracker) fetch(ctx bCtx.Ctx, r *blockRange) ([]types.Log, error) {
	q := f.filter
	q.FromBlock = r.fromBlock()
	q.ToBlock = r.toBlock()
	c, cancel := bCtx.WithTimeout(ctx, FilterLogsTimeout)
	defer cancel()
	return f.rpc.FilterLogs(c, q)
}

// commit applies logs and moves the cursor to (block, logIndex) in one
// transaction. A failed attempt is retried with backoff. The in-memory cursor
// only moves once the transaction committed.
func (f *EventTracker) commit(ctx bCtx.Ctx, logs []chainLog, block uint64, logIndex int64) error {
	next := *f.state
	next.LastBlockProcessed = block
	next.LastLogIndexProcessed = logIndex
	apply := func(c bCtx.Ctx) error {
		if len(logs) > 0 {
			if err := f.handler.ProcessEvents(c, logs); err != nil {
				return xerrors.Errorf("process events: %w", err)
			}
		}
		state := next
		if err := f.states.Update(c, &state); err != nil {
			return xerrors.Errorf("update cursor: %w", err)
		}
		return nil
	}

	b := backoff.NewExponential(f.retry.Min, f.retry.Max)
	for attempt := 1; ; attempt++ {
		err := f.q.RunWithTransaction(ctx, apply)
		if err == nil {
			break
		}
		f.met.BumpSum("batch.retry", 1)
		if attempt >= f.retry.Attempts {
			return xerrors.Errorf("batch ending at %d/%d failed %d times: %w", block, logIndex, attempt, err)
		}
		ctx.WithFields(log.Fields{
			"err":     err,
			"attempt": attempt,
			"wait":    b.NextDuration,
			"block":   block,
		}).Warn("batch failed, retrying")
		if err := b.Backoff(ctx); err != nil {
			return err
		}
	}
	*f.state = next
	return nil
}
