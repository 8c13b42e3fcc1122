// Package pipeline implements the bounded, cancellable reader/worker/writer
// plumbing the encoder runs on (decode and repair walk their RS groups in a
// plain sequential loop and do not use it): a single reader
// goroutine feeds one or more worker goroutines through a bounded channel,
// and a single writer goroutine drains their output in order. All three
// stages share one context so a cancellation or a worker's error stops the
// whole pipeline instead of leaving goroutines running to no purpose.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/blkar/blkar/internal/sbxerr"
)

// DefaultQueueDepth is the bounded channel size used when a caller doesn't
// override it; the bound caps memory and propagates backpressure.
const DefaultQueueDepth = 64

// Item is one unit of pipeline work: a block's sequence number, carried
// alongside whatever payload the stage produces, so a writer can always
// place output at the right position even if workers finish out of order.
type Item struct {
	Seq  uint32
	Data interface{}
}

// ReadFunc produces the next Item, or (zero, false, nil) at end of input.
type ReadFunc func(ctx context.Context) (Item, bool, error)

// WorkFunc transforms one Item read from the input stage.
type WorkFunc func(ctx context.Context, in Item) (Item, error)

// WriteFunc consumes one Item produced by the work stage. Writes happen on
// a single goroutine, so WriteFunc need not be safe for concurrent use.
type WriteFunc func(ctx context.Context, out Item) error

// Options configures a Run.
type Options struct {
	// QueueDepth bounds how many items may be buffered between stages.
	// Zero means DefaultQueueDepth.
	QueueDepth int
	// Concurrency bounds how many workers run Work in parallel. Zero means
	// 1 (sequential, order-preserving).
	Concurrency int
}

// Run drives read -> work -> write to completion or the first error,
// honoring ctx cancellation throughout: in-flight work finishes or aborts
// promptly, and no partial writes escape once cancellation is observed.
//
// When Concurrency > 1, Work calls run concurrently but Write still
// receives items in the order Read produced them: Run reorders completed
// work before handing it to write, so block order in the output container
// always matches input order.
func Run(ctx context.Context, opts Options, read ReadFunc, work WorkFunc, write WriteFunc) error {
	queueDepth := opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan chan workResult, queueDepth)
	sem := semaphore.NewWeighted(int64(concurrency))

	// Reader: pulls items and hands each a dedicated result slot, preserving
	// order even though workers may finish out of order.
	g.Go(func() error {
		defer close(pending)
		for {
			if gctx.Err() != nil {
				return sbxerr.Cancelled("sbx: pipeline cancelled during read")
			}
			item, ok, err := read(gctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			slot := make(chan workResult, 1)
			select {
			case pending <- slot:
			case <-gctx.Done():
				return sbxerr.Cancelled("sbx: pipeline cancelled enqueueing item %d", item.Seq)
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				return sbxerr.Cancelled("sbx: pipeline cancelled acquiring worker slot for item %d", item.Seq)
			}
			g.Go(func() error {
				defer sem.Release(1)
				out, err := work(gctx, item)
				slot <- workResult{item: out, err: err}
				close(slot)
				return nil
			})
		}
	})

	// Writer: drains slots strictly in the order they were enqueued.
	g.Go(func() error {
		for slot := range pending {
			select {
			case res := <-slot:
				if res.err != nil {
					return res.err
				}
				if err := write(gctx, res.item); err != nil {
					return err
				}
			case <-gctx.Done():
				return sbxerr.Cancelled("sbx: pipeline cancelled during write")
			}
		}
		return nil
	})

	return g.Wait()
}

type workResult struct {
	item Item
	err  error
}
