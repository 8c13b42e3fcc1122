package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrderSequential(t *testing.T) {
	const n = 50
	var mu sync.Mutex
	var out []int

	next := 0
	read := func(ctx context.Context) (Item, bool, error) {
		if next >= n {
			return Item{}, false, nil
		}
		item := Item{Seq: uint32(next), Data: next}
		next++
		return item, true, nil
	}
	work := func(ctx context.Context, in Item) (Item, error) {
		return Item{Seq: in.Seq, Data: in.Data.(int) * 2}, nil
	}
	write := func(ctx context.Context, o Item) error {
		mu.Lock()
		defer mu.Unlock()
		out = append(out, o.Data.(int))
		return nil
	}

	err := Run(context.Background(), Options{QueueDepth: 4, Concurrency: 1}, read, work, write)
	require.NoError(t, err)
	require.Len(t, out, n)
	for i, v := range out {
		require.Equal(t, i*2, v)
	}
}

func TestRunPreservesOrderConcurrent(t *testing.T) {
	const n = 200
	var out []int

	next := 0
	read := func(ctx context.Context) (Item, bool, error) {
		if next >= n {
			return Item{}, false, nil
		}
		item := Item{Seq: uint32(next), Data: next}
		next++
		return item, true, nil
	}
	work := func(ctx context.Context, in Item) (Item, error) {
		return Item{Seq: in.Seq, Data: in.Data.(int) * 2}, nil
	}
	write := func(ctx context.Context, o Item) error {
		out = append(out, o.Data.(int))
		return nil
	}

	err := Run(context.Background(), Options{QueueDepth: 8, Concurrency: 8}, read, work, write)
	require.NoError(t, err)
	require.Len(t, out, n)
	for i, v := range out {
		require.Equal(t, i*2, v)
	}
}

func TestRunPropagatesWorkError(t *testing.T) {
	read := func(ctx context.Context) (Item, bool, error) {
		return Item{Seq: 0}, true, nil
	}
	work := func(ctx context.Context, in Item) (Item, error) {
		return Item{}, fmt.Errorf("boom")
	}
	write := func(ctx context.Context, o Item) error { return nil }

	err := Run(context.Background(), Options{}, read, work, write)
	require.Error(t, err)
}

func TestRunPropagatesReadError(t *testing.T) {
	read := func(ctx context.Context) (Item, bool, error) {
		return Item{}, false, fmt.Errorf("read failed")
	}
	work := func(ctx context.Context, in Item) (Item, error) { return in, nil }
	write := func(ctx context.Context, o Item) error { return nil }

	err := Run(context.Background(), Options{}, read, work, write)
	require.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	read := func(ctx context.Context) (Item, bool, error) {
		calls++
		return Item{Seq: uint32(calls)}, true, nil
	}
	work := func(ctx context.Context, in Item) (Item, error) { return in, nil }
	write := func(ctx context.Context, o Item) error { return nil }

	err := Run(ctx, Options{QueueDepth: 1}, read, work, write)
	require.Error(t, err)
}
