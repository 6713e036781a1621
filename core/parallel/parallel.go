// Package parallel splits row ranges across goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunks divides items into at most workers contiguous [start, end) ranges.
func chunks(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	size := (items + workers - 1) / workers

	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += size {
		end := start + size
		if end > items {
			end = items
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Parallelize runs fn over items split into one range per CPU core and
// waits for all ranges to finish.
func Parallelize(items int, fn func(start, end int)) {
	_ = ForEachChunk(context.Background(), items, 0, func(_ context.Context, start, end int) error {
		fn(start, end)
		return nil
	})
}

// ParallelizeWithThreshold runs fn sequentially over [0, items) when items
// is at most threshold, and in parallel otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}

// ForEachChunk is the error-aware variant of Parallelize. workers <= 0 means
// one worker per CPU core. The first error cancels the context handed to the
// remaining chunks and is returned.
func ForEachChunk(ctx context.Context, items, workers int, fn func(ctx context.Context, start, end int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks(items, workers) {
		start, end := c[0], c[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}
	return g.Wait()
}
