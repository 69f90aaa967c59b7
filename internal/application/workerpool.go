package application

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Worker pool defaults.
const (
	DefaultWorkers    = 6
	DefaultChunkSize  = 1
	DefaultChunkDelay = 1100 * time.Millisecond
)

// RunPool calls fn for every index in [0, n) using up to workers goroutines
// that pull indices from a shared counter. An item error is logged and
// counted; it never stops the other items. RunPool returns the number of
// failed items and ctx.Err() if the context ended first.
func RunPool(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) (int, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	var (
		next   atomic.Int64
		failed atomic.Int64
		g      errgroup.Group
	)
	for range workers {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := fn(ctx, i); err != nil {
					failed.Add(1)
					slog.Warn("pool item failed", "index", i, "error", err)
				}
			}
		})
	}
	_ = g.Wait()
	return int(failed.Load()), ctx.Err()
}

// RunChunked processes items in chunks of chunkSize. Items within a chunk run
// concurrently; chunks are started no faster than one per delay. Errors are
// handled as in RunPool.
func RunChunked[T any](ctx context.Context, items []T, chunkSize int, delay time.Duration, fn func(ctx context.Context, item T) error) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if delay <= 0 {
		delay = DefaultChunkDelay
	}
	pace := rate.NewLimiter(rate.Every(delay), 1)

	failed := 0
	for start := 0; start < len(items); start += chunkSize {
		if err := pace.Wait(ctx); err != nil {
			return failed, err
		}
		chunk := items[start:min(start+chunkSize, len(items))]

		var (
			chunkFailed atomic.Int64
			g           errgroup.Group
		)
		for _, item := range chunk {
			g.Go(func() error {
				if err := fn(ctx, item); err != nil {
					chunkFailed.Add(1)
					slog.Warn("chunk item failed", "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
		failed += int(chunkFailed.Load())
	}
	return failed, ctx.Err()
}
