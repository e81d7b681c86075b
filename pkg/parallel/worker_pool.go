// Package parallel runs bounded fan-out work for persistence and reloading.
package parallel

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PoolConfig bounds the number of concurrent workers.
type PoolConfig struct {
	// MaxWorkers defaults to min(runtime.NumCPU(), 8).
	MaxWorkers int
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 2 {
		workers = 2
	}
	return PoolConfig{MaxWorkers: workers}
}

// WithWorkers returns a copy with n workers; n <= 0 keeps the default.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	if n > 0 {
		c.MaxWorkers = n
	}
	return c
}

func (c PoolConfig) workers() int {
	if c.MaxWorkers <= 0 {
		return DefaultPoolConfig().MaxWorkers
	}
	return c.MaxWorkers
}

// ForEach calls fn for every item with at most MaxWorkers in flight.
// The first error cancels the remaining items and is returned along with
// the count of items that completed successfully.
func ForEach[T any](
	ctx context.Context,
	items []T,
	config PoolConfig,
	fn func(ctx context.Context, item T) error,
) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.workers())
	for _, item := range items {
		item := item
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, item); err != nil {
				return err
			}
			processed.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return processed.Load(), err
}

// Map applies fn to every item and returns results in input order.
func Map[T any, R any](
	ctx context.Context,
	items []T,
	config PoolConfig,
	fn func(ctx context.Context, item T) (R, error),
) ([]R, error) {
	results := make([]R, len(items))
	indices := make([]int, len(items))
	for i := range indices {
		indices[i] = i
	}
	_, err := ForEach(ctx, indices, config, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
