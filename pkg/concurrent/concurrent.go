package concurrent

import (
	"context"

	"github.com/zeusync/cubenav/pkg/sequence"
	"golang.org/x/sync/errgroup"
)

// Map applies fn to each element of the iterator with at most workers
// goroutines, preserving input order in the result. The first error cancels
// ctx for the remaining calls and is returned.
func Map[T any, R any](ctx context.Context, i *sequence.Iterator[T], workers int, fn func(context.Context, T) (R, error)) ([]R, error) {
	in := i.Collect()
	out := make([]R, len(in))
	if len(in) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, v := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, v)
			if err != nil {
				return err
			}
			out[idx] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
