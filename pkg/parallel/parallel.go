// Package parallel holds small fan-out helpers.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapCompact runs fn over items with at most limit calls in flight and
// returns the results fn reported as present, in input order. The first error
// cancels the remaining calls and is returned. limit <= 0 means unbounded.
func MapCompact[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, bool, error)) ([]R, error) {
	type slot struct {
		value R
		ok    bool
	}
	slots := make([]slot, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		g.Go(func() error {
			value, ok, err := fn(gctx, item)
			if err != nil {
				return err
			}
			slots[i] = slot{value: value, ok: ok}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]R, 0, len(items))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.value)
		}
	}
	return out, nil
}
