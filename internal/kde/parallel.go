package kde

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EstimateAll estimates one density per column concurrently. Results keep
// column order.
func EstimateAll(ctx context.Context, columns [][]float64, opts ...Option) ([]Univariate, error) {
	out := make([]Univariate, len(columns))
	g, ctx := errgroup.WithContext(ctx)
	for i, col := range columns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := Estimate(col, opts...)
			if err != nil {
				return fmt.Errorf("column %d: %w", i, err)
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
