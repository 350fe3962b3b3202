package optim

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distmv"
)

// GridSearch evaluates a target on the Cartesian product of per-dimension
// candidate values and keeps the best point.
type GridSearch struct {
	ranges [][]float64
}

func NewGridSearch(ranges [][]float64) *GridSearch {
	return &GridSearch{ranges: ranges}
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search returns the grid point with the highest log density. It fails when
// every point has zero density.
func (g *GridSearch) Search(ctx context.Context, target distmv.LogProber) ([]float64, float64, error) {
	best := math.Inf(-1)
	var bestX []float64

	current := make([]float64, len(g.ranges))
	err := g.searchRecursive(ctx, 0, current, target, &best, &bestX)
	if err != nil {
		return nil, 0, err
	}
	if bestX == nil {
		return nil, 0, fmt.Errorf("%w: no grid point has finite log density", ErrNoFeasiblePoint)
	}
	return bestX, best, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current []float64, target distmv.LogProber, best *float64, bestX *[]float64) error {
	if depth == len(g.ranges) {
		if err := ctx.Err(); err != nil {
			return err
		}
		val := target.LogProb(current)
		if val > *best && !math.IsNaN(val) {
			*best = val
			*bestX = append([]float64(nil), current...)
		}
		return nil
	}

	for _, val := range g.ranges[depth] {
		current[depth] = val
		if err := g.searchRecursive(ctx, depth+1, current, target, best, bestX); err != nil {
			return err
		}
	}
	return nil
}
