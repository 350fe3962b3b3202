package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AcceptanceRate is the fraction of transitions in which the chain moved.
// Metropolis chains repeat the previous row on rejection.
func AcceptanceRate(samples mat.Matrix) float64 {
	r, c := samples.Dims()
	if r < 2 {
		return 0
	}
	moved := 0
	for i := 1; i < r; i++ {
		for j := 0; j < c; j++ {
			if samples.At(i, j) != samples.At(i-1, j) {
				moved++
				break
			}
		}
	}
	return float64(moved) / float64(r-1)
}

// Histogram bins x into n equal-width bins spanning its range. It returns
// the counts and the n+1 bin edges.
func Histogram(x []float64, n int) ([]float64, []float64) {
	if len(x) == 0 || n < 1 {
		return nil, nil
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	edges := make([]float64, n+1)
	floats.Span(edges, lo, hi)
	// stat.Histogram treats the last divider as exclusive.
	edges[n] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, edges, sorted, nil)
	edges[n] = hi
	return counts, edges
}
