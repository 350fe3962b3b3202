package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrShortChain = errors.New("analysis: chain too short")

// EffectiveSampleSize estimates the number of independent draws carried by
// an autocorrelated chain, truncating the autocorrelation sum at the first
// non-positive pair (Geyer's initial positive sequence) and enforcing
// monotone pair sums. A chain that never moves has an ESS of 1.
func EffectiveSampleSize(x []float64) float64 {
	n := len(x)
	if n < 4 {
		return float64(n)
	}
	rho := Autocorrelation(x)
	if rho == nil {
		return 1
	}

	sum := 0.0
	prev := math.Inf(1)
	for k := 0; k+1 < n; k += 2 {
		pair := rho[k] + rho[k+1]
		if pair <= 0 {
			break
		}
		if pair > prev {
			pair = prev
		}
		sum += pair
		prev = pair
	}
	tau := -1 + 2*sum
	if tau < 1/math.Log10(float64(n)) {
		tau = 1 / math.Log10(float64(n))
	}
	return float64(n) / tau
}

// SplitRHat computes the potential scale reduction factor after splitting
// each chain in half. Values near 1 indicate that all halves sample the
// same distribution. Every chain must hold at least 4 draws; chains of
// different lengths are truncated to the shortest.
func SplitRHat(chains [][]float64) (float64, error) {
	if len(chains) == 0 {
		return math.NaN(), fmt.Errorf("%w: no chains", ErrShortChain)
	}
	n := len(chains[0])
	for _, c := range chains {
		n = min(n, len(c))
	}
	if n < 4 {
		return math.NaN(), fmt.Errorf("%w: %d draws, need at least 4", ErrShortChain, n)
	}
	half := n / 2

	var means, vars []float64
	for _, c := range chains {
		for _, part := range [][]float64{c[:half], c[n-half : n]} {
			mu, v := stat.MeanVariance(part, nil)
			means = append(means, mu)
			vars = append(vars, v)
		}
	}

	w := stat.Mean(vars, nil)
	b := float64(half) * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1, nil
		}
		return math.Inf(1), nil
	}
	varPlus := float64(half-1)/float64(half)*w + b/float64(half)
	return math.Sqrt(varPlus / w), nil
}
