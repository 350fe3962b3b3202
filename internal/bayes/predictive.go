package bayes

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
)

// Band is a pointwise credible band, indexed [time][component].
type Band struct {
	Times  []float64
	Lower  [][]float64
	Median [][]float64
	Upper  [][]float64
	// Coverage is the fraction of observations inside [Lower, Upper].
	Coverage float64
	Draws    int
}

// PosteriorPredictive simulates replicated datasets from draws random
// posterior rows, noise included, and returns the central 95% band. The
// ensemble of solves runs on backend.
func PosteriorPredictive(ctx context.Context, m *Model, post *Posterior, draws int, seed uint64, backend compute.Backend) (*Band, error) {
	if draws < 2 {
		return nil, fmt.Errorf("bayes: posterior predictive needs at least 2 draws, got %d", draws)
	}
	pooled, _ := post.Pooled()
	rows, _ := pooled.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("bayes: empty posterior")
	}

	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	params := make([]dynamo.Params, draws)
	sigmas := make([]float64, draws)
	for k := range params {
		theta, sigma := m.Split(pooled.RawRowView(rng.IntN(rows)))
		params[k] = theta.Clone()
		sigmas[k] = sigma
	}

	trajs, err := backend.SolveMany(ctx, m.Problem, params, m.SolverConfig, m.Integrator)
	if err != nil {
		return nil, fmt.Errorf("bayes: posterior predictive: %w", err)
	}

	n, d := m.Data.Len(), m.Data.Dim()
	band := &Band{
		Times:  m.Data.Times(),
		Lower:  make([][]float64, n),
		Median: make([][]float64, n),
		Upper:  make([][]float64, n),
		Draws:  draws,
	}
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed+1, seed)}
	reps := make([]float64, draws)
	inside := 0
	for i := 0; i < n; i++ {
		band.Lower[i] = make([]float64, d)
		band.Median[i] = make([]float64, d)
		band.Upper[i] = make([]float64, d)
		_, obs := m.Data.Row(i)
		for j := 0; j < d; j++ {
			for k, tr := range trajs {
				reps[k] = tr.States[i][j] + sigmas[k]*noise.Rand()
			}
			sort.Float64s(reps)
			band.Lower[i][j] = stat.Quantile(0.025, stat.Empirical, reps, nil)
			band.Median[i][j] = stat.Quantile(0.5, stat.Empirical, reps, nil)
			band.Upper[i][j] = stat.Quantile(0.975, stat.Empirical, reps, nil)
			if obs[j] >= band.Lower[i][j] && obs[j] <= band.Upper[i][j] {
				inside++
			}
		}
	}
	band.Coverage = float64(inside) / float64(n*d)
	return band, nil
}
