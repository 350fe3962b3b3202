package bayes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/san-kum/bayesode/internal/analysis"
)

var ErrBadProposal = errors.New("bayes: proposal covariance is not positive definite")

// Sampler draws n rows from target starting at initial.
type Sampler interface {
	Sample(ctx context.Context, target distmv.LogProber, initial []float64, n int, src rand.Source) (*mat.Dense, error)
}

// AcceptanceSampler also reports the fraction of accepted moves over every
// draw after burn-in, including draws that thinning drops.
type AcceptanceSampler interface {
	Sampler
	SampleAcceptance(ctx context.Context, target distmv.LogProber, initial []float64, n int, src rand.Source) (*mat.Dense, float64, error)
}

// MetropolisHastings is a random-walk sampler. Warmup draws are split into
// rounds; after each round the Gaussian proposal covariance is replaced by
// the round's empirical covariance scaled by 2.38²/d and nudged toward a
// useful acceptance rate. Warmup draws are discarded.
type MetropolisHastings struct {
	Warmup      int
	AdaptRounds int
	BurnIn      int
	Thin        int
	// Scales are the initial proposal standard deviations. Nil means 10% of
	// each coordinate's magnitude.
	Scales []float64
}

func DefaultMetropolisHastings() *MetropolisHastings {
	return &MetropolisHastings{Warmup: 1000, AdaptRounds: 5, Thin: 1}
}

func (m *MetropolisHastings) Sample(ctx context.Context, target distmv.LogProber, initial []float64, n int, src rand.Source) (*mat.Dense, error) {
	out, _, err := m.SampleAcceptance(ctx, target, initial, n, src)
	return out, err
}

// SampleAcceptance draws n*Thin rows, measures acceptance on all of them
// and keeps every Thin-th row.
func (m *MetropolisHastings) SampleAcceptance(ctx context.Context, target distmv.LogProber, initial []float64, n int, src rand.Source) (*mat.Dense, float64, error) {
	d := len(initial)
	if d == 0 || n < 1 {
		return nil, 0, fmt.Errorf("bayes: need a non-empty start and at least one draw")
	}
	if lp := target.LogProb(initial); math.IsInf(lp, -1) || math.IsNaN(lp) {
		return nil, 0, fmt.Errorf("bayes: initial point %v has zero posterior density", initial)
	}

	cov := mat.NewSymDense(d, nil)
	for i, x := range initial {
		s := 0.1 * math.Max(math.Abs(x), 1e-2)
		if i < len(m.Scales) && m.Scales[i] > 0 {
			s = m.Scales[i]
		}
		cov.SetSym(i, i, s*s)
	}

	current := append([]float64(nil), initial...)
	if m.Warmup > 0 {
		rounds := max(m.AdaptRounds, 1)
		size := max(m.Warmup/rounds, 2*d+2)
		for r := 0; r < rounds; r++ {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			window, err := m.run(target, current, cov, size, 0, 1, src)
			if err != nil {
				return nil, 0, err
			}
			copy(current, window.RawRowView(size-1))
			cov = adapt(cov, window)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	thin := max(m.Thin, 1)
	full, err := m.run(target, current, cov, n*thin, m.BurnIn, 1, src)
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	acc := analysis.AcceptanceRate(full)
	if thin == 1 {
		return full, acc, nil
	}
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, full.RawRowView((i+1)*thin-1))
	}
	return out, acc, nil
}

func (m *MetropolisHastings) run(target distmv.LogProber, initial []float64, cov *mat.SymDense, n, burnIn, rate int, src rand.Source) (*mat.Dense, error) {
	proposal, ok := samplemv.NewProposalNormal(cov, src)
	if !ok {
		return nil, ErrBadProposal
	}
	batch := mat.NewDense(n, len(initial), nil)
	mh := samplemv.MetropolisHastingser{
		Initial:  initial,
		Target:   target,
		Proposal: proposal,
		Src:      src,
		BurnIn:   burnIn,
		Rate:     rate,
	}
	mh.Sample(batch)
	return batch, nil
}

// adapt returns the proposal covariance for the next warmup round.
func adapt(prev *mat.SymDense, window *mat.Dense) *mat.SymDense {
	d, _ := prev.Dims()
	acc := analysis.AcceptanceRate(window)

	next := mat.NewSymDense(d, nil)
	if acc < 0.05 {
		next.ScaleSym(0.2, prev)
		return next
	}

	stat.CovarianceMatrix(next, window, nil)
	next.ScaleSym(2.38*2.38/float64(d), next)
	for i := 0; i < d; i++ {
		// keep every direction explorable
		floor := 1e-4 * prev.At(i, i)
		next.SetSym(i, i, next.At(i, i)+floor)
	}
	switch {
	case acc < 0.15:
		next.ScaleSym(0.5, next)
	case acc > 0.5:
		next.ScaleSym(1.5, next)
	}

	var chol mat.Cholesky
	if !chol.Factorize(next) {
		fallback := mat.NewSymDense(d, nil)
		fallback.ScaleSym(0.5, prev)
		return fallback
	}
	return next
}
