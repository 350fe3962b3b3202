package bayes

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/san-kum/bayesode/internal/analysis"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/optim"
)

// Init strategies for chain starting points.
const (
	InitPrior = "prior"
	InitMean  = "mean"
	InitMAP   = "map"
)

type Options struct {
	Chains  int
	Samples int
	Seed    uint64
	Init    string
	// Initial overrides Init when set; it must have Model.Dim() entries.
	Initial []float64
	MaxRHat float64
	Sampler Sampler
}

func DefaultOptions() Options {
	return Options{
		Chains:  4,
		Samples: 1000,
		Seed:    1,
		Init:    InitMAP,
		MaxRHat: 1.05,
	}
}

func (o Options) validate(m *Model) error {
	if o.Chains < 1 {
		return fmt.Errorf("bayes: need at least one chain, got %d", o.Chains)
	}
	if o.Samples < 1 {
		return fmt.Errorf("bayes: need at least one sample, got %d", o.Samples)
	}
	if o.Initial != nil && len(o.Initial) != m.Dim() {
		return fmt.Errorf("%w: initial point has %d entries, model has %d", ErrModelMismatch, len(o.Initial), m.Dim())
	}
	switch o.Init {
	case "", InitPrior, InitMean, InitMAP:
	default:
		return fmt.Errorf("bayes: unknown init strategy %q", o.Init)
	}
	return nil
}

// chainSeed spreads chain IDs over the seed space so chains never share a stream.
func chainSeed(seed uint64, id int) uint64 {
	return seed*0x9e3779b97f4a7c15 + uint64(id+1)*0xbf58476d1ce4e5b9
}

// Run samples opts.Chains independent chains concurrently. The first
// failing chain cancels the others.
func Run(ctx context.Context, m *Model, opts Options, logger *slog.Logger) (*Posterior, error) {
	logger = logging.OrDiscard(logger)
	if err := opts.validate(m); err != nil {
		return nil, err
	}
	if opts.MaxRHat == 0 {
		opts.MaxRHat = DefaultOptions().MaxRHat
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = DefaultMetropolisHastings()
	}
	if mh, ok := sampler.(*MetropolisHastings); ok && mh.Scales == nil {
		scaled := *mh
		scaled.Scales = m.proposalScales()
		sampler = &scaled
	}

	var mapStart []float64
	if opts.Initial == nil && (opts.Init == InitMAP || opts.Init == "") {
		x, err := m.mapPoint(ctx, logger)
		if err != nil {
			return nil, err
		}
		mapStart = x
	}

	chains := make([]*Chain, opts.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for id := range chains {
		g.Go(func() error {
			seed := chainSeed(opts.Seed, id)
			src := rand.NewPCG(seed, uint64(id))
			rng := rand.New(rand.NewPCG(seed, ^uint64(id)))

			init, err := m.initialPoint(gctx, opts, mapStart, rng)
			if err != nil {
				return fmt.Errorf("chain %d: %w", id, err)
			}

			start := time.Now()
			target := m.NewTarget(gctx)
			samples, acceptance, err := sample(gctx, sampler, target, init, opts.Samples, src)
			if err != nil {
				if last := target.LastError(); last != nil {
					return fmt.Errorf("chain %d: %w (last solver error: %v)", id, err, last)
				}
				return fmt.Errorf("chain %d: %w", id, err)
			}
			chains[id] = newChain(id, seed, init, samples, m.Names(), acceptance, target.Divergences(), target.Evaluations(), time.Since(start))
			logger.Debug("chain finished", "chain", id,
				"acceptance", chains[id].Diagnostics.AcceptanceRate,
				"divergences", chains[id].Diagnostics.Divergences,
				"elapsed", chains[id].Diagnostics.Elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	post := NewPosterior(chains, m.Names(), opts.MaxRHat)
	for _, w := range post.Warnings() {
		logger.Warn("sampler diagnostic", "warning", w)
	}
	return post, nil
}

// sample runs s and returns its acceptance rate. Samplers that cannot
// report one are measured on the rows they return.
func sample(ctx context.Context, s Sampler, target distmv.LogProber, start []float64, n int, src rand.Source) (*mat.Dense, float64, error) {
	if as, ok := s.(AcceptanceSampler); ok {
		return as.SampleAcceptance(ctx, target, start, n, src)
	}
	out, err := s.Sample(ctx, target, start, n, src)
	if err != nil {
		return nil, 0, err
	}
	return out, analysis.AcceptanceRate(out), nil
}

func (m *Model) priorMeans() []float64 {
	x := make([]float64, m.Dim())
	for i, p := range m.Priors {
		x[i] = p.Mean()
	}
	x[len(m.Priors)] = m.NoisePrior.Mean()
	for i, v := range x {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			p := m.NoisePrior
			if i < len(m.Priors) {
				p = m.Priors[i]
			}
			x[i] = p.Quantile(0.5)
		}
	}
	return x
}

// proposalScales are a tenth of each prior's central 68% width.
func (m *Model) proposalScales() []float64 {
	out := make([]float64, m.Dim())
	for i := range out {
		p := m.NoisePrior
		if i < len(m.Priors) {
			p = m.Priors[i]
		}
		out[i] = 0.1 * 0.5 * (p.Quantile(0.84) - p.Quantile(0.16))
	}
	return out
}

// mapPoint maximises the posterior from the prior means, falling back to
// a coarse grid over prior quantiles when the means are infeasible.
func (m *Model) mapPoint(ctx context.Context, logger *slog.Logger) ([]float64, error) {
	target := m.NewTarget(ctx)
	start := m.priorMeans()
	if lp := target.LogProb(start); math.IsInf(lp, -1) {
		ranges := make([][]float64, m.Dim())
		for i := range ranges {
			p := m.NoisePrior
			if i < len(m.Priors) {
				p = m.Priors[i]
			}
			ranges[i] = []float64{p.Quantile(0.2), p.Quantile(0.5), p.Quantile(0.8)}
		}
		x, _, err := optim.NewGridSearch(ranges).Search(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("bayes: map start: %w", err)
		}
		start = x
	}

	res, err := optim.MAP(ctx, target, start, optim.DefaultMAPSettings())
	if err != nil {
		return nil, fmt.Errorf("bayes: map: %w", err)
	}
	logger.Info("map estimate", "x", res.X, "logprob", res.LogProb, "evals", res.Evals, "status", res.Status.String())
	return res.X, nil
}

func (m *Model) initialPoint(ctx context.Context, opts Options, mapStart []float64, rng *rand.Rand) ([]float64, error) {
	switch {
	case opts.Initial != nil:
		return append([]float64(nil), opts.Initial...), nil
	case mapStart != nil:
		return jitter(mapStart, rng), nil
	case opts.Init == InitMean:
		return m.priorMeans(), nil
	}

	target := m.NewTarget(ctx)
	for try := 0; try < 100; try++ {
		x := make([]float64, m.Dim())
		for i, p := range m.Priors {
			x[i] = Draw(p, rng)
		}
		x[len(m.Priors)] = Draw(m.NoisePrior, rng)
		if lp := target.LogProb(x); !math.IsInf(lp, -1) && !math.IsNaN(lp) {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: 100 prior draws all had zero posterior density", optim.ErrNoFeasiblePoint)
}

// jitter spreads chains started from one point by up to 1% per coordinate.
func jitter(x []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * (1 + 0.01*(2*rng.Float64()-1))
	}
	return out
}
