package bayes

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/sim"
	"github.com/san-kum/bayesode/internal/synth"
)

var ErrModelMismatch = errors.New("bayes: model does not match data")

// NoiseName labels the observation noise scale in chains and summaries.
const NoiseName = "noise_sigma"

// Model is the Bayesian model over x = [θ..., σ].
type Model struct {
	Problem      *dynamo.Problem
	Data         *synth.Dataset
	Priors       []Prior
	NoisePrior   Prior
	Integrator   func() dynamo.Integrator
	SolverConfig dynamo.Config
}

// NewModel validates that priors, data and problem agree before any
// sampling starts. The solver's save grid is replaced by the data times.
func NewModel(prob *dynamo.Problem, data *synth.Dataset, priors []Prior, noise Prior, newInteg func() dynamo.Integrator, cfg dynamo.Config) (*Model, error) {
	if prob == nil || data == nil {
		return nil, fmt.Errorf("%w: nil problem or dataset", ErrModelMismatch)
	}
	if len(priors) != len(prob.Params) {
		return nil, fmt.Errorf("%w: %d priors for %d parameters", ErrModelMismatch, len(priors), len(prob.Params))
	}
	for i, p := range priors {
		if p == nil {
			return nil, fmt.Errorf("%w: missing prior for %s", ErrModelMismatch, prob.ParamNames[i])
		}
	}
	if noise == nil {
		return nil, fmt.Errorf("%w: missing noise prior", ErrModelMismatch)
	}
	if lo, _ := noise.Support(); lo < 0 {
		return nil, fmt.Errorf("%w: noise prior %s allows negative scales", ErrInvalidPrior, noise)
	}
	if data.Dim() != len(prob.U0) {
		return nil, fmt.Errorf("%w: dataset has %d columns, model has %d states", ErrModelMismatch, data.Dim(), len(prob.U0))
	}
	times := data.Times()
	if err := prob.ValidateSaveAt(times); err != nil {
		return nil, fmt.Errorf("%w: dataset grid: %v", ErrModelMismatch, err)
	}
	if newInteg == nil {
		return nil, fmt.Errorf("bayes: nil integrator factory")
	}
	return &Model{
		Problem:      prob,
		Data:         data,
		Priors:       append([]Prior(nil), priors...),
		NoisePrior:   noise,
		Integrator:   newInteg,
		SolverConfig: cfg.WithSaveAt(times),
	}, nil
}

// Dim is the number of sampled quantities, parameters plus noise scale.
func (m *Model) Dim() int { return len(m.Priors) + 1 }

func (m *Model) Names() []string {
	return append(append([]string(nil), m.Problem.ParamNames...), NoiseName)
}

// Split separates x into parameters and noise scale.
func (m *Model) Split(x []float64) (dynamo.Params, float64) {
	n := len(m.Priors)
	return dynamo.Params(x[:n]), x[n]
}

// LogPrior sums the independent prior log densities of x.
func (m *Model) LogPrior(x []float64) float64 {
	theta, sigma := m.Split(x)
	lp := m.NoisePrior.LogProb(sigma)
	for i, p := range m.Priors {
		lp += p.LogProb(theta[i])
	}
	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}

// LogLikelihood re-solves the ODE at theta on the data grid and scores
// every observed component as an independent Normal(pred, σ²) draw, which
// is the multivariate normal MvNormal(pred, σ²I) per time point.
func (m *Model) LogLikelihood(ctx context.Context, s *sim.Simulator, theta dynamo.Params, sigma float64) (float64, error) {
	if !(sigma > 0) {
		return math.Inf(-1), nil
	}
	prob, err := m.Problem.Remake(theta)
	if err != nil {
		return 0, err
	}
	traj, err := s.Solve(ctx, prob, m.SolverConfig)
	if err != nil {
		return 0, err
	}
	if traj.Len() != m.Data.Len() {
		return 0, fmt.Errorf("%w: solver returned %d samples for %d observations", ErrModelMismatch, traj.Len(), m.Data.Len())
	}

	ll := 0.0
	m.Data.Each(func(i int, _ float64, obs dynamo.State) {
		for j, y := range obs {
			ll += distuv.Normal{Mu: traj.States[i][j], Sigma: sigma}.LogProb(y)
		}
	})
	return ll, nil
}

// Target is the log posterior density of a model for one chain. It owns an
// integrator, so each chain needs its own Target.
type Target struct {
	model       *Model
	sim         *sim.Simulator
	ctx         context.Context
	evals       int
	divergences int
	lastErr     error
}

func (m *Model) NewTarget(ctx context.Context) *Target {
	return &Target{model: m, sim: sim.New(m.Integrator()), ctx: ctx}
}

// LogProb implements distmv.LogProber. Points outside the prior support
// score -Inf without solving. Solver failures also score -Inf and are
// counted as divergences.
func (t *Target) LogProb(x []float64) float64 {
	if t.ctx.Err() != nil {
		return math.Inf(-1)
	}
	lp := t.model.LogPrior(x)
	if math.IsInf(lp, -1) {
		return lp
	}
	theta, sigma := t.model.Split(x)
	t.evals++
	ll, err := t.model.LogLikelihood(t.ctx, t.sim, theta, sigma)
	if err != nil {
		if t.ctx.Err() == nil {
			t.divergences++
			t.lastErr = err
		}
		return math.Inf(-1)
	}
	return lp + ll
}

func (t *Target) Evaluations() int { return t.evals }
func (t *Target) Divergences() int { return t.divergences }

// LastError is the most recent solver failure, if any.
func (t *Target) LastError() error { return t.lastErr }
