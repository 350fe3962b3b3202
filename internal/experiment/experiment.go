// Package experiment turns a pipeline configuration into concrete models,
// solvers, priors and observables.
package experiment

import (
	"fmt"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/metrics"
	"github.com/san-kum/bayesode/internal/models"
)

// Experiment is a resolved configuration. The same Problem, initial state
// and solver settings are used by every stage.
type Experiment struct {
	Config       *config.Config
	Model        models.Model
	Info         models.ModelInfo
	Problem      *dynamo.Problem
	Integrator   compute.IntegratorFactory
	SolverConfig dynamo.Config
	// DataTimes is the observation grid shared by synthesis and inference.
	DataTimes   []float64
	Priors      []bayes.Prior
	NoisePrior  bayes.Prior
	Observables []metrics.Observable
}

// New validates cfg and resolves every name in it against reg.
func New(cfg *config.Config, reg *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := reg.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	newInteg, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	if r, ok := newInteg().(dynamo.Restricted); ok && !r.Supports(m) {
		return nil, fmt.Errorf("%w: integrator %s cannot solve model %s", config.ErrInvalidConfig, cfg.Integrator, cfg.Model)
	}
	info := m.Describe()

	params := info.DefaultParams.Clone()
	if cfg.Params != nil {
		params = dynamo.Params(cfg.Params).Clone()
	}
	u0 := info.DefaultU0.Clone()
	if cfg.InitState != nil {
		u0 = dynamo.State(cfg.InitState).Clone()
	}
	span := info.DefaultSpan
	if cfg.Duration > 0 || cfg.Start != 0 {
		d := cfg.Duration
		if d == 0 {
			d = span.Duration()
		}
		span = dynamo.TimeSpan{Start: cfg.Start, End: cfg.Start + d}
	}
	prob, err := dynamo.NewProblem(m, u0, span, params)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", info.Name, err)
	}

	solver := dynamo.DefaultConfig()
	solver.Dt = cfg.Dt
	solver.Adaptive = cfg.Adaptive
	if cfg.Tolerance > 0 {
		solver.Tolerance = cfg.Tolerance
	}

	e := &Experiment{
		Config:       cfg,
		Model:        m,
		Info:         info,
		Problem:      prob,
		Integrator:   newInteg,
		SolverConfig: solver,
		DataTimes:    span.Grid(cfg.Data.Points - 1),
	}
	if err := e.resolvePriors(reg); err != nil {
		return nil, err
	}
	for _, expr := range cfg.Expectation.Observables {
		obs, err := reg.GetObservable(expr, prob.StateNames)
		if err != nil {
			return nil, err
		}
		e.Observables = append(e.Observables, obs)
	}
	return e, nil
}

func (e *Experiment) resolvePriors(reg *Registry) error {
	specs := e.Config.Inference.Priors
	for name := range specs {
		if models.Index(e.Problem.ParamNames, name) < 0 {
			return fmt.Errorf("%w: prior for %q, model %s has parameters %v", ErrUnknown, name, e.Info.Name, e.Problem.ParamNames)
		}
	}

	e.Priors = make([]bayes.Prior, len(e.Problem.Params))
	for i, name := range e.Problem.ParamNames {
		var err error
		if spec, ok := specs[name]; ok {
			e.Priors[i], err = reg.GetPrior(spec)
		} else {
			e.Priors[i], err = reg.DefaultPrior(e.Problem.Params[i])
		}
		if err != nil {
			return fmt.Errorf("prior for %s: %w", name, err)
		}
	}

	var err error
	if np := e.Config.Inference.NoisePrior; np != nil {
		e.NoisePrior, err = reg.GetPrior(*np)
	} else {
		e.NoisePrior, err = reg.DefaultNoisePrior(e.Config.Data.Sigma)
	}
	if err != nil {
		return fmt.Errorf("noise prior: %w", err)
	}
	return nil
}

// DataConfig is the solver configuration that records the observation grid.
func (e *Experiment) DataConfig() dynamo.Config {
	return e.SolverConfig.WithSaveAt(e.DataTimes)
}
