package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/koopman"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/sim"
	"github.com/san-kum/bayesode/internal/synth"
)

// plotResolution is the number of intervals of the dense truth trajectory.
const plotResolution = 200

// Simulate solves the reference problem and perturbs it into a dataset.
// The first trajectory is recorded densely for display; the dataset is
// generated from a solve on the observation grid.
func Simulate(ctx context.Context, exp *experiment.Experiment) (*dynamo.Trajectory, *synth.Dataset, error) {
	s := sim.New(exp.Integrator())
	dense, err := s.Solve(ctx, exp.Problem, exp.SolverConfig.WithSaveAt(exp.Problem.Span.Grid(plotResolution)))
	if err != nil {
		return nil, nil, err
	}
	onGrid, err := s.Solve(ctx, exp.Problem, exp.DataConfig())
	if err != nil {
		return nil, nil, err
	}

	cfg := exp.Config.Data
	noise, err := synth.NewNoise(cfg.Noise, cfg.Sigma, exp.Config.Seed)
	if err != nil {
		return nil, nil, err
	}
	data, err := synth.Generate(onGrid, exp.Problem.StateNames, noise)
	if err != nil {
		return nil, nil, err
	}
	return dense, data, nil
}

// NewModel builds the Bayesian model of exp against data.
func NewModel(exp *experiment.Experiment, data *synth.Dataset) (*bayes.Model, error) {
	return bayes.NewModel(exp.Problem, data, exp.Priors, exp.NoisePrior, exp.Integrator, exp.SolverConfig)
}

// Infer samples the posterior of the model parameters and noise scale.
func Infer(ctx context.Context, exp *experiment.Experiment, model *bayes.Model, logger *slog.Logger) (*bayes.Posterior, error) {
	cfg := exp.Config.Inference
	opts := bayes.Options{
		Chains:  cfg.Chains,
		Samples: cfg.Samples,
		Seed:    exp.Config.Seed,
		Init:    cfg.Init,
		MaxRHat: cfg.MaxRHat,
		Sampler: &bayes.MetropolisHastings{
			Warmup:      cfg.Warmup,
			AdaptRounds: bayes.DefaultMetropolisHastings().AdaptRounds,
			Thin:        cfg.Thin,
		},
	}
	return bayes.Run(ctx, model, opts, logger)
}

// Predictive simulates replicated data from the posterior on backend.
func Predictive(ctx context.Context, exp *experiment.Experiment, model *bayes.Model, post *bayes.Posterior, backend compute.Backend) (*bayes.Band, error) {
	return bayes.PosteriorPredictive(ctx, model, post, predictiveDraws, exp.Config.Seed+1, backend)
}

const predictiveDraws = 200

// EstimateDensities fits one density per model parameter. The noise scale
// is not needed for expectations and is skipped. A parameter whose draws
// never moved becomes a point mass.
func EstimateDensities(ctx context.Context, exp *experiment.Experiment, post *bayes.Posterior) ([]kde.Univariate, error) {
	rule, err := kde.ParseRule(exp.Config.Density.Rule)
	if err != nil {
		return nil, err
	}
	opts := []kde.Option{kde.WithRule(rule), kde.AllowDegenerate()}
	if h := exp.Config.Density.Bandwidth; h > 0 {
		opts = append(opts, kde.WithBandwidth(h))
	}

	columns := make([][]float64, len(exp.Problem.Params))
	for j, name := range exp.Problem.ParamNames {
		col, err := post.Column(name)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	return kde.EstimateAll(ctx, columns, opts...)
}

// ExpectationReport pairs an estimate with the observable's value at the
// true parameters.
type ExpectationReport struct {
	Result *koopman.Result
	Truth  float64
}

// Expect evaluates every configured observable under densities. All
// quadrature levels share one backend.
func Expect(ctx context.Context, exp *experiment.Experiment, reg *experiment.Registry, densities []kde.Univariate, logger *slog.Logger) ([]ExpectationReport, error) {
	logger = logging.OrDiscard(logger)
	cfg := exp.Config.Expectation
	backend, err := reg.GetBackend(cfg.Backend, exp.Integrator, exp.SolverConfig, logger)
	if err != nil {
		return nil, err
	}
	defer backend.Cleanup()

	base := koopman.Request{
		Problem:      exp.Problem,
		Densities:    densities,
		SolverConfig: exp.SolverConfig,
		Integrator:   exp.Integrator,
		Method:       cfg.Method,
		Order:        cfg.Order,
		MaxOrder:     cfg.MaxOrder,
		RelTol:       cfg.RelTol,
		AbsTol:       cfg.AbsTol,
		BatchSize:    cfg.BatchSize,
		Samples:      cfg.Samples,
		Seed:         exp.Config.Seed,
		Backend:      backend,
		Logger:       logger,
	}
	truth := base
	truth.Method = koopman.MethodKoopman
	truth.Order, truth.OrderStep, truth.MaxOrder = 1, 1, 2
	truth.Densities = make([]kde.Univariate, len(exp.Problem.Params))
	for i, p := range exp.Problem.Params {
		truth.Densities[i] = kde.NewDirac(p)
	}

	out := make([]ExpectationReport, 0, len(exp.Observables))
	for _, obs := range exp.Observables {
		req := base
		req.Observable = obs
		res, err := koopman.Expectation(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("observable %s: %w", obs, err)
		}

		truth.Observable = obs
		ref, err := koopman.Expectation(ctx, truth)
		if err != nil {
			return nil, fmt.Errorf("observable %s at true parameters: %w", obs, err)
		}
		out = append(out, ExpectationReport{Result: res, Truth: ref.Value})
		logger.Info("expectation", "observable", obs.String(), "value", res.Value,
			"residual", res.Residual, "truth", ref.Value, "evaluations", res.Evaluations)
	}
	return out, nil
}
