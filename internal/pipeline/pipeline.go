// Package pipeline runs the four stages of a parameter study in order:
// simulate synthetic data, infer the posterior, estimate marginal
// densities, and evaluate expectations. Each stage consumes the immutable
// output of the previous one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/storage"
	"github.com/san-kum/bayesode/internal/synth"
)

const (
	StageSetup    = "setup"
	StageSimulate = "simulate"
	StageInfer    = "infer"
	StageDensity  = "density"
	StageExpect   = "expect"
	StagePersist  = "persist"
)

var stageOrder = []string{StageSimulate, StageInfer, StageDensity, StageExpect}

// Stages lists the runnable stages in execution order.
func Stages() []string { return append([]string(nil), stageOrder...) }

// StageError records which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type Report struct {
	RunID        string
	Experiment   *experiment.Experiment
	Truth        *dynamo.Trajectory
	Dataset      *synth.Dataset
	Posterior    *bayes.Posterior
	Predictive   *bayes.Band
	Densities    []kde.Univariate
	Expectations []ExpectationReport
	Warnings     []string
	Stages       []string
	Timings      map[string]time.Duration
}

type Pipeline struct {
	Config   *config.Config
	Registry *experiment.Registry
	// Store persists every run when set.
	Store  *storage.Store
	Logger *slog.Logger
	// Metrics collects stage timers and failure counts. Pipelines that
	// share a registry accumulate into the same timers.
	Metrics gometrics.Registry
}

func New(cfg *config.Config, reg *experiment.Registry, store *storage.Store, logger *slog.Logger) *Pipeline {
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	return &Pipeline{
		Config:   cfg,
		Registry: reg,
		Store:    store,
		Logger:   logging.OrDiscard(logger),
		Metrics:  gometrics.NewRegistry(),
	}
}

// StageTimer returns the timer recording durations of the named stage.
func StageTimer(r gometrics.Registry, name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer("stage."+name, r)
}

// StageFailures returns the counter of failures of the named stage.
func StageFailures(r gometrics.Registry, name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter("stage."+name+".failed", r)
}

// Run executes every stage.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	return p.RunUntil(ctx, StageExpect)
}

// RunUntil executes the stages up to and including last. Whatever
// completed is persisted even when a later stage fails.
func (p *Pipeline) RunUntil(ctx context.Context, last string) (*Report, error) {
	n := stageIndex(last)
	if n < 0 {
		return nil, &StageError{Stage: StageSetup, Err: fmt.Errorf("unknown stage %q (have %v)", last, stageOrder)}
	}
	exp, err := experiment.New(p.Config, p.Registry)
	if err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}
	rep := &Report{Experiment: exp, Timings: make(map[string]time.Duration)}
	start := time.Now()

	var model *bayes.Model
	stages := []func(context.Context, *Report) error{
		func(ctx context.Context, rep *Report) (err error) {
			rep.Truth, rep.Dataset, err = Simulate(ctx, exp)
			return err
		},
		func(ctx context.Context, rep *Report) (err error) {
			if model, err = NewModel(exp, rep.Dataset); err != nil {
				return err
			}
			if rep.Posterior, err = Infer(ctx, exp, model, p.Logger); err != nil {
				return err
			}
			return p.predictive(ctx, rep, model)
		},
		func(ctx context.Context, rep *Report) (err error) {
			rep.Densities, err = EstimateDensities(ctx, exp, rep.Posterior)
			return err
		},
		func(ctx context.Context, rep *Report) (err error) {
			rep.Expectations, err = Expect(ctx, exp, p.Registry, rep.Densities, p.Logger)
			return err
		},
	}

	var stageErr error
	for i := 0; i <= n; i++ {
		if err := p.stage(ctx, stageOrder[i], rep, stages[i]); err != nil {
			stageErr = err
			break
		}
	}
	rep.Warnings = collectWarnings(rep)
	gometrics.GetOrRegisterCounter("run.warnings", p.metrics()).Inc(int64(len(rep.Warnings)))
	for _, w := range rep.Warnings {
		p.Logger.Warn("run diagnostic", "warning", w)
	}

	if p.Store != nil && len(rep.Stages) > 0 {
		if err := p.persist(rep, time.Since(start)); err != nil {
			return rep, errors.Join(stageErr, &StageError{Stage: StagePersist, Err: err})
		}
	}
	if stageErr != nil {
		return rep, stageErr
	}
	return rep, nil
}

func stageIndex(name string) int {
	for i, s := range stageOrder {
		if s == name {
			return i
		}
	}
	return -1
}

func (p *Pipeline) stage(ctx context.Context, name string, rep *Report, fn func(context.Context, *Report) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	p.Logger.Info("stage started", "stage", name)
	start := time.Now()
	if err := fn(ctx, rep); err != nil {
		p.Logger.Error("stage failed", "stage", name, "error", err)
		StageFailures(p.metrics(), name).Inc(1)
		return &StageError{Stage: name, Err: err}
	}
	rep.Timings[name] = time.Since(start)
	StageTimer(p.metrics(), name).Update(rep.Timings[name])
	rep.Stages = append(rep.Stages, name)
	p.Logger.Info("stage finished", "stage", name, "elapsed", rep.Timings[name])
	return nil
}

func (p *Pipeline) metrics() gometrics.Registry {
	if p.Metrics == nil {
		p.Metrics = gometrics.NewRegistry()
	}
	return p.Metrics
}

func (p *Pipeline) predictive(ctx context.Context, rep *Report, model *bayes.Model) error {
	backend, err := p.Registry.GetBackend(p.Config.Expectation.Backend, rep.Experiment.Integrator, model.SolverConfig, p.Logger)
	if err != nil {
		return err
	}
	defer backend.Cleanup()
	rep.Predictive, err = Predictive(ctx, rep.Experiment, model, rep.Posterior, backend)
	return err
}

// minCoverage is the predictive coverage below which a run is flagged.
const minCoverage = 0.8

func collectWarnings(rep *Report) []string {
	var out []string
	if rep.Posterior != nil {
		out = append(out, rep.Posterior.Warnings()...)
	}
	if rep.Predictive != nil && rep.Predictive.Coverage < minCoverage {
		out = append(out, fmt.Sprintf("posterior predictive covers %.0f%% of observations", 100*rep.Predictive.Coverage))
	}
	for j, d := range rep.Densities {
		if d.PointMass() {
			out = append(out, fmt.Sprintf("%s: posterior collapsed to a point mass at %g",
				rep.Experiment.Problem.ParamNames[j], d.Mean()))
		}
	}
	for _, e := range rep.Expectations {
		if !e.Result.Converged {
			out = append(out, fmt.Sprintf("E[%s] did not converge: residual %.3g at order %d",
				e.Result.Observable, e.Result.Residual, e.Result.Order))
		}
	}
	return out
}

// Resume reloads a stored run and repeats the density and expectation
// stages on its chains, using the configuration stored with the run.
// Expectation results are written back to the run.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*Report, error) {
	if p.Store == nil {
		return nil, &StageError{Stage: StageSetup, Err: errors.New("no store configured")}
	}
	cfg, err := p.Store.LoadConfig(runID)
	if err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}
	if p.Config != nil {
		cfg.Expectation = p.Config.Expectation
		cfg.Density = p.Config.Density
	}
	exp, err := experiment.New(cfg, p.Registry)
	if err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}
	names, samples, err := p.Store.LoadChains(runID)
	if err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}
	chains := make([]*bayes.Chain, len(samples))
	for i, s := range samples {
		chains[i] = bayes.ChainFromSamples(i, s, names)
	}

	rep := &Report{
		RunID:      runID,
		Experiment: exp,
		Posterior:  bayes.NewPosterior(chains, names, cfg.Inference.MaxRHat),
		Timings:    make(map[string]time.Duration),
	}
	if rep.Dataset, err = p.Store.LoadDataset(runID); err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}
	if rep.Truth, _, err = p.Store.LoadTrajectory(runID); err != nil {
		return nil, &StageError{Stage: StageSetup, Err: err}
	}

	if err := p.stage(ctx, StageDensity, rep, func(ctx context.Context, rep *Report) (err error) {
		rep.Densities, err = EstimateDensities(ctx, exp, rep.Posterior)
		return err
	}); err != nil {
		return rep, err
	}
	if err := p.stage(ctx, StageExpect, rep, func(ctx context.Context, rep *Report) (err error) {
		rep.Expectations, err = Expect(ctx, exp, p.Registry, rep.Densities, p.Logger)
		return err
	}); err != nil {
		return rep, err
	}
	rep.Warnings = collectWarnings(rep)

	run, err := p.Store.Open(runID)
	if err != nil {
		return rep, &StageError{Stage: StagePersist, Err: err}
	}
	if err := run.WriteExpectations(rep.ExpectationRecords()); err != nil {
		return rep, &StageError{Stage: StagePersist, Err: err}
	}
	return rep, nil
}

func (p *Pipeline) persist(rep *Report, elapsed time.Duration) error {
	exp := rep.Experiment
	run, err := p.Store.Create(exp.Info.Name)
	if err != nil {
		return err
	}
	rep.RunID = run.ID

	if err := run.WriteConfig(exp.Config); err != nil {
		return err
	}
	if rep.Truth != nil {
		if err := run.WriteTrajectory(rep.Truth, exp.Problem.StateNames); err != nil {
			return err
		}
	}
	if rep.Dataset != nil {
		if err := run.WriteDataset(rep.Dataset); err != nil {
			return err
		}
	}
	if rep.Posterior != nil {
		chains := make([]mat.Matrix, len(rep.Posterior.Chains))
		for i, c := range rep.Posterior.Chains {
			chains[i] = c.Samples
		}
		if err := run.WriteChains(rep.Posterior.Names, chains); err != nil {
			return err
		}
	}
	if rep.Expectations != nil {
		if err := run.WriteExpectations(rep.ExpectationRecords()); err != nil {
			return err
		}
	}

	meta := &storage.RunMetadata{
		Model:      exp.Info.Name,
		Timestamp:  time.Now(),
		Seed:       exp.Config.Seed,
		Dt:         exp.SolverConfig.Dt,
		Duration:   exp.Problem.Span.Duration(),
		Integrator: exp.Config.Integrator,
		Stages:     rep.Stages,
		Warnings:   rep.Warnings,
		ElapsedMS:  float64(elapsed) / float64(time.Millisecond),
	}
	if rep.Posterior != nil {
		meta.Chains = len(rep.Posterior.Chains)
		meta.Samples = rep.Posterior.Len()
		meta.Converged = rep.Posterior.Converged()
		meta.Summary = rep.Summary()
	}
	return run.WriteMetadata(meta)
}

// Summary is the stored form of the posterior marginals, with the true
// parameter values alongside. It is nil before inference.
func (rep *Report) Summary() []storage.ParamSummary {
	if rep.Posterior == nil {
		return nil
	}
	truth := rep.Experiment.Problem.Params
	sum := rep.Posterior.Summary()
	out := make([]storage.ParamSummary, len(sum))
	for i, s := range sum {
		out[i] = storage.ParamSummary{
			Name: s.Name, Mean: s.Mean, StdDev: s.StdDev,
			Q025: s.Q025, Q50: s.Q50, Q975: s.Q975,
			ESS: s.ESS, RHat: s.RHat,
		}
		switch {
		case i < len(truth):
			out[i].Truth = truth[i]
		case s.Name == bayes.NoiseName:
			out[i].Truth = rep.Experiment.Config.Data.Sigma
		}
	}
	return out
}

func (rep *Report) ExpectationRecords() []storage.ExpectationRecord {
	out := make([]storage.ExpectationRecord, len(rep.Expectations))
	for i, e := range rep.Expectations {
		r := e.Result
		out[i] = storage.ExpectationRecord{
			Observable:  r.Observable,
			Value:       r.Value,
			Truth:       e.Truth,
			Residual:    r.Residual,
			Evaluations: r.Evaluations,
			Order:       r.Order,
			Converged:   r.Converged,
			Method:      r.Method,
			Assumption:  r.Assumption,
			Backend:     r.Backend,
			ElapsedMS:   float64(r.Elapsed) / float64(time.Millisecond),
		}
	}
	return out
}
