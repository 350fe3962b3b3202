package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/pipeline"
	"github.com/san-kum/bayesode/internal/storage"
)

// Sweepable fields of a configuration.
const (
	FieldSigma   = "sigma"
	FieldPoints  = "points"
	FieldSeed    = "seed"
	FieldSamples = "samples"
)

func Fields() []string { return []string{FieldSigma, FieldPoints, FieldSeed, FieldSamples} }

// Sweep repeats a run with one field set to each of Values in turn.
type Sweep struct {
	Base   *config.Config
	Field  string
	Values []float64
	// Metrics receives the stage timers of every run. A fresh registry is
	// used when nil.
	Metrics gometrics.Registry
}

// SweepResult holds the posterior and expectation summary of one run.
type SweepResult struct {
	Value  float64
	RunID  string
	Names  []string
	Mean   []float64
	StdDev []float64
	// Expectations are the estimated values, in observable order.
	Expectations []float64
	Converged    bool
	Warnings     int
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func (sw *Sweep) apply(v float64) (*config.Config, error) {
	cfg := sw.Base.Clone()
	integral := func() (int, error) {
		if v != math.Trunc(v) || v < 0 {
			return 0, fmt.Errorf("automation: %s needs non-negative integers, got %g", sw.Field, v)
		}
		return int(v), nil
	}
	switch sw.Field {
	case FieldSigma:
		cfg.Data.Sigma = v
	case FieldPoints:
		n, err := integral()
		if err != nil {
			return nil, err
		}
		cfg.Data.Points = n
	case FieldSeed:
		n, err := integral()
		if err != nil {
			return nil, err
		}
		cfg.Seed = uint64(n)
	case FieldSamples:
		n, err := integral()
		if err != nil {
			return nil, err
		}
		cfg.Inference.Samples = n
	default:
		return nil, fmt.Errorf("automation: cannot sweep %q (have %v)", sw.Field, Fields())
	}
	return cfg, cfg.Validate()
}

// RunSweep executes a sweep. All configurations are checked before the
// first run starts.
func RunSweep(ctx context.Context, sw *Sweep, reg *experiment.Registry, store *storage.Store, logger *slog.Logger) ([]SweepResult, error) {
	if !slices.Contains(Fields(), sw.Field) {
		return nil, fmt.Errorf("automation: cannot sweep %q (have %v)", sw.Field, Fields())
	}
	cfgs := make([]*config.Config, len(sw.Values))
	for i, v := range sw.Values {
		cfg, err := sw.apply(v)
		if err != nil {
			return nil, err
		}
		cfgs[i] = cfg
	}

	logger = logging.OrDiscard(logger)
	if sw.Metrics == nil {
		sw.Metrics = gometrics.NewRegistry()
	}
	defer func() {
		for _, stage := range pipeline.Stages() {
			t := pipeline.StageTimer(sw.Metrics, stage).Snapshot()
			if t.Count() > 0 {
				logger.Info("sweep stage timing", "stage", stage, "runs", t.Count(), "mean_ms", t.Mean()/1e6, "max_ms", float64(t.Max())/1e6)
			}
		}
	}()

	results := make([]SweepResult, 0, len(sw.Values))
	for i, cfg := range cfgs {
		logger.Info("sweep", "field", sw.Field, "value", sw.Values[i], "run", i+1, "of", len(cfgs))
		p := pipeline.New(cfg, reg, store, logger)
		p.Metrics = sw.Metrics
		rep, err := p.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sw.Field, sw.Values[i], err)
		}

		res := SweepResult{
			Value:     sw.Values[i],
			RunID:     rep.RunID,
			Converged: rep.Posterior.Converged(),
			Warnings:  len(rep.Warnings),
		}
		for _, s := range rep.Posterior.Summary() {
			res.Names = append(res.Names, s.Name)
			res.Mean = append(res.Mean, s.Mean)
			res.StdDev = append(res.StdDev, s.StdDev)
		}
		for _, e := range rep.Expectations {
			res.Expectations = append(res.Expectations, e.Result.Value)
		}
		results = append(results, res)
	}
	return results, nil
}
