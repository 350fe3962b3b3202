// Package optim finds maximum a posteriori points used to start Markov chains.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distmv"
)

var ErrNoFeasiblePoint = errors.New("optim: no feasible starting point")

type MAPResult struct {
	X       []float64
	LogProb float64
	Evals   int
	Status  optimize.Status
}

// MAPSettings bounds the Nelder-Mead search.
type MAPSettings struct {
	MaxEvaluations int
	MaxIterations  int
}

func DefaultMAPSettings() MAPSettings {
	return MAPSettings{MaxEvaluations: 4000, MaxIterations: 2000}
}

// MAP maximises target starting from start with Nelder-Mead. start must have
// finite log density. Hitting an evaluation or iteration limit is not an
// error: the best point found so far is returned.
func MAP(ctx context.Context, target distmv.LogProber, start []float64, s MAPSettings) (*MAPResult, error) {
	if lp := target.LogProb(start); math.IsInf(lp, -1) || math.IsNaN(lp) {
		return nil, fmt.Errorf("%w: log density at %v is %g", ErrNoFeasiblePoint, start, lp)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil {
				return math.Inf(1)
			}
			lp := target.LogProb(x)
			if math.IsNaN(lp) {
				return math.Inf(1)
			}
			return -lp
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: s.MaxEvaluations,
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if res == nil {
		return nil, fmt.Errorf("optim: %w", err)
	}
	if math.IsInf(res.F, 1) {
		return nil, fmt.Errorf("%w: optimiser left the support", ErrNoFeasiblePoint)
	}
	return &MAPResult{
		X:       res.X,
		LogProb: -res.F,
		Evals:   res.FuncEvaluations,
		Status:  res.Status,
	}, nil
}
