package models

import (
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// ExponentialDecay is dx/dt = -k x, one state and one rate parameter.
type ExponentialDecay struct{}

func NewExponentialDecay() *ExponentialDecay { return &ExponentialDecay{} }

func (ExponentialDecay) StateDim() int        { return 1 }
func (ExponentialDecay) ParamDim() int        { return 1 }
func (ExponentialDecay) StateNames() []string { return []string{"x"} }
func (ExponentialDecay) ParamNames() []string { return []string{"k"} }

func (ExponentialDecay) Derive(s dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	return dynamo.State{-p[0] * s[0]}
}

func (e ExponentialDecay) Describe() ModelInfo {
	return ModelInfo{
		Name:          "decay",
		Description:   "first-order exponential decay",
		StateNames:    e.StateNames(),
		ParamNames:    e.ParamNames(),
		DefaultParams: dynamo.Params{0.5},
		DefaultU0:     dynamo.State{10.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 5},
	}
}

// Exact is the closed-form solution x0·exp(-k(t-t0)).
func (ExponentialDecay) Exact(x0 dynamo.State, p dynamo.Params, t0, t float64) dynamo.State {
	return dynamo.State{x0[0] * math.Exp(-p[0]*(t-t0))}
}
