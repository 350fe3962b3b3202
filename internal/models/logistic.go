package models

import (
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Logistic is bounded growth dx/dt = r x (1 - x/K).
type Logistic struct{}

func NewLogistic() *Logistic { return &Logistic{} }

func (Logistic) StateDim() int        { return 1 }
func (Logistic) ParamDim() int        { return 2 }
func (Logistic) StateNames() []string { return []string{"n"} }
func (Logistic) ParamNames() []string { return []string{"r", "K"} }

func (Logistic) Derive(s dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	return dynamo.State{p[0] * s[0] * (1 - s[0]/p[1])}
}

func (l Logistic) Describe() ModelInfo {
	return ModelInfo{
		Name:          "logistic",
		Description:   "logistic population growth",
		StateNames:    l.StateNames(),
		ParamNames:    l.ParamNames(),
		DefaultParams: dynamo.Params{0.8, 50},
		DefaultU0:     dynamo.State{2},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 15},
	}
}

func (Logistic) Exact(x0 dynamo.State, p dynamo.Params, t0, t float64) dynamo.State {
	r, k := p[0], p[1]
	e := math.Exp(r * (t - t0))
	return dynamo.State{k * x0[0] * e / (k + x0[0]*(e-1))}
}
