package models

import "github.com/san-kum/bayesode/internal/dynamo"

type Rossler struct{}

func NewRossler() *Rossler { return &Rossler{} }

func (Rossler) StateDim() int        { return 3 }
func (Rossler) ParamDim() int        { return 3 }
func (Rossler) StateNames() []string { return []string{"x", "y", "z"} }
func (Rossler) ParamNames() []string { return []string{"a", "b", "c"} }

// Derive calculates the Rossler attractor derivatives.
func (Rossler) Derive(s dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	a, b, c := p[0], p[1], p[2]
	return dynamo.State{-s[1] - s[2], s[0] + a*s[1], b + s[2]*(s[0]-c)}
}

func (r Rossler) Describe() ModelInfo {
	return ModelInfo{
		Name:          "rossler",
		Description:   "Rossler attractor",
		StateNames:    r.StateNames(),
		ParamNames:    r.ParamNames(),
		DefaultParams: dynamo.Params{0.2, 0.2, 5.7},
		DefaultU0:     dynamo.State{1.0, 1.0, 1.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 10},
	}
}
