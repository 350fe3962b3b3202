package models

import "github.com/san-kum/bayesode/internal/dynamo"

type Lorenz struct{}

func NewLorenz() *Lorenz { return &Lorenz{} }

func (Lorenz) StateDim() int        { return 3 }
func (Lorenz) ParamDim() int        { return 3 }
func (Lorenz) StateNames() []string { return []string{"x", "y", "z"} }
func (Lorenz) ParamNames() []string { return []string{"sigma", "rho", "beta"} }

// Derive calculates the Lorenz attractor derivatives.
func (Lorenz) Derive(s dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	sigma, rho, beta := p[0], p[1], p[2]
	return dynamo.State{sigma * (s[1] - s[0]), s[0]*(rho-s[2]) - s[1], s[0]*s[1] - beta*s[2]}
}

func (l Lorenz) Describe() ModelInfo {
	return ModelInfo{
		Name:          "lorenz",
		Description:   "Lorenz convection system",
		StateNames:    l.StateNames(),
		ParamNames:    l.ParamNames(),
		DefaultParams: dynamo.Params{10.0, 28.0, 8.0 / 3.0},
		DefaultU0:     dynamo.State{1.0, 1.0, 1.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 2},
	}
}
