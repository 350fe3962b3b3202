package models

import "github.com/san-kum/bayesode/internal/dynamo"

// VanDerPol implements the Van der Pol oscillator.
// State: [x, y] where y = dx/dt
// Equations:
//
//	dx/dt = y
//	dy/dt = μ(1 - x²)y - x
type VanDerPol struct{}

func NewVanDerPol() *VanDerPol { return &VanDerPol{} }

func (VanDerPol) StateDim() int        { return 2 }
func (VanDerPol) ParamDim() int        { return 1 }
func (VanDerPol) Positions() int       { return 1 }
func (VanDerPol) StateNames() []string { return []string{"x", "y"} }
func (VanDerPol) ParamNames() []string { return []string{"mu"} }

func (VanDerPol) Derive(state dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	x, y := state[0], state[1]
	return dynamo.State{y, p[0]*(1-x*x)*y - x}
}

func (v VanDerPol) Describe() ModelInfo {
	return ModelInfo{
		Name:          "vanderpol",
		Description:   "Van der Pol relaxation oscillator",
		StateNames:    v.StateNames(),
		ParamNames:    v.ParamNames(),
		DefaultParams: dynamo.Params{1.0},
		DefaultU0:     dynamo.State{2.0, 0.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 10},
	}
}
