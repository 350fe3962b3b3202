package models

import (
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Pendulum is a damped rigid pendulum. Params are the damping rate b and
// the gravity-to-length ratio g/L.
type Pendulum struct{}

func NewPendulum() *Pendulum { return &Pendulum{} }

func (Pendulum) StateDim() int        { return 2 }
func (Pendulum) ParamDim() int        { return 2 }
func (Pendulum) Positions() int       { return 1 }
func (Pendulum) StateNames() []string { return []string{"theta", "omega"} }
func (Pendulum) ParamNames() []string { return []string{"b", "g_over_l"} }

func (Pendulum) Derive(x dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	theta, omega := x[0], x[1]
	return dynamo.State{omega, -p[0]*omega - p[1]*math.Sin(theta)}
}

// Energy is the mechanical energy per unit m·L².
func (Pendulum) Energy(x dynamo.State, p dynamo.Params) float64 {
	return 0.5*x[1]*x[1] + p[1]*(1-math.Cos(x[0]))
}

func (m Pendulum) Describe() ModelInfo {
	return ModelInfo{
		Name:          "pendulum",
		Description:   "damped pendulum",
		StateNames:    m.StateNames(),
		ParamNames:    m.ParamNames(),
		DefaultParams: dynamo.Params{0.1, 9.81},
		DefaultU0:     dynamo.State{0.5, 0.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 10},
	}
}
