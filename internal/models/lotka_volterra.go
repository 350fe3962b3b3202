package models

import (
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// LotkaVolterra is the predator-prey system.
// State: [x, y] (prey, predator)
// Params: [α, β, γ, δ]
//
//	dx/dt = αx - βxy
//	dy/dt = -γy + δxy
type LotkaVolterra struct{}

func NewLotkaVolterra() *LotkaVolterra { return &LotkaVolterra{} }

func (LotkaVolterra) StateDim() int        { return 2 }
func (LotkaVolterra) ParamDim() int        { return 4 }
func (LotkaVolterra) StateNames() []string { return []string{"prey", "predator"} }
func (LotkaVolterra) ParamNames() []string { return []string{"alpha", "beta", "gamma", "delta"} }

func (LotkaVolterra) Derive(s dynamo.State, p dynamo.Params, _ float64) dynamo.State {
	x, y := s[0], s[1]
	return dynamo.State{
		p[0]*x - p[1]*x*y,
		-p[2]*y + p[3]*x*y,
	}
}

func (l LotkaVolterra) Describe() ModelInfo {
	return ModelInfo{
		Name:          "lotka_volterra",
		Description:   "predator-prey population dynamics",
		StateNames:    l.StateNames(),
		ParamNames:    l.ParamNames(),
		DefaultParams: dynamo.Params{1.5, 1.0, 3.0, 1.0},
		DefaultU0:     dynamo.State{1.0, 1.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 10},
	}
}

// Invariant returns the conserved quantity
// V = δx - γ ln x + βy - α ln y, constant along exact trajectories.
func (LotkaVolterra) Invariant(s dynamo.State, p dynamo.Params) float64 {
	return p[3]*s[0] - p[2]*math.Log(s[0]) + p[1]*s[1] - p[0]*math.Log(s[1])
}
