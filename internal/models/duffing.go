package models

import (
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Duffing is the forced nonlinear oscillator
// x'' + δx' + αx + βx³ = γcos(ωt).
type Duffing struct{}

func NewDuffing() *Duffing { return &Duffing{} }

func (Duffing) StateDim() int        { return 2 }
func (Duffing) ParamDim() int        { return 5 }
func (Duffing) Positions() int       { return 1 }
func (Duffing) StateNames() []string { return []string{"x", "v"} }
func (Duffing) ParamNames() []string { return []string{"delta", "alpha", "beta", "gamma", "omega"} }

func (Duffing) Derive(s dynamo.State, p dynamo.Params, t float64) dynamo.State {
	x, v := s[0], s[1]
	delta, alpha, beta, gamma, omega := p[0], p[1], p[2], p[3], p[4]
	return dynamo.State{v, -delta*v - alpha*x - beta*x*x*x + gamma*math.Cos(omega*t)}
}

func (d Duffing) Describe() ModelInfo {
	return ModelInfo{
		Name:          "duffing",
		Description:   "forced Duffing oscillator",
		StateNames:    d.StateNames(),
		ParamNames:    d.ParamNames(),
		DefaultParams: dynamo.Params{0.3, -1.0, 1.0, 0.5, 1.2},
		DefaultU0:     dynamo.State{1.0, 0.0},
		DefaultSpan:   dynamo.TimeSpan{Start: 0, End: 10},
	}
}
