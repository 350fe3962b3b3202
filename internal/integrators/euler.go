package integrators

import "github.com/san-kum/bayesode/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string    { return "euler" }
func (e *Euler) Stages() int     { return 1 }
func (e *Euler) BatchSafe() bool { return true }

func (e *Euler) Step(sys dynamo.System, x dynamo.State, p dynamo.Params, t float64, dt float64) dynamo.State {
	dx := sys.Derive(x, p, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
