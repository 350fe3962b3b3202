package integrators

import "github.com/san-kum/bayesode/internal/dynamo"

// Verlet is velocity Verlet for second-order systems: the state holds n
// positions followed by their n velocities. Velocity-dependent forces are
// evaluated at the start-of-step velocity, so the method stays second order
// only for conservative systems.
type Verlet struct {
	scratch dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Name() string    { return "verlet" }
func (v *Verlet) Stages() int     { return 2 }
func (v *Verlet) BatchSafe() bool { return true }

// Supports reports whether sys has the position/velocity layout Verlet needs.
func (v *Verlet) Supports(sys dynamo.System) bool {
	so, ok := sys.(dynamo.SecondOrder)
	return ok && 2*so.Positions() == sys.StateDim()
}

func (v *Verlet) Step(sys dynamo.System, x dynamo.State, p dynamo.Params, t, dt float64) dynamo.State {
	n := len(x)
	half := n / 2
	if len(v.scratch) != n {
		v.scratch = make(dynamo.State, n)
	}

	result := make(dynamo.State, n)
	dx := sys.Derive(x, p, t)
	dt2 := dt * dt
	for i := 0; i < half; i++ {
		result[i] = x[i] + x[half+i]*dt + 0.5*dx[half+i]*dt2
		v.scratch[i] = result[i]
		v.scratch[half+i] = x[half+i]
	}

	// Derive may reuse its output buffer.
	acc := append(dynamo.State(nil), dx[half:]...)
	dxNew := sys.Derive(v.scratch, p, t+dt)
	for i := 0; i < half; i++ {
		result[half+i] = x[half+i] + 0.5*dt*(acc[i]+dxNew[half+i])
	}
	return result
}
