// Package dynamo provides core primitives for parameterised ODE problems.
//
// The package defines the fundamental types shared by every stage of the
// inference pipeline:
//
//   - [State]: vector representing system state
//   - [Params]: ordered parameter vector (rate constants)
//   - [System]: interface for ODE systems (dX/dt = f(X, p, t))
//   - [Problem]: a system together with its initial state, time span and parameters
//   - [Trajectory]: the (time, state) samples produced by solving a [Problem]
//
// # Example
//
//	prob, err := dynamo.NewProblem(models.NewLotkaVolterra(), u0, span, p)
//	traj, err := sim.New(integrators.NewRK45()).Solve(ctx, prob, cfg)
//
// # Thread Safety
//
// Problems and trajectories are read-only once built. Use [Problem.Remake]
// to obtain an independent copy with a different parameter vector before
// handing it to another goroutine.
package dynamo
