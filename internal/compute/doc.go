// Package compute runs ensembles of ODE solves that differ only in their
// parameter vector.
//
// Three backends are provided:
//
//   - cpu: a bounded worker pool, one integrator per worker
//   - lockstep: all lanes share one fixed time grid and advance together in
//     a single state matrix, the way accelerator ensembles are laid out
//   - gpu: reports itself unavailable in pure-Go builds and degrades to cpu
//
// Every backend returns trajectories in parameter order, and lockstep
// results equal sequential solves bit for bit:
//
//	backend := compute.AutoSelectBackend(integrators.NewRK4(), cfg, logger)
//	trajs, err := backend.SolveMany(ctx, prob, points, cfg, factory)
package compute
