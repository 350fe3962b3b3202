package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Ensemble solves many independent problems concurrently. Every member gets
// its own integrator from the factory, so no scratch state is shared.
type Ensemble struct {
	newIntegrator func() dynamo.Integrator
	workers       int
}

func NewEnsemble(newIntegrator func() dynamo.Integrator, workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Ensemble{newIntegrator: newIntegrator, workers: workers}
}

func (e *Ensemble) Workers() int { return e.workers }

// Solve returns trajectories in the order of probs. The first failing member
// cancels the rest; its error is a *dynamo.PointError.
func (e *Ensemble) Solve(ctx context.Context, probs []*dynamo.Problem, cfg dynamo.Config) ([]*dynamo.Trajectory, error) {
	results := make([]*dynamo.Trajectory, len(probs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, prob := range probs {
		g.Go(func() error {
			s := New(e.newIntegrator())
			traj, err := s.Solve(gctx, prob, cfg)
			if err != nil {
				return &dynamo.PointError{Index: i, Params: prob.Params.Clone(), Err: err}
			}
			results[i] = traj
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
