package compute

import (
	"context"
	"runtime"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/sim"
)

type CPUBackend struct {
	workers int
}

// NewCPUBackend returns a pool of workers goroutines; workers <= 0 uses
// one per CPU.
func NewCPUBackend(workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPUBackend{workers: workers}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}
func (c *CPUBackend) Workers() int    { return c.workers }

func (c *CPUBackend) SolveMany(ctx context.Context, base *dynamo.Problem, params []dynamo.Params, cfg dynamo.Config, newInteg IntegratorFactory) ([]*dynamo.Trajectory, error) {
	probs, err := remakeAll(base, params)
	if err != nil {
		return nil, err
	}
	return sim.NewEnsemble(newInteg, c.workers).Solve(ctx, probs, cfg)
}
