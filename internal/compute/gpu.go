package compute

import (
	"context"
	"log/slog"
	"sync"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/logging"
)

// GPUBackend is the accelerator slot. Pure-Go builds have no device, so it
// reports itself unavailable and runs ensembles on the cpu backend after
// logging a single warning.
type GPUBackend struct {
	logger   *slog.Logger
	fallback Backend
	warn     sync.Once
}

func NewGPUBackend(logger *slog.Logger) *GPUBackend {
	return &GPUBackend{logger: logging.OrDiscard(logger), fallback: NewCPUBackend(0)}
}

func (g *GPUBackend) Name() string    { return "gpu (not available)" }
func (g *GPUBackend) Available() bool { return false }
func (g *GPUBackend) Cleanup()        { g.fallback.Cleanup() }

func (g *GPUBackend) SolveMany(ctx context.Context, base *dynamo.Problem, params []dynamo.Params, cfg dynamo.Config, newInteg IntegratorFactory) ([]*dynamo.Trajectory, error) {
	g.warn.Do(func() {
		g.logger.Warn("gpu backend not available, running ensemble on cpu", "fallback", g.fallback.Name())
	})
	return g.fallback.SolveMany(ctx, base, params, cfg, newInteg)
}
