package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/logging"
)

var (
	// ErrNotBatchSafe is returned by lockstep execution for integrators or
	// configs whose step sequence depends on the state.
	ErrNotBatchSafe = errors.New("compute: integrator is not safe for batched execution")

	ErrUnknownBackend = errors.New("compute: unknown backend")
)

// IntegratorFactory hands out a fresh integrator per call.
type IntegratorFactory func() dynamo.Integrator

type Backend interface {
	Name() string
	Available() bool
	SolveMany(ctx context.Context, base *dynamo.Problem, params []dynamo.Params, cfg dynamo.Config, newInteg IntegratorFactory) ([]*dynamo.Trajectory, error)
	Cleanup()
}

// Names lists the selectable backends.
func Names() []string { return []string{"auto", "cpu", "lockstep", "gpu"} }

// New returns the named backend. "auto" defers to AutoSelectBackend.
// A gpu request on a machine without one yields a backend that logs a
// warning and runs on the cpu.
func New(name string, integ dynamo.Integrator, cfg dynamo.Config, logger *slog.Logger) (Backend, error) {
	logger = logging.OrDiscard(logger)
	switch name {
	case "", "auto":
		return AutoSelectBackend(integ, cfg, logger), nil
	case "cpu":
		return NewCPUBackend(0), nil
	case "lockstep":
		return NewLockstepBackend(), nil
	case "gpu":
		return NewGPUBackend(logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// AutoSelectBackend picks gpu if available, else lockstep when integ and
// cfg allow it, else cpu.
func AutoSelectBackend(integ dynamo.Integrator, cfg dynamo.Config, logger *slog.Logger) Backend {
	if gpu := NewGPUBackend(logger); gpu.Available() {
		return gpu
	}
	if integ != nil && dynamo.IsBatchSafe(integ) && !cfg.Adaptive {
		return NewLockstepBackend()
	}
	return NewCPUBackend(0)
}

func remakeAll(base *dynamo.Problem, params []dynamo.Params) ([]*dynamo.Problem, error) {
	probs := make([]*dynamo.Problem, len(params))
	for i, p := range params {
		prob, err := base.Remake(p)
		if err != nil {
			return nil, &dynamo.PointError{Index: i, Params: p.Clone(), Err: err}
		}
		probs[i] = prob
	}
	return probs, nil
}
