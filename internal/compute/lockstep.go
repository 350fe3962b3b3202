package compute

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/sim"
)

// LockstepBackend advances every lane of an ensemble on one shared fixed
// grid. Lane i is row i of a state matrix; each grid step updates all rows
// before moving on.
type LockstepBackend struct {
	minChunk int
}

func NewLockstepBackend() *LockstepBackend {
	return &LockstepBackend{minChunk: 32}
}

func (l *LockstepBackend) Name() string    { return "lockstep" }
func (l *LockstepBackend) Available() bool { return true }
func (l *LockstepBackend) Cleanup()        {}

// integratorPool recycles integrators across chunks; each one carries its
// own scratch buffers and is used by one goroutine at a time.
type integratorPool struct {
	pool sync.Pool
}

func newIntegratorPool(newInteg IntegratorFactory) *integratorPool {
	return &integratorPool{pool: sync.Pool{New: func() any { return newInteg() }}}
}

func (p *integratorPool) Get() dynamo.Integrator  { return p.pool.Get().(dynamo.Integrator) }
func (p *integratorPool) Put(i dynamo.Integrator) { p.pool.Put(i) }

func (l *LockstepBackend) SolveMany(ctx context.Context, base *dynamo.Problem, params []dynamo.Params, cfg dynamo.Config, newInteg IntegratorFactory) ([]*dynamo.Trajectory, error) {
	probe := newInteg()
	if cfg.Adaptive {
		return nil, fmt.Errorf("%w: adaptive stepping picks a different grid per lane", ErrNotBatchSafe)
	}
	if !dynamo.IsBatchSafe(probe) {
		return nil, fmt.Errorf("%w: %s", ErrNotBatchSafe, probe.Name())
	}
	if cfg.Dt <= 0 || math.IsNaN(cfg.Dt) {
		return nil, fmt.Errorf("compute: dt must be positive, got %g", cfg.Dt)
	}
	if err := base.ValidateSaveAt(cfg.SaveAt); err != nil {
		return nil, err
	}
	lanes := len(params)
	if lanes == 0 {
		return nil, nil
	}

	dim := base.System.StateDim()
	pdim := base.System.ParamDim()
	P := mat.NewDense(lanes, pdim, nil)
	for i, p := range params {
		if len(p) != pdim {
			return nil, &dynamo.PointError{Index: i, Params: p.Clone(),
				Err: fmt.Errorf("%w: %d parameters, system expects %d", dynamo.ErrDimensionMismatch, len(p), pdim)}
		}
		P.SetRow(i, p)
	}

	grid := sim.StepGrid(base.Span, cfg.Dt, cfg.SaveAt)
	steps := len(grid) - 1
	if budget := sim.MaxSteps(cfg); steps > budget {
		return nil, fmt.Errorf("%w: fixed grid needs %d steps, budget is %d", dynamo.ErrMaxSteps, steps, budget)
	}

	X := mat.NewDense(lanes, dim, nil)
	for i := 0; i < lanes; i++ {
		X.SetRow(i, base.U0)
	}

	out := make([]*dynamo.Trajectory, lanes)
	for i := range out {
		out[i] = &dynamo.Trajectory{
			Params: dynamo.Params(P.RawRowView(i)).Clone(),
			Stats:  dynamo.SolveStats{Steps: steps, FuncEvals: steps * probe.Stages()},
		}
	}
	record := l.recorder(base, cfg.SaveAt, X, out)
	record(grid[0])

	pool := newIntegratorPool(newInteg)
	pool.Put(probe)
	failures := make([]error, lanes)

	for k := 1; k <= steps; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
		}
		t, h := grid[k-1], grid[k]-grid[k-1]

		dynamo.ParallelFor(lanes, l.minChunk, func(start, end int) {
			integ := pool.Get()
			defer pool.Put(integ)
			for i := start; i < end; i++ {
				if failures[i] != nil {
					continue
				}
				p := dynamo.Params(P.RawRowView(i))
				x := integ.Step(base.System, dynamo.State(X.RawRowView(i)), p, t, h)
				if cfg.ValidateState && !x.IsValid() {
					failures[i] = &dynamo.SimulationError{Step: k, Time: grid[k], State: x, Params: p.Clone(), Wrapped: dynamo.ErrUnstable}
					continue
				}
				X.SetRow(i, x)
			}
		})

		for i, err := range failures {
			if err != nil {
				return nil, &dynamo.PointError{Index: i, Params: out[i].Params, Err: err}
			}
		}
		record(grid[k])
	}
	return out, nil
}

// recorder copies the state matrix into the trajectories at every grid
// point, or only at the save times when they are set.
func (l *LockstepBackend) recorder(base *dynamo.Problem, saveAt []float64, X *mat.Dense, out []*dynamo.Trajectory) func(t float64) {
	eps := sim.TimeEpsilon(base.Span)
	next := 0
	snapshot := func(t float64) {
		for i, tr := range out {
			tr.Times = append(tr.Times, t)
			tr.States = append(tr.States, dynamo.State(X.RawRowView(i)).Clone())
		}
	}
	return func(t float64) {
		if len(saveAt) == 0 {
			snapshot(t)
			return
		}
		for next < len(saveAt) && math.Abs(saveAt[next]-t) <= eps {
			snapshot(saveAt[next])
			next++
		}
	}
}
