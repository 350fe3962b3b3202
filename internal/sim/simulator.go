// Package sim is the ODE integration engine: it drives an integrator across
// a problem's time span and records the trajectory on the requested grid.
package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

type Simulator struct {
	integrator dynamo.Integrator
}

// New returns a simulator bound to integ. Integrators keep scratch buffers,
// so a Simulator must not be used by more than one goroutine at a time.
func New(integ dynamo.Integrator) *Simulator {
	return &Simulator{integrator: integ}
}

func (s *Simulator) Integrator() dynamo.Integrator { return s.integrator }

// Solve integrates prob over its span. The result is deterministic for
// identical inputs. When cfg.SaveAt is set, steps are clipped so that every
// save time is hit exactly and the trajectory's grid equals cfg.SaveAt.
func (s *Simulator) Solve(ctx context.Context, prob *dynamo.Problem, cfg dynamo.Config) (*dynamo.Trajectory, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := prob.ValidateSaveAt(cfg.SaveAt); err != nil {
		return nil, err
	}
	if cfg.Adaptive {
		return s.solveAdaptive(ctx, prob, cfg)
	}
	return s.solveFixed(ctx, prob, cfg)
}

func (s *Simulator) validateConfig(cfg dynamo.Config) error {
	if s.integrator == nil {
		return fmt.Errorf("sim: no integrator")
	}
	if cfg.Dt <= 0 || math.IsNaN(cfg.Dt) {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	return nil
}

func (s *Simulator) solveFixed(ctx context.Context, prob *dynamo.Problem, cfg dynamo.Config) (*dynamo.Trajectory, error) {
	grid := StepGrid(prob.Span, cfg.Dt, cfg.SaveAt)
	if budget := MaxSteps(cfg); len(grid)-1 > budget {
		return nil, fmt.Errorf("%w: fixed grid needs %d steps, budget is %d", dynamo.ErrMaxSteps, len(grid)-1, budget)
	}

	rec := newRecorder(prob, cfg.SaveAt, len(grid))
	x := prob.U0.Clone()
	rec.observe(grid[0], x)

	for i := 1; i < len(grid); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
		}
		t := grid[i-1]
		newX := s.integrator.Step(prob.System, x, prob.Params, t, grid[i]-t)
		rec.traj.Stats.Steps++
		rec.traj.Stats.FuncEvals += s.integrator.Stages()

		if cfg.ValidateState && !newX.IsValid() {
			return nil, &dynamo.SimulationError{Step: i, Time: grid[i], State: newX, Params: prob.Params.Clone(), Wrapped: dynamo.ErrUnstable}
		}
		x = newX
		rec.observe(grid[i], x)
	}

	return rec.traj, nil
}

func (s *Simulator) solveAdaptive(ctx context.Context, prob *dynamo.Problem, cfg dynamo.Config) (*dynamo.Trajectory, error) {
	rec := newRecorder(prob, cfg.SaveAt, 0)
	end := prob.Span.End
	eps := TimeEpsilon(prob.Span)
	budget := MaxSteps(cfg)

	x := prob.U0.Clone()
	t := prob.Span.Start
	dt := cfg.Dt
	if cfg.MaxDt > 0 {
		dt = math.Min(dt, cfg.MaxDt)
	}
	rec.observe(t, x)

	attempts := 0
	for end-t > eps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
		}
		attempts++
		if attempts > budget {
			return nil, &dynamo.SimulationError{Step: rec.traj.Stats.Steps, Time: t, State: x, Params: prob.Params.Clone(), Wrapped: dynamo.ErrMaxSteps}
		}

		target, clipped := nextTarget(t, dt, end, rec.pending(), eps)
		h := target - t

		newX, dtNext, ok := s.adaptiveStep(prob, x, t, h, cfg)
		rec.traj.Stats.FuncEvals += s.integrator.Stages()
		if !ok {
			rec.traj.Stats.Rejected++
			if dtNext < cfg.MinDt {
				return nil, &dynamo.SimulationError{Step: rec.traj.Stats.Steps, Time: t, State: x, Params: prob.Params.Clone(), Wrapped: dynamo.ErrStepTooSmall}
			}
			dt = dtNext
			continue
		}

		if cfg.ValidateState && !newX.IsValid() {
			return nil, &dynamo.SimulationError{Step: rec.traj.Stats.Steps, Time: target, State: newX, Params: prob.Params.Clone(), Wrapped: dynamo.ErrUnstable}
		}

		x = newX
		t = target
		rec.traj.Stats.Steps++
		rec.observe(t, x)

		if !clipped {
			dt = dtNext
		}
		if cfg.MaxDt > 0 {
			dt = math.Min(dt, cfg.MaxDt)
		}
	}

	return rec.traj, nil
}

// adaptiveStep uses the integrator's embedded error estimate when it has
// one and falls back to step doubling otherwise.
func (s *Simulator) adaptiveStep(prob *dynamo.Problem, x dynamo.State, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, bool) {
	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		return adaptive.StepAdaptive(prob.System, x, prob.Params, t, dt, cfg.Tolerance, cfg.AbsTolerance)
	}

	x1 := s.integrator.Step(prob.System, x, prob.Params, t, dt)
	xHalf := s.integrator.Step(prob.System, x, prob.Params, t, dt/2)
	x2 := s.integrator.Step(prob.System, xHalf, prob.Params, t+dt/2, dt/2)

	scale := cfg.AbsTolerance + cfg.Tolerance*x2.Norm()
	err := x1.Sub(x2).Norm() / scale

	if err > 1 || math.IsNaN(err) {
		return x2, dt / 2, false
	}
	if err < 0.1 {
		return x2, dt * 2, true
	}
	return x2, dt, true
}

// StepGrid returns the time points visited by a fixed-step solve: steps of
// dt from span.Start, clipped so that every save time and span.End land on
// the grid exactly.
func StepGrid(span dynamo.TimeSpan, dt float64, saveAt []float64) []float64 {
	eps := TimeEpsilon(span)
	grid := []float64{span.Start}
	t := span.Start
	k := 0
	for k < len(saveAt) && saveAt[k] <= t+eps {
		k++
	}
	for span.End-t > eps {
		next, _ := nextTarget(t, dt, span.End, saveAt[k:], eps)
		t = next
		grid = append(grid, t)
		for k < len(saveAt) && saveAt[k] <= t+eps {
			k++
		}
	}
	return grid
}

// nextTarget picks the end of the next step: t+dt unless a pending save
// time or the span end comes first (or is within eps of it).
func nextTarget(t, dt, end float64, pending []float64, eps float64) (float64, bool) {
	target := t + dt
	limit := end
	if len(pending) > 0 && pending[0] < limit {
		limit = pending[0]
	}
	if target >= limit-eps {
		return limit, true
	}
	return target, false
}

// TimeEpsilon is the tolerance under which two times in span are the same.
func TimeEpsilon(span dynamo.TimeSpan) float64 {
	return 1e-12 * math.Max(1, math.Max(math.Abs(span.Start), math.Abs(span.End)))
}

// MaxSteps is the step budget of cfg, falling back to the default budget
// when cfg leaves it unset.
func MaxSteps(cfg dynamo.Config) int {
	if cfg.MaxSteps > 0 {
		return cfg.MaxSteps
	}
	return dynamo.DefaultConfig().MaxSteps
}

// recorder keeps either every step or only the requested save times.
type recorder struct {
	traj   *dynamo.Trajectory
	saveAt []float64
	next   int
	eps    float64
}

func newRecorder(prob *dynamo.Problem, saveAt []float64, hint int) *recorder {
	n := hint
	if len(saveAt) > 0 {
		n = len(saveAt)
	}
	return &recorder{
		traj: &dynamo.Trajectory{
			Times:  make([]float64, 0, n),
			States: make([]dynamo.State, 0, n),
			Params: prob.Params.Clone(),
		},
		saveAt: saveAt,
		eps:    TimeEpsilon(prob.Span),
	}
}

func (r *recorder) pending() []float64 {
	return r.saveAt[r.next:]
}

func (r *recorder) observe(t float64, x dynamo.State) {
	if len(r.saveAt) == 0 {
		r.traj.Times = append(r.traj.Times, t)
		r.traj.States = append(r.traj.States, x.Clone())
		return
	}
	for r.next < len(r.saveAt) && math.Abs(r.saveAt[r.next]-t) <= r.eps {
		r.traj.Times = append(r.traj.Times, r.saveAt[r.next])
		r.traj.States = append(r.traj.States, x.Clone())
		r.next++
	}
}
