package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/integrators"
)

func decayProblem(t *testing.T, k float64) *dynamo.Problem {
	t.Helper()
	sys := dynamo.Func{
		F:       func(x dynamo.State, p dynamo.Params, _ float64) dynamo.State { return dynamo.State{-p[0] * x[0]} },
		NStates: 1,
		NParams: 1,
	}
	prob, err := dynamo.NewProblem(sys, dynamo.State{1.0}, dynamo.TimeSpan{Start: 0, End: 1}, dynamo.Params{k})
	if err != nil {
		t.Fatalf("problem: %v", err)
	}
	return prob
}

func TestSolveFixedMatchesClosedForm(t *testing.T) {
	prob := decayProblem(t, 1.5)
	cfg := dynamo.DefaultConfig()
	cfg.Dt = 0.01

	traj, err := New(integrators.NewRK4()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	if len(traj.States) != 101 {
		t.Errorf("expected 101 states, got %d", len(traj.States))
	}
	if traj.Times[len(traj.Times)-1] != 1.0 {
		t.Errorf("last time %v, want exactly 1", traj.Times[len(traj.Times)-1])
	}
	for i, tm := range traj.Times {
		want := math.Exp(-1.5 * tm)
		if math.Abs(traj.States[i][0]-want) > 1e-8 {
			t.Fatalf("t=%v: got %v want %v", tm, traj.States[i][0], want)
		}
	}
	if traj.Stats.FuncEvals != 4*traj.Stats.Steps {
		t.Errorf("func evals %d for %d rk4 steps", traj.Stats.FuncEvals, traj.Stats.Steps)
	}
}

func TestSolveAdaptiveHitsSaveAt(t *testing.T) {
	prob := decayProblem(t, 2.0)
	saveAt := []float64{0, 0.125, 0.3, 0.77, 1.0}
	cfg := dynamo.DefaultConfig().WithSaveAt(saveAt)
	cfg.Adaptive = true
	cfg.Dt = 0.05
	cfg.Tolerance = 1e-8
	cfg.AbsTolerance = 1e-10

	traj, err := New(integrators.NewRK45()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	if len(traj.Times) != len(saveAt) {
		t.Fatalf("expected %d samples, got %d", len(saveAt), len(traj.Times))
	}
	for i, tm := range saveAt {
		if traj.Times[i] != tm {
			t.Errorf("sample %d at %v, want %v", i, traj.Times[i], tm)
		}
		want := math.Exp(-2 * tm)
		if math.Abs(traj.States[i][0]-want) > 1e-6 {
			t.Errorf("t=%v: got %v want %v", tm, traj.States[i][0], want)
		}
	}
}

func TestSolveStepDoublingFallback(t *testing.T) {
	prob := decayProblem(t, 1.0)
	cfg := dynamo.DefaultConfig()
	cfg.Adaptive = true
	cfg.Dt = 0.1
	cfg.Tolerance = 1e-8

	traj, err := New(integrators.NewRK4()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if got, want := traj.Final()[0], math.Exp(-1); math.Abs(got-want) > 1e-6 {
		t.Errorf("final %v, want %v", got, want)
	}
}

func TestSolveDeterministic(t *testing.T) {
	prob := decayProblem(t, 0.7)
	cfg := dynamo.DefaultConfig()
	cfg.Adaptive = true

	a, err := New(integrators.NewRK45()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(integrators.NewRK45()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Times) != len(b.Times) {
		t.Fatalf("lengths differ: %d vs %d", len(a.Times), len(b.Times))
	}
	for i := range a.States {
		if a.States[i][0] != b.States[i][0] || a.Times[i] != b.Times[i] {
			t.Fatalf("sample %d differs", i)
		}
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	prob := decayProblem(t, 1.0)
	s := New(integrators.NewRK4())

	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0}},
		{"negative dt", dynamo.Config{Dt: -0.1}},
		{"adaptive without tolerance", dynamo.Config{Dt: 0.1, Adaptive: true}},
		{"save time outside span", dynamo.Config{Dt: 0.1, SaveAt: []float64{0.5, 2}}},
		{"unsorted save times", dynamo.Config{Dt: 0.1, SaveAt: []float64{0.5, 0.2}}},
		{"step budget", dynamo.Config{Dt: 0.001, MaxSteps: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Solve(context.Background(), prob, tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSolveUnstableCarriesParams(t *testing.T) {
	sys := dynamo.Func{
		F:       func(x dynamo.State, p dynamo.Params, _ float64) dynamo.State { return dynamo.State{p[0] * x[0] * x[0]} },
		NStates: 1,
		NParams: 1,
	}
	prob, err := dynamo.NewProblem(sys, dynamo.State{1}, dynamo.TimeSpan{Start: 0, End: 5}, dynamo.Params{10})
	if err != nil {
		t.Fatal(err)
	}
	cfg := dynamo.DefaultConfig()
	cfg.Dt = 0.05

	_, err = New(integrators.NewRK4()).Solve(context.Background(), prob, cfg)
	if !errors.Is(err, dynamo.ErrUnstable) {
		t.Fatalf("expected ErrUnstable, got %v", err)
	}
	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected SimulationError, got %T", err)
	}
	if len(simErr.Params) != 1 || simErr.Params[0] != 10 {
		t.Errorf("error lost parameter point: %v", simErr.Params)
	}
}

func TestSolveCanceled(t *testing.T) {
	prob := decayProblem(t, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(integrators.NewRK4()).Solve(ctx, prob, dynamo.DefaultConfig())
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

func TestStepGrid(t *testing.T) {
	grid := StepGrid(dynamo.TimeSpan{Start: 0, End: 1}, 0.3, []float64{0.5})
	want := []float64{0, 0.3, 0.5, 0.8, 1}
	if len(grid) != len(want) {
		t.Fatalf("grid %v, want %v", grid, want)
	}
	for i := range want {
		if math.Abs(grid[i]-want[i]) > 1e-12 {
			t.Errorf("grid[%d] = %v, want %v", i, grid[i], want[i])
		}
	}
}

func TestEnsembleMatchesSequential(t *testing.T) {
	base := decayProblem(t, 1.0)
	cfg := dynamo.DefaultConfig().WithSaveAt([]float64{0, 0.5, 1})

	var probs []*dynamo.Problem
	for _, k := range []float64{0.1, 0.5, 1, 2, 4, 8} {
		p, err := base.Remake(dynamo.Params{k})
		if err != nil {
			t.Fatal(err)
		}
		probs = append(probs, p)
	}

	ens := NewEnsemble(func() dynamo.Integrator { return integrators.NewRK4() }, 3)
	got, err := ens.Solve(context.Background(), probs, cfg)
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}

	for i, p := range probs {
		want, err := New(integrators.NewRK4()).Solve(context.Background(), p, cfg)
		if err != nil {
			t.Fatal(err)
		}
		for j := range want.States {
			if got[i].States[j][0] != want.States[j][0] {
				t.Errorf("member %d sample %d: %v != %v", i, j, got[i].States[j][0], want.States[j][0])
			}
		}
	}
}
