package koopman

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/integrators"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/metrics"
	"github.com/san-kum/bayesode/internal/models"
	"github.com/san-kum/bayesode/internal/sim"
)

// uniform is a flat density on [a, b].
type uniform struct{ a, b float64 }

func (u uniform) Prob(x float64) float64 {
	if x < u.a || x > u.b {
		return 0
	}
	return 1 / (u.b - u.a)
}

func (u uniform) LogProb(x float64) float64 { return math.Log(u.Prob(x)) }

func (u uniform) CDF(x float64) float64 {
	return math.Min(1, math.Max(0, (x-u.a)/(u.b-u.a)))
}

func (u uniform) Rand(rng *rand.Rand) float64 { return u.a + (u.b-u.a)*rng.Float64() }
func (u uniform) Mean() float64               { return (u.a + u.b) / 2 }
func (u uniform) StdDev() float64             { return (u.b - u.a) / math.Sqrt(12) }
func (u uniform) Support() (float64, float64) { return u.a, u.b }
func (u uniform) PointMass() bool             { return false }

func rk4() dynamo.Integrator { return integrators.NewRK4() }

func decayRequest(t *testing.T, obs metrics.Observable, k kde.Univariate) Request {
	t.Helper()
	prob, err := models.DefaultProblem(models.NewExponentialDecay())
	if err != nil {
		t.Fatal(err)
	}
	return Request{
		Observable:   obs,
		Problem:      prob,
		Densities:    []kde.Univariate{k},
		SolverConfig: dynamo.DefaultConfig(),
		Integrator:   rk4,
	}
}

// E[10 exp(-5k)] for k ~ U(0.4, 0.6).
var decayFinalMean = 10 * (math.Exp(-2) - math.Exp(-3))

func TestExpectationUniformDecay(t *testing.T) {
	res, err := Expectation(context.Background(), decayRequest(t, metrics.Final(0), uniform{0.4, 0.6}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Errorf("not converged: %v", res)
	}
	if math.Abs(res.Value-decayFinalMean) > 1e-7 {
		t.Errorf("E = %.12f, want %.12f", res.Value, decayFinalMean)
	}
	if res.Residual > 1e-6*decayFinalMean {
		t.Errorf("residual %v above tolerance", res.Residual)
	}
	if res.Evaluations != 5+7 || res.Order != 7 {
		t.Errorf("evaluations=%d order=%d", res.Evaluations, res.Order)
	}
	if res.Assumption != IndependentMarginals || res.Method != MethodKoopman {
		t.Errorf("labels %q %q", res.Assumption, res.Method)
	}
}

func TestExpectationConstant(t *testing.T) {
	res, err := Expectation(context.Background(), decayRequest(t, metrics.Constant(3.5), uniform{0.1, 2}))
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 3.5 || res.Residual != 0 || res.Evaluations != 0 || !res.Converged {
		t.Errorf("constant observable gave %+v", res)
	}
}

func TestExpectationPointMass(t *testing.T) {
	prob, _ := models.DefaultProblem(models.NewExponentialDecay())
	cfg := dynamo.DefaultConfig()
	want, err := sim.New(rk4()).Solve(context.Background(), prob, cfg)
	if err != nil {
		t.Fatal(err)
	}

	for _, obs := range []metrics.Observable{metrics.Final(0), metrics.Max(0), metrics.TimeAverage(0)} {
		res, err := Expectation(context.Background(), decayRequest(t, obs, kde.NewDirac(0.5)))
		if err != nil {
			t.Fatal(err)
		}
		if got := obs.Eval(want); math.Abs(res.Value-got) > 1e-12 {
			t.Errorf("%s: %v, single solve gives %v", obs, res.Value, got)
		}
		if res.Residual != 0 || !res.Converged || res.Evaluations != 2 {
			t.Errorf("%s: %+v", obs, res)
		}
	}
}

func TestExpectationReadsObservableTimes(t *testing.T) {
	req := decayRequest(t, metrics.ComponentAt(0, 1.234), kde.NewDirac(0.5))
	res, err := Expectation(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if want := 10 * math.Exp(-0.5*1.234); math.Abs(res.Value-want) > 1e-8 {
		t.Errorf("value %v, want %v", res.Value, want)
	}

	req.Observable = metrics.ComponentAt(0, 7)
	if _, err := Expectation(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("time outside span: %v", err)
	}
}

func TestExpectationBatchingIsInvisible(t *testing.T) {
	base := decayRequest(t, metrics.TimeAverage(0), uniform{0.2, 0.9})
	base.MaxOrder = 9
	base.RelTol = 1e-15
	base.AbsTol = 0

	var ref float64
	for i, tc := range []struct {
		backend compute.Backend
		batch   int
	}{
		{compute.NewCPUBackend(1), 1000},
		{compute.NewCPUBackend(4), 3},
		{compute.NewLockstepBackend(), 1000},
		{compute.NewLockstepBackend(), 2},
	} {
		req := base
		req.Backend = tc.backend
		req.BatchSize = tc.batch
		res, err := Expectation(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			ref = res.Value
			continue
		}
		if res.Value != ref {
			t.Errorf("%s batch %d: %v != %v", tc.backend.Name(), tc.batch, res.Value, ref)
		}
	}
}

func TestExpectationReportsNonConvergence(t *testing.T) {
	threshold := 10 * math.Exp(-5*0.47)
	step := metrics.Observable{
		Name: "step",
		Fn: func(tr *dynamo.Trajectory) float64 {
			if tr.Final()[0] > threshold {
				return 1
			}
			return 0
		},
	}
	req := decayRequest(t, step, uniform{0.4, 0.6})
	req.MaxOrder = 9
	req.RelTol = 1e-12

	res, err := Expectation(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Error("discontinuous observable reported as converged")
	}
	if res.Order != 9 || !(res.Residual > 0) {
		t.Errorf("order %d residual %v", res.Order, res.Residual)
	}
	if math.Abs(res.Value-0.35) > 0.15 {
		t.Errorf("value %v far from 0.35", res.Value)
	}
}

func TestExpectationMonteCarlo(t *testing.T) {
	req := decayRequest(t, metrics.Final(0), uniform{0.4, 0.6})
	req.Method = MethodMonteCarlo
	req.Samples = 4000
	req.Seed = 11

	res, err := Expectation(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Evaluations != 4000 || !(res.Residual > 0) {
		t.Fatalf("%+v", res)
	}
	if math.Abs(res.Value-decayFinalMean) > 5*res.Residual {
		t.Errorf("monte carlo %v ± %v, exact %v", res.Value, res.Residual, decayFinalMean)
	}
}

func TestExpectationFailingPoint(t *testing.T) {
	// x' = p x² blows up at t = 1/p.
	sys := dynamo.Func{
		F:       func(x dynamo.State, p dynamo.Params, _ float64) dynamo.State { return dynamo.State{p[0] * x[0] * x[0]} },
		NStates: 1,
		NParams: 1,
	}
	prob, err := dynamo.NewProblem(sys, dynamo.State{1}, dynamo.TimeSpan{Start: 0, End: 5}, dynamo.Params{0.1})
	if err != nil {
		t.Fatal(err)
	}
	req := Request{
		Observable:   metrics.Final(0),
		Problem:      prob,
		Densities:    []kde.Univariate{uniform{0.01, 0.5}},
		SolverConfig: dynamo.DefaultConfig(),
		Integrator:   rk4,
		BatchSize:    2,
		Backend:      compute.NewCPUBackend(2),
	}

	_, err = Expectation(context.Background(), req)
	var pe *dynamo.PointError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PointError, got %v", err)
	}
	if pe.Params[0] < 0.19 {
		t.Errorf("failing point %v should lie past the blow-up threshold", pe.Params)
	}
	if !errors.Is(err, dynamo.ErrUnstable) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestExpectationGridBudget(t *testing.T) {
	prob, err := models.DefaultProblem(models.NewLorenz())
	if err != nil {
		t.Fatal(err)
	}
	req := Request{
		Observable:     metrics.Final(0),
		Problem:        prob,
		Densities:      []kde.Univariate{uniform{9, 11}, uniform{27, 29}, uniform{2, 3}},
		SolverConfig:   dynamo.DefaultConfig(),
		Integrator:     rk4,
		MaxEvaluations: 100,
	}
	if _, err := Expectation(context.Background(), req); !errors.Is(err, ErrTooManyNodes) {
		t.Errorf("expected ErrTooManyNodes, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"density count", func(r *Request) { r.Densities = append(r.Densities, uniform{0, 1}) }},
		{"nil density", func(r *Request) { r.Densities = []kde.Univariate{nil} }},
		{"unbounded density", func(r *Request) { r.Densities = []kde.Univariate{uniform{0, math.Inf(1)}} }},
		{"unknown method", func(r *Request) { r.Method = "sparse-grid" }},
		{"joint density", func(r *Request) { r.Joint = "gaussian-copula" }},
		{"single level", func(r *Request) { r.Order, r.MaxOrder = 5, 5 }},
		{"no integrator", func(r *Request) { r.Integrator = nil }},
		{"no observable", func(r *Request) { r.Observable = metrics.Observable{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := decayRequest(t, metrics.Final(0), uniform{0.4, 0.6})
			tt.mutate(&req)
			if _, err := Expectation(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestMergeTimes(t *testing.T) {
	got := mergeTimes([]float64{0, 0.5, 1}, []float64{0.25, 0.5 + 1e-15, 1}, 1e-12)
	want := []float64{0, 0.25, 0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("merged %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("merged %v, want %v", got, want)
		}
	}
}
