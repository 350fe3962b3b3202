package experiment

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/dynamo"
)

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	for _, name := range r.ListModels() {
		m, err := r.GetModel(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if m.Describe().Name != name {
			t.Errorf("model registered as %s describes itself as %s", name, m.Describe().Name)
		}
	}
	for _, name := range r.ListIntegrators() {
		fn, err := r.GetIntegrator(name)
		if err != nil {
			t.Fatal(err)
		}
		if got := fn().Name(); got != name {
			t.Errorf("integrator %s reports name %s", name, got)
		}
	}

	if _, err := r.GetModel("double_pendulum"); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
	if _, err := r.GetIntegrator("leapfrog"); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
	if _, err := r.GetBackend("tpu", nil, dynamo.DefaultConfig(), nil); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
	if len(r.ListPriors()) == 0 || len(r.ListBackends()) == 0 || len(r.ListObservables()) == 0 {
		t.Error("empty listing")
	}
}

func TestDefaultPriors(t *testing.T) {
	r := NewRegistry()
	p, err := r.DefaultPrior(2)
	if err != nil {
		t.Fatal(err)
	}
	if lo, _ := p.Support(); lo != 0 {
		t.Errorf("positive reference should give a positive prior, support starts at %v", lo)
	}
	if q := p.Quantile(0.5); math.Abs(q-2) > 0.1 {
		t.Errorf("prior median %v, want about 2", q)
	}

	neg, err := r.DefaultPrior(-3)
	if err != nil {
		t.Fatal(err)
	}
	if lo, _ := neg.Support(); !math.IsInf(lo, -1) {
		t.Errorf("negative reference truncated: %s", neg)
	}

	noise, err := r.DefaultNoisePrior(0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(noise.Mean()-0.1) > 1e-12 {
		t.Errorf("noise prior mean %v", noise.Mean())
	}
}

func TestNewFromPreset(t *testing.T) {
	cfg := config.GetPreset("lotka_volterra", "tutorial")
	e, err := New(cfg, NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	if e.Problem.Span.End != 10 || len(e.DataTimes) != 11 || e.DataTimes[10] != 10 {
		t.Errorf("span %v, data grid %v", e.Problem.Span, e.DataTimes)
	}
	if len(e.Priors) != 4 {
		t.Fatalf("got %d priors", len(e.Priors))
	}
	if lo, hi := e.Priors[2].Support(); lo != 1 || hi != 4 {
		t.Errorf("gamma prior support [%v, %v]", lo, hi)
	}
	if len(e.Observables) != 2 || len(e.Observables[0].Times) != 5 {
		t.Errorf("observables %v", e.Observables)
	}
	if got := e.DataConfig().SaveAt; len(got) != 11 {
		t.Errorf("data config grid %v", got)
	}
}

func TestNewDefaultsFromModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "decay"
	cfg.Expectation.Observables = []string{"final:x"}
	cfg.Start = 1

	e, err := New(cfg, NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if e.Problem.Span.Start != 1 || e.Problem.Span.End != 6 {
		t.Errorf("shifted span %v", e.Problem.Span)
	}
	if e.Problem.Params[0] != 0.5 || e.Problem.U0[0] != 10 {
		t.Errorf("model defaults not applied: %v %v", e.Problem.Params, e.Problem.U0)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"invalid config", func(c *config.Config) { c.Dt = -1 }, config.ErrInvalidConfig},
		{"unknown model", func(c *config.Config) { c.Model = "double_pendulum" }, ErrUnknown},
		{"unknown integrator", func(c *config.Config) { c.Integrator = "leapfrog" }, ErrUnknown},
		{"verlet on first-order model", func(c *config.Config) { c.Integrator = "verlet" }, config.ErrInvalidConfig},
		{"param count", func(c *config.Config) { c.Params = []float64{1, 2} }, dynamo.ErrDimensionMismatch},
		{"prior for missing param", func(c *config.Config) {
			c.Inference.Priors = map[string]bayes.Spec{"omega": {Family: "normal", Params: []float64{0, 1}}}
		}, ErrUnknown},
		{"bad observable", func(c *config.Config) { c.Expectation.Observables = []string{"final:wolves"} }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			_, err := New(cfg, NewRegistry())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVerletNeedsSecondOrderModel(t *testing.T) {
	cfg := config.GetPreset("pendulum", "damped")
	cfg.Integrator = "verlet"
	exp, err := New(cfg, NewRegistry())
	if err != nil {
		t.Fatalf("pendulum with verlet: %v", err)
	}
	if exp.Integrator().Name() != "verlet" {
		t.Errorf("integrator %s", exp.Integrator().Name())
	}
}
