package bayes

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/integrate/quad"
)

func must(p Prior, err error) Prior {
	if err != nil {
		panic(err)
	}
	return p
}

func ptr(v float64) *float64 { return &v }

func TestPriorsNormalise(t *testing.T) {
	tests := []struct {
		name  string
		prior Prior
	}{
		{"normal", must(Normal(1, 2))},
		{"lognormal", must(LogNormal(0, 0.5))},
		{"uniform", must(Uniform(-1, 3))},
		{"gamma", must(Gamma(2, 3))},
		{"inverse gamma", must(InverseGamma(3, 2))},
		{"truncated normal", must(Truncated(must(Normal(0, 1)), 0, math.Inf(1)))},
		{"truncated gamma", must(Truncated(must(Gamma(2, 1)), 0.5, 4))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo := tt.prior.Quantile(1e-9)
			hi := tt.prior.Quantile(1 - 1e-9)
			mass := quad.Fixed(func(x float64) float64 { return math.Exp(tt.prior.LogProb(x)) }, lo, hi, 2000, nil, 0)
			if math.Abs(mass-1) > 1e-3 {
				t.Errorf("%s integrates to %v", tt.prior, mass)
			}
			for _, p := range []float64{0.1, 0.5, 0.9} {
				if got := tt.prior.CDF(tt.prior.Quantile(p)); math.Abs(got-p) > 1e-6 {
					t.Errorf("CDF(Quantile(%v)) = %v", p, got)
				}
			}
		})
	}
}

func TestTruncatedMean(t *testing.T) {
	half := must(Truncated(must(Normal(0, 1)), 0, math.Inf(1)))
	if want := math.Sqrt(2 / math.Pi); math.Abs(half.Mean()-want) > 1e-3 {
		t.Errorf("half-normal mean %v, want %v", half.Mean(), want)
	}
	if half.LogProb(-0.1) != math.Inf(-1) {
		t.Error("density outside truncation should be zero")
	}
	if lo, hi := half.Support(); lo != 0 || !math.IsInf(hi, 1) {
		t.Errorf("support [%v, %v]", lo, hi)
	}
}

func TestDrawStaysInSupport(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := must(Truncated(must(Normal(0, 1)), -0.5, 0.25))
	for i := 0; i < 1000; i++ {
		if x := Draw(p, rng); x < -0.5 || x > 0.25 {
			t.Fatalf("draw %v outside support", x)
		}
	}
}

func TestFromSpec(t *testing.T) {
	p, err := FromSpec(Spec{Family: "normal", Params: []float64{1, 0.5}, Lower: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if lo, _ := p.Support(); lo != 0 {
		t.Errorf("lower bound ignored: %s", p)
	}

	bad := []Spec{
		{Family: "cauchy", Params: []float64{0, 1}},
		{Family: "normal", Params: []float64{0}},
		{Family: "normal", Params: []float64{0, -1}},
		{Family: "uniform", Params: []float64{2, 1}},
		{Family: "gamma", Params: []float64{1, 1}, Upper: ptr(-1)},
	}
	for _, s := range bad {
		if _, err := FromSpec(s); !errors.Is(err, ErrInvalidPrior) {
			t.Errorf("%+v: expected ErrInvalidPrior, got %v", s, err)
		}
	}
	if len(Families()) != len(families) {
		t.Error("Families out of sync with registry")
	}
}
