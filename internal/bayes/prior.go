package bayes

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrInvalidPrior = errors.New("bayes: invalid prior")

// Prior is a scalar distribution over one parameter.
type Prior interface {
	String() string
	LogProb(x float64) float64
	CDF(x float64) float64
	Quantile(p float64) float64
	Mean() float64
	Support() (lo, hi float64)
}

// Draw samples p by inverting its CDF.
func Draw(p Prior, rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return p.Quantile(u)
}

type distribution interface {
	LogProb(x float64) float64
	CDF(x float64) float64
	Quantile(p float64) float64
	Mean() float64
}

type prior struct {
	name   string
	dist   distribution
	lo, hi float64
}

func (p *prior) String() string              { return p.name }
func (p *prior) LogProb(x float64) float64   { return p.dist.LogProb(x) }
func (p *prior) CDF(x float64) float64       { return p.dist.CDF(x) }
func (p *prior) Quantile(q float64) float64  { return p.dist.Quantile(q) }
func (p *prior) Mean() float64               { return p.dist.Mean() }
func (p *prior) Support() (float64, float64) { return p.lo, p.hi }

func positive(name string, vs ...float64) error {
	for _, v := range vs {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s needs positive finite parameters, got %v", ErrInvalidPrior, name, vs)
		}
	}
	return nil
}

func Normal(mu, sigma float64) (Prior, error) {
	if err := positive("normal", sigma); err != nil {
		return nil, err
	}
	return &prior{
		name: fmt.Sprintf("Normal(%g, %g)", mu, sigma),
		dist: distuv.Normal{Mu: mu, Sigma: sigma},
		lo:   math.Inf(-1), hi: math.Inf(1),
	}, nil
}

// LogNormal is the distribution of exp(X) with X ~ Normal(mu, sigma).
func LogNormal(mu, sigma float64) (Prior, error) {
	if err := positive("lognormal", sigma); err != nil {
		return nil, err
	}
	return &prior{
		name: fmt.Sprintf("LogNormal(%g, %g)", mu, sigma),
		dist: distuv.LogNormal{Mu: mu, Sigma: sigma},
		lo:   0, hi: math.Inf(1),
	}, nil
}

func Uniform(lo, hi float64) (Prior, error) {
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("%w: uniform needs finite lo < hi, got [%g, %g]", ErrInvalidPrior, lo, hi)
	}
	return &prior{
		name: fmt.Sprintf("Uniform(%g, %g)", lo, hi),
		dist: distuv.Uniform{Min: lo, Max: hi},
		lo:   lo, hi: hi,
	}, nil
}

// Gamma uses the shape/rate parameterisation.
func Gamma(shape, rate float64) (Prior, error) {
	if err := positive("gamma", shape, rate); err != nil {
		return nil, err
	}
	return &prior{
		name: fmt.Sprintf("Gamma(%g, %g)", shape, rate),
		dist: distuv.Gamma{Alpha: shape, Beta: rate},
		lo:   0, hi: math.Inf(1),
	}, nil
}

// InverseGamma uses the shape/scale parameterisation.
func InverseGamma(shape, scale float64) (Prior, error) {
	if err := positive("inverse gamma", shape, scale); err != nil {
		return nil, err
	}
	return &prior{
		name: fmt.Sprintf("InverseGamma(%g, %g)", shape, scale),
		dist: distuv.InverseGamma{Alpha: shape, Beta: scale},
		lo:   0, hi: math.Inf(1),
	}, nil
}

// truncated restricts a prior to [lo, hi] and renormalises it.
type truncated struct {
	base       Prior
	lo, hi     float64
	cdfLo, z   float64
	logZ, mean float64
}

// Truncated restricts base to [lo, hi]. Either bound may be infinite.
func Truncated(base Prior, lo, hi float64) (Prior, error) {
	blo, bhi := base.Support()
	lo, hi = math.Max(lo, blo), math.Min(hi, bhi)
	if !(hi > lo) {
		return nil, fmt.Errorf("%w: empty truncation [%g, %g] of %s", ErrInvalidPrior, lo, hi, base)
	}
	cdfLo := base.CDF(lo)
	z := base.CDF(hi) - cdfLo
	if !(z > 0) {
		return nil, fmt.Errorf("%w: %s has no mass on [%g, %g]", ErrInvalidPrior, base, lo, hi)
	}
	t := &truncated{base: base, lo: lo, hi: hi, cdfLo: cdfLo, z: z, logZ: math.Log(z)}
	// E[X] = ∫₀¹ Q(u) du; Legendre nodes stay off the end points.
	t.mean = quad.Fixed(t.Quantile, 0, 1, 64, quad.Legendre{}, 0)
	return t, nil
}

func (t *truncated) String() string {
	return fmt.Sprintf("Truncated(%s, %g, %g)", t.base, t.lo, t.hi)
}

func (t *truncated) LogProb(x float64) float64 {
	if x < t.lo || x > t.hi {
		return math.Inf(-1)
	}
	return t.base.LogProb(x) - t.logZ
}

func (t *truncated) CDF(x float64) float64 {
	switch {
	case x <= t.lo:
		return 0
	case x >= t.hi:
		return 1
	}
	return (t.base.CDF(x) - t.cdfLo) / t.z
}

func (t *truncated) Quantile(p float64) float64 {
	q := t.base.Quantile(math.Min(1, math.Max(0, t.cdfLo+p*t.z)))
	return math.Min(t.hi, math.Max(t.lo, q))
}

func (t *truncated) Mean() float64               { return t.mean }
func (t *truncated) Support() (float64, float64) { return t.lo, t.hi }

// Spec is the configuration form of a prior.
type Spec struct {
	Family string    `yaml:"family" json:"family"`
	Params []float64 `yaml:"params" json:"params"`
	Lower  *float64  `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper  *float64  `yaml:"upper,omitempty" json:"upper,omitempty"`
}

type family struct {
	nparams int
	build   func(p []float64) (Prior, error)
}

var families = map[string]family{
	"normal":        {2, func(p []float64) (Prior, error) { return Normal(p[0], p[1]) }},
	"lognormal":     {2, func(p []float64) (Prior, error) { return LogNormal(p[0], p[1]) }},
	"uniform":       {2, func(p []float64) (Prior, error) { return Uniform(p[0], p[1]) }},
	"gamma":         {2, func(p []float64) (Prior, error) { return Gamma(p[0], p[1]) }},
	"inverse_gamma": {2, func(p []float64) (Prior, error) { return InverseGamma(p[0], p[1]) }},
}

// Families lists the prior families FromSpec understands.
func Families() []string {
	return []string{"normal", "lognormal", "uniform", "gamma", "inverse_gamma"}
}

// FromSpec builds a prior, truncating it when bounds are given.
func FromSpec(s Spec) (Prior, error) {
	f, ok := families[s.Family]
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %q", ErrInvalidPrior, s.Family)
	}
	if len(s.Params) != f.nparams {
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidPrior, s.Family, f.nparams, len(s.Params))
	}
	p, err := f.build(s.Params)
	if err != nil {
		return nil, err
	}
	if s.Lower == nil && s.Upper == nil {
		return p, nil
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if s.Lower != nil {
		lo = *s.Lower
	}
	if s.Upper != nil {
		hi = *s.Upper
	}
	return Truncated(p, lo, hi)
}
