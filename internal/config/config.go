// Package config holds the YAML description of one pipeline run.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/koopman"
	"github.com/san-kum/bayesode/internal/logging"
)

const (
	DefaultDt      = 0.01
	DefaultPoints  = 21
	DefaultSigma   = 0.1
	DefaultChains  = 4
	DefaultSamples = 1000
	DefaultWarmup  = 1000
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Model      string `yaml:"model"`
	Integrator string `yaml:"integrator"`
	// Params and InitState override the model defaults when set.
	Params    []float64 `yaml:"params,omitempty"`
	InitState []float64 `yaml:"init_state,omitempty"`
	Start     float64   `yaml:"start"`
	// Duration 0 keeps the model's default span.
	Duration  float64 `yaml:"duration"`
	Dt        float64 `yaml:"dt"`
	Adaptive  bool    `yaml:"adaptive"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
	Seed      uint64  `yaml:"seed"`

	Data        DataConfig        `yaml:"data"`
	Inference   InferenceConfig   `yaml:"inference"`
	Density     DensityConfig     `yaml:"density"`
	Expectation ExpectationConfig `yaml:"expectation"`
	Logging     logging.Config    `yaml:"logging"`
}

type DataConfig struct {
	Points int     `yaml:"points"`
	Noise  string  `yaml:"noise"`
	Sigma  float64 `yaml:"sigma"`
}

type InferenceConfig struct {
	Chains  int     `yaml:"chains"`
	Samples int     `yaml:"samples"`
	Warmup  int     `yaml:"warmup"`
	Thin    int     `yaml:"thin"`
	Init    string  `yaml:"init"`
	MaxRHat float64 `yaml:"max_rhat"`
	// Priors maps parameter names to priors. Parameters without an entry
	// get a weakly informative prior centred on their configured value.
	Priors     map[string]bayes.Spec `yaml:"priors,omitempty"`
	NoisePrior *bayes.Spec           `yaml:"noise_prior,omitempty"`
}

type DensityConfig struct {
	Rule      string  `yaml:"rule"`
	Bandwidth float64 `yaml:"bandwidth,omitempty"`
}

type ExpectationConfig struct {
	// Observables are metrics.Parse expressions such as "final:prey".
	Observables []string `yaml:"observables"`
	Method      string   `yaml:"method"`
	Order       int      `yaml:"order"`
	MaxOrder    int      `yaml:"max_order"`
	RelTol      float64  `yaml:"rel_tol"`
	AbsTol      float64  `yaml:"abs_tol"`
	BatchSize   int      `yaml:"batch_size"`
	Backend     string   `yaml:"backend"`
	Samples     int      `yaml:"samples,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "lotka_volterra",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Tolerance:  1e-6,
		Seed:       1,
		Data: DataConfig{
			Points: DefaultPoints,
			Noise:  "gaussian",
			Sigma:  DefaultSigma,
		},
		Inference: InferenceConfig{
			Chains:  DefaultChains,
			Samples: DefaultSamples,
			Warmup:  DefaultWarmup,
			Thin:    1,
			Init:    bayes.InitMAP,
			MaxRHat: 1.05,
		},
		Density: DensityConfig{Rule: "silverman"},
		Expectation: ExpectationConfig{
			Observables: []string{"final:0"},
			Method:      koopman.MethodKoopman,
			Order:       5,
			MaxOrder:    15,
			RelTol:      1e-4,
			AbsTol:      1e-8,
			BatchSize:   1024,
			Backend:     "auto",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults, so omitted keys keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy, so presets can be modified freely.
func (c *Config) Clone() *Config {
	out := *c
	out.Params = slices.Clone(c.Params)
	out.InitState = slices.Clone(c.InitState)
	out.Expectation.Observables = slices.Clone(c.Expectation.Observables)
	if c.Inference.Priors != nil {
		out.Inference.Priors = make(map[string]bayes.Spec, len(c.Inference.Priors))
		for k, v := range c.Inference.Priors {
			out.Inference.Priors[k] = v
		}
	}
	if c.Inference.NoisePrior != nil {
		np := *c.Inference.NoisePrior
		out.Inference.NoisePrior = &np
	}
	return &out
}

// Validate checks everything that can be checked without the model
// registry. Model, integrator and observable names are resolved later.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Model == "" {
		bad("model is required")
	}
	if c.Dt <= 0 {
		bad("dt must be positive, got %g", c.Dt)
	}
	if c.Duration < 0 {
		bad("duration must not be negative, got %g", c.Duration)
	}
	if c.Adaptive && c.Tolerance <= 0 {
		bad("adaptive stepping needs a positive tolerance")
	}
	if c.Data.Points < 2 {
		bad("data.points must be at least 2, got %d", c.Data.Points)
	}
	if c.Data.Sigma < 0 {
		bad("data.sigma must not be negative, got %g", c.Data.Sigma)
	}

	inf := c.Inference
	if inf.Chains < 1 || inf.Samples < 1 || inf.Warmup < 0 || inf.Thin < 0 {
		bad("inference needs chains>=1, samples>=1, warmup>=0, thin>=0")
	}
	switch inf.Init {
	case "", bayes.InitPrior, bayes.InitMean, bayes.InitMAP:
	default:
		bad("unknown inference.init %q", inf.Init)
	}
	for name, spec := range inf.Priors {
		if _, err := bayes.FromSpec(spec); err != nil {
			bad("prior for %s: %v", name, err)
		}
	}
	if inf.NoisePrior != nil {
		if _, err := bayes.FromSpec(*inf.NoisePrior); err != nil {
			bad("noise prior: %v", err)
		}
	}

	if _, err := kde.ParseRule(c.Density.Rule); err != nil {
		bad("density.rule: %v", err)
	}
	if c.Density.Bandwidth < 0 {
		bad("density.bandwidth must not be negative")
	}

	ex := c.Expectation
	if len(ex.Observables) == 0 {
		bad("at least one observable is required")
	}
	switch ex.Method {
	case "", koopman.MethodKoopman, koopman.MethodMonteCarlo:
	default:
		bad("unknown expectation.method %q", ex.Method)
	}
	// quadrature needs two levels to form a residual
	if ex.Order < 0 || ex.MaxOrder < 0 || (ex.MaxOrder > 0 && ex.MaxOrder < max(ex.Order, 1)+2) {
		bad("expectation orders %d..%d", ex.Order, ex.MaxOrder)
	}
	if ex.BatchSize < 0 {
		bad("expectation.batch_size must not be negative")
	}
	if ex.Backend != "" && !slices.Contains(compute.Names(), ex.Backend) {
		bad("unknown backend %q (have %v)", ex.Backend, compute.Names())
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		bad("logging.level: %v", err)
	}
	return errors.Join(errs...)
}
