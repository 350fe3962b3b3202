package config

import (
	"sort"
	"strings"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/logging"
)

func ptr(v float64) *float64 { return &v }

// Presets are ready-made runs keyed by model and then by name.
var Presets = map[string]map[string]*Config{
	"lotka_volterra": {
		// The classic predator-prey fit: 11 observations on [0, 10].
		"tutorial": {
			Model: "lotka_volterra", Integrator: "rk4", Dt: 0.01, Duration: 10, Seed: 42,
			Params:    []float64{1.5, 1.0, 3.0, 1.0},
			InitState: []float64{1.0, 1.0},
			Data:      DataConfig{Points: 11, Noise: "gaussian", Sigma: 0.5},
			Inference: InferenceConfig{
				Chains: 4, Samples: 1000, Warmup: 1000, Thin: 1, Init: "map", MaxRHat: 1.05,
				Priors: map[string]bayes.Spec{
					"alpha": {Family: "normal", Params: []float64{1.5, 0.5}, Lower: ptr(0.5), Upper: ptr(2.5)},
					"beta":  {Family: "normal", Params: []float64{1.2, 0.5}, Lower: ptr(0), Upper: ptr(2)},
					"gamma": {Family: "normal", Params: []float64{3.0, 0.5}, Lower: ptr(1), Upper: ptr(4)},
					"delta": {Family: "normal", Params: []float64{1.0, 0.5}, Lower: ptr(0), Upper: ptr(2)},
				},
				NoisePrior: &bayes.Spec{Family: "inverse_gamma", Params: []float64{2, 3}},
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"sum:prey@1,3,5,7,9", "final:predator"},
				Method:      "koopman", Order: 3, MaxOrder: 9, RelTol: 1e-3, AbsTol: 1e-8,
				BatchSize: 4096, Backend: "auto",
			},
		},
		"quick": {
			Model: "lotka_volterra", Integrator: "rk4", Dt: 0.02, Duration: 10, Seed: 7,
			Data: DataConfig{Points: 21, Noise: "gaussian", Sigma: 0.1},
			Inference: InferenceConfig{
				Chains: 2, Samples: 300, Warmup: 300, Thin: 1, Init: "map", MaxRHat: 1.1,
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"final:prey"},
				Method:      "koopman", Order: 2, MaxOrder: 4, RelTol: 1e-2, AbsTol: 1e-6,
				BatchSize: 1024, Backend: "lockstep",
			},
		},
	},
	"decay": {
		"quick": {
			Model: "decay", Integrator: "rk4", Dt: 0.05, Duration: 5, Seed: 3,
			Data: DataConfig{Points: 21, Noise: "gaussian", Sigma: 0.1},
			Inference: InferenceConfig{
				Chains: 2, Samples: 500, Warmup: 500, Thin: 1, Init: "map", MaxRHat: 1.1,
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"final:x", "mean:x", "const:1"},
				Method:      "koopman", Order: 5, MaxOrder: 15, RelTol: 1e-6, AbsTol: 1e-10,
				BatchSize: 256, Backend: "auto",
			},
		},
		"noisy": {
			Model: "decay", Integrator: "rk45", Dt: 0.05, Duration: 5, Adaptive: true, Tolerance: 1e-8, Seed: 5,
			Data: DataConfig{Points: 11, Noise: "multiplicative", Sigma: 0.1},
			Inference: InferenceConfig{
				Chains: 4, Samples: 1000, Warmup: 1000, Thin: 1, Init: "prior", MaxRHat: 1.05,
				Priors: map[string]bayes.Spec{
					"k": {Family: "lognormal", Params: []float64{-0.7, 0.5}},
				},
			},
			Density:     DensityConfig{Rule: "scott"},
			Expectation: ExpectationConfig{
				Observables: []string{"at:x@2.5"},
				Method:      "montecarlo", Order: 5, MaxOrder: 15, RelTol: 1e-3, AbsTol: 1e-8,
				BatchSize: 512, Backend: "cpu", Samples: 4000,
			},
		},
	},
	"logistic": {
		"growth": {
			Model: "logistic", Integrator: "rk4", Dt: 0.01, Duration: 15, Seed: 11,
			Data: DataConfig{Points: 16, Noise: "gaussian", Sigma: 1.0},
			Inference: InferenceConfig{
				Chains: 4, Samples: 1000, Warmup: 1000, Thin: 1, Init: "map", MaxRHat: 1.05,
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"at:0@5", "max:0"},
				Method:      "koopman", Order: 5, MaxOrder: 13, RelTol: 1e-5, AbsTol: 1e-8,
				BatchSize: 1024, Backend: "auto",
			},
		},
	},
	"pendulum": {
		// Damping and g/L from noisy angle readings.
		"damped": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 10, Seed: 17,
			Data: DataConfig{Points: 41, Noise: "gaussian", Sigma: 0.02},
			Inference: InferenceConfig{
				Chains: 4, Samples: 800, Warmup: 800, Thin: 1, Init: "map", MaxRHat: 1.05,
				Priors: map[string]bayes.Spec{
					"b":        {Family: "uniform", Params: []float64{0, 0.5}},
					"g_over_l": {Family: "normal", Params: []float64{10, 2}, Lower: ptr(1)},
				},
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"at:theta@5", "max:omega"},
				Method:      "koopman", Order: 3, MaxOrder: 11, RelTol: 1e-4, AbsTol: 1e-8,
				BatchSize: 1024, Backend: "lockstep",
			},
		},
	},
	"vanderpol": {
		"limit_cycle": {
			Model: "vanderpol", Integrator: "rk4", Dt: 0.01, Duration: 20, Seed: 13,
			Data: DataConfig{Points: 41, Noise: "gaussian", Sigma: 0.1},
			Inference: InferenceConfig{
				Chains: 3, Samples: 800, Warmup: 800, Thin: 1, Init: "map", MaxRHat: 1.05,
			},
			Density:     DensityConfig{Rule: "silverman"},
			Expectation: ExpectationConfig{
				Observables: []string{"max:x", "mean:y"},
				Method:      "koopman", Order: 5, MaxOrder: 15, RelTol: 1e-4, AbsTol: 1e-8,
				BatchSize: 1024, Backend: "auto",
			},
		},
	},
}

// GetPreset returns a copy of the named preset with default logging, or
// nil when it does not exist.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	out := cfg.Clone()
	if out.Logging == (logging.Config{}) {
		out.Logging = logging.DefaultConfig()
	}
	if out.Tolerance == 0 {
		out.Tolerance = DefaultConfig().Tolerance
	}
	return out
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePresetName splits "model/preset". Without a slash both parts are empty.
func ParsePresetName(s string) (model, preset string, ok bool) {
	model, preset, found := strings.Cut(s, "/")
	if !found {
		return "", "", false
	}
	return model, preset, model != "" && preset != ""
}
