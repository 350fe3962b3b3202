package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/bayesode/internal/bayes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "lotka_volterra" {
		t.Errorf("expected model lotka_volterra, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("lotka_volterra", "tutorial")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if len(cfg.Params) != 4 || cfg.Params[0] != 1.5 {
		t.Errorf("expected alpha 1.5, got %v", cfg.Params)
	}
	if cfg.Logging.Level == "" {
		t.Error("preset should carry default logging")
	}

	cfg.Params[0] = 99
	cfg.Inference.Priors["alpha"] = bayes.Spec{Family: "uniform", Params: []float64{0, 1}}
	again := GetPreset("lotka_volterra", "tutorial")
	if again.Params[0] != 1.5 || again.Inference.Priors["alpha"].Family != "normal" {
		t.Error("GetPreset returned shared state")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("lotka_volterra", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "quick"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsValidate(t *testing.T) {
	for model := range Presets {
		for _, name := range ListPresets(model) {
			if err := GetPreset(model, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("decay")
	if len(presets) != 2 || presets[0] != "noisy" || presets[1] != "quick" {
		t.Errorf("expected sorted decay presets, got %v", presets)
	}
	if presets := ListPresets("nonexistent"); presets != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestParsePresetName(t *testing.T) {
	tests := []struct {
		in            string
		model, preset string
		ok            bool
	}{
		{"decay/quick", "decay", "quick", true},
		{"decay", "", "", false},
		{"", "", "", false},
		{"/quick", "", "quick", false},
		{"decay/", "decay", "", false},
	}
	for _, tt := range tests {
		m, p, ok := ParsePresetName(tt.in)
		if m != tt.model || p != tt.preset || ok != tt.ok {
			t.Errorf("ParsePresetName(%q) = %q, %q, %v", tt.in, m, p, ok)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("lotka_volterra", "tutorial")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data.Points != 11 || got.Inference.NoisePrior == nil || *got.Inference.Priors["gamma"].Lower != 1 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Expectation.Observables[0] != "sum:prey@1,3,5,7,9" {
		t.Errorf("observables %v", got.Expectation.Observables)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("model: decay\ndata:\n  points: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "decay" || cfg.Data.Points != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Integrator != "rk4" || cfg.Inference.Chains != DefaultChains || cfg.Data.Noise != "gaussian" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("model: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected yaml error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model", func(c *Config) { c.Model = "" }},
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"adaptive without tolerance", func(c *Config) { c.Adaptive, c.Tolerance = true, 0 }},
		{"one data point", func(c *Config) { c.Data.Points = 1 }},
		{"negative noise", func(c *Config) { c.Data.Sigma = -1 }},
		{"no chains", func(c *Config) { c.Inference.Chains = 0 }},
		{"bad init", func(c *Config) { c.Inference.Init = "zeros" }},
		{"bad prior", func(c *Config) {
			c.Inference.Priors = map[string]bayes.Spec{"alpha": {Family: "cauchy", Params: []float64{0, 1}}}
		}},
		{"bad noise prior", func(c *Config) { c.Inference.NoisePrior = &bayes.Spec{Family: "gamma", Params: []float64{-1, 1}} }},
		{"bad rule", func(c *Config) { c.Density.Rule = "loess" }},
		{"no observables", func(c *Config) { c.Expectation.Observables = nil }},
		{"bad method", func(c *Config) { c.Expectation.Method = "sobol" }},
		{"orders reversed", func(c *Config) { c.Expectation.Order, c.Expectation.MaxOrder = 9, 3 }},
		{"bad backend", func(c *Config) { c.Expectation.Backend = "tpu" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "LOUD" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
