// Package automation runs several pipeline runs in sequence: scripted
// scenarios read from YAML, and sweeps of one configuration field.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/pipeline"
	"github.com/san-kum/bayesode/internal/storage"
)

var ErrInvalidScenario = errors.New("automation: invalid scenario")

// Scenario defines a scripted sequence of runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`

	dir string
}

// ScenarioStep is one run. Exactly one of Preset and Config names the
// base configuration; the remaining fields override it.
type ScenarioStep struct {
	Preset      string   `yaml:"preset"`
	Config      string   `yaml:"config"`
	Seed        *uint64  `yaml:"seed"`
	Sigma       *float64 `yaml:"sigma"`
	Points      int      `yaml:"points"`
	Samples     int      `yaml:"samples"`
	Observables []string `yaml:"observables"`
	// Stage is the last stage to run; empty runs them all.
	Stage string `yaml:"stage"`
}

// LoadScenario loads a scenario from a YAML file. Config paths in steps are
// relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScenario, path, err)
	}
	sc.dir = filepath.Dir(path)
	for i, step := range sc.Steps {
		if _, err := sc.resolve(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &sc, nil
}

func (sc *Scenario) resolve(step ScenarioStep) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case step.Preset != "" && step.Config != "":
		return nil, fmt.Errorf("%w: preset and config are exclusive", ErrInvalidScenario)
	case step.Preset != "":
		model, name, ok := config.ParsePresetName(step.Preset)
		if !ok {
			return nil, fmt.Errorf("%w: preset %q is not model/name", ErrInvalidScenario, step.Preset)
		}
		if cfg = config.GetPreset(model, name); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %s", ErrInvalidScenario, step.Preset)
		}
	case step.Config != "":
		path := step.Config
		if !filepath.IsAbs(path) {
			path = filepath.Join(sc.dir, path)
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: step needs a preset or a config", ErrInvalidScenario)
	}

	if step.Seed != nil {
		cfg.Seed = *step.Seed
	}
	if step.Sigma != nil {
		cfg.Data.Sigma = *step.Sigma
	}
	if step.Points > 0 {
		cfg.Data.Points = step.Points
	}
	if step.Samples > 0 {
		cfg.Inference.Samples = step.Samples
	}
	if len(step.Observables) > 0 {
		cfg.Expectation.Observables = step.Observables
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in order and stops at the first failure.
// Reports of the completed steps are returned either way.
func RunScenario(ctx context.Context, sc *Scenario, reg *experiment.Registry, store *storage.Store, logger *slog.Logger) ([]*pipeline.Report, error) {
	logger = logging.OrDiscard(logger)
	reports := make([]*pipeline.Report, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		cfg, err := sc.resolve(step)
		if err != nil {
			return reports, fmt.Errorf("step %d: %w", i+1, err)
		}
		last := step.Stage
		if last == "" {
			last = pipeline.StageExpect
		}
		logger.Info("scenario step", "scenario", sc.Name, "step", i+1, "of", len(sc.Steps), "model", cfg.Model)

		rep, err := pipeline.New(cfg, reg, store, logger).RunUntil(ctx, last)
		if err != nil {
			return reports, fmt.Errorf("step %d: %w", i+1, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
