package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/pipeline"
	"github.com/san-kum/bayesode/internal/storage"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GetPreset("decay", "quick")
	if err := config.Save(filepath.Join(dir, "decay.yaml"), cfg); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, dir, "scenario.yaml", `
name: decay study
steps:
  - preset: decay/quick
    sigma: 0.2
    samples: 100
  - config: decay.yaml
    seed: 9
    stage: simulate
`)
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "decay study" || len(sc.Steps) != 2 {
		t.Fatalf("scenario %+v", sc)
	}
	first, err := sc.resolve(sc.Steps[0])
	if err != nil {
		t.Fatal(err)
	}
	if first.Data.Sigma != 0.2 || first.Inference.Samples != 100 || first.Model != "decay" {
		t.Errorf("overrides not applied: %+v", first.Data)
	}
	second, err := sc.resolve(sc.Steps[1])
	if err != nil || second.Seed != 9 {
		t.Errorf("config step: seed %d, %v", second.Seed, err)
	}
}

func TestLoadScenarioRejectsBadSteps(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"empty.yaml":     "steps:\n  - seed: 1\n",
		"both.yaml":      "steps:\n  - preset: decay/quick\n    config: x.yaml\n",
		"unknown.yaml":   "steps:\n  - preset: decay/slow\n",
		"malformed.yaml": "steps:\n  - preset: decay\n",
	} {
		if _, err := LoadScenario(writeFile(t, dir, name, body)); !errors.Is(err, ErrInvalidScenario) {
			t.Errorf("%s: expected ErrInvalidScenario, got %v", name, err)
		}
	}
}

func TestRunScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scenario.yaml", `
name: two seeds
steps:
  - preset: decay/quick
    seed: 1
    stage: simulate
  - preset: decay/quick
    seed: 2
    stage: simulate
`)
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.New(filepath.Join(dir, "runs"))
	reps, err := RunScenario(context.Background(), sc, nil, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 2 || reps[0].RunID == reps[1].RunID {
		t.Fatalf("expected two distinct runs, got %d", len(reps))
	}
	_, a := reps[0].Dataset.Row(3)
	_, b := reps[1].Dataset.Row(3)
	if a[0] == b[0] {
		t.Error("different seeds produced identical noise")
	}
}

func TestSweepNoiseWidensPosterior(t *testing.T) {
	base := config.GetPreset("decay", "quick")
	base.Inference.Samples = 300
	base.Inference.Warmup = 300
	base.Expectation.Observables = []string{"final:x"}
	base.Expectation.MaxOrder = 9
	base.Expectation.RelTol = 1e-3

	sw := &Sweep{Base: base, Field: FieldSigma, Values: []float64{0.02, 0.5}}
	res, err := RunSweep(context.Background(), sw, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Names[0] != "k" {
		t.Fatalf("results %+v", res)
	}
	if n := pipeline.StageTimer(sw.Metrics, pipeline.StageInfer).Count(); n != 2 {
		t.Errorf("infer timer counted %d runs, want 2", n)
	}
	if !(res[1].StdDev[0] > 2*res[0].StdDev[0]) {
		t.Errorf("posterior sd of k did not grow with noise: %v -> %v", res[0].StdDev[0], res[1].StdDev[0])
	}
	if base.Data.Sigma != 0.1 {
		t.Error("sweep modified its base configuration")
	}
}

func TestSweepValidation(t *testing.T) {
	base := config.GetPreset("decay", "quick")
	for _, sw := range []*Sweep{
		{Base: base, Field: "dt", Values: []float64{0.1}},
		{Base: base, Field: FieldPoints, Values: []float64{10.5}},
		{Base: base, Field: FieldSigma, Values: []float64{-1}},
	} {
		if _, err := RunSweep(context.Background(), sw, nil, nil, nil); err == nil {
			t.Errorf("sweep of %s over %v accepted", sw.Field, sw.Values)
		}
	}
	if got := Linspace(0, 1, 5); got[1] != 0.25 || got[4] != 1 {
		t.Errorf("Linspace = %v", got)
	}
}
