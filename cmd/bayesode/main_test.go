package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	configFile = ""
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "")
	cmd.Flags().StringVar(&logFile, "log-file", "", "")
	addRunFlags(cmd)
	if err := cmd.Flags().Parse(flags); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestResolveConfigFlagsOverridePreset(t *testing.T) {
	cmd := newTestCmd(t, "--samples", "50", "--observable", "final:x,max:x")
	preset = "decay/quick"
	defer func() { preset = "" }()

	cfg, err := resolveConfig(cmd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "decay" || cfg.Dt != 0.05 {
		t.Errorf("preset not applied: model %s dt %v", cfg.Model, cfg.Dt)
	}
	if cfg.Inference.Samples != 50 {
		t.Errorf("samples flag ignored: %d", cfg.Inference.Samples)
	}
	if cfg.Inference.Warmup != 500 {
		t.Errorf("unset flag overrode preset warmup: %d", cfg.Inference.Warmup)
	}
	if len(cfg.Expectation.Observables) != 2 {
		t.Errorf("observables %v", cfg.Expectation.Observables)
	}
}

func TestResolveConfigModelArgument(t *testing.T) {
	cfg, err := resolveConfig(newTestCmd(t), []string{"lorenz"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "lorenz" || cfg.Params != nil {
		t.Errorf("model argument gave %s with params %v", cfg.Model, cfg.Params)
	}

	preset = "quick"
	defer func() { preset = "" }()
	cfg, err = resolveConfig(newTestCmd(t), []string{"decay"})
	if err != nil || cfg.Model != "decay" {
		t.Fatalf("preset relative to model argument: %v, %v", cfg, err)
	}

	preset = "decay/quick"
	if _, err := resolveConfig(newTestCmd(t), []string{"lorenz"}); err == nil {
		t.Error("conflicting model argument accepted")
	}
}

func TestResolveConfigUnknownPreset(t *testing.T) {
	preset = "decay/nope"
	defer func() { preset = "" }()
	if _, err := resolveConfig(newTestCmd(t), nil); err == nil {
		t.Error("unknown preset accepted")
	}
}
