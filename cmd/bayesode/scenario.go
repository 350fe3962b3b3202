package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/san-kum/bayesode/internal/automation"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/storage"
	"github.com/san-kum/bayesode/internal/viz"
)

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	applyFlags(cmd, cfg)
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, viz.Title("scenario "+sc.Name))
	if sc.Description != "" {
		fmt.Fprintln(w, viz.Label(sc.Description))
	}

	reps, err := automation.RunScenario(ctx, sc, experiment.NewRegistry(), storage.New(dataDir), logger)
	rows := make([][]any, 0, len(reps))
	for i, rep := range reps {
		status := viz.OK("ok")
		if len(rep.Warnings) > 0 {
			status = viz.Warn(fmt.Sprintf("%d warnings", len(rep.Warnings)))
		}
		last := ""
		if n := len(rep.Stages); n > 0 {
			last = rep.Stages[n-1]
		}
		rows = append(rows, []any{i + 1, rep.RunID, rep.Experiment.Info.Name, last, status})
	}
	viz.Table(w, []string{"step", "run", "model", "last stage", "status"}, rows)
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	values := sweepValues
	if len(sweepRange) > 0 {
		if len(sweepRange) != 3 || sweepRange[2] < 1 || sweepRange[2] != float64(int(sweepRange[2])) {
			return fmt.Errorf("--range takes lo,hi,count")
		}
		values = automation.Linspace(sweepRange[0], sweepRange[1], int(sweepRange[2]))
	}
	if len(values) == 0 {
		return fmt.Errorf("sweep needs --values or --range")
	}

	logger, closer, err := logging.New(base.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sw := &automation.Sweep{Base: base, Field: sweepField, Values: values}
	results, err := automation.RunSweep(ctx, sw, experiment.NewRegistry(), storage.New(dataDir), logger)
	if len(results) == 0 {
		return err
	}

	header := []string{sweepField, "run"}
	for _, name := range results[0].Names {
		header = append(header, name+" mean", name+" sd")
	}
	for _, obs := range base.Expectation.Observables {
		header = append(header, "E["+obs+"]")
	}
	header = append(header, "converged")

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		row := []any{strconv.FormatFloat(r.Value, 'g', 6, 64), r.RunID}
		for j := range r.Names {
			row = append(row, fmt.Sprintf("%.4g", r.Mean[j]), fmt.Sprintf("%.3g", r.StdDev[j]))
		}
		for _, v := range r.Expectations {
			row = append(row, fmt.Sprintf("%.6g", v))
		}
		row = append(row, r.Converged)
		rows = append(rows, row)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, viz.Title(fmt.Sprintf("sweep %s over %s", base.Model, sweepField)))
	viz.Table(w, header, rows)
	if len(results) > 2 {
		sd := make([]float64, len(results))
		for i, r := range results {
			sd[i] = r.StdDev[0]
		}
		fmt.Fprintln(w, viz.Label(results[0].Names[0]+" sd ")+viz.Sparkline(sd, len(sd)))
	}
	return err
}
