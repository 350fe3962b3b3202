package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/analysis"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/export"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/storage"
	"github.com/san-kum/bayesode/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
		return nil
	}
	viz.RunTable(cmd.OutOrStdout(), runs)
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := resolveRun(st, args[0])
	if err != nil {
		return err
	}
	meta, err := st.Load(id)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	conv := viz.OK("yes")
	if !meta.Converged {
		conv = viz.Warn("no")
	}
	fmt.Fprintln(w, viz.Title("run "+meta.ID))
	fmt.Fprintln(w, viz.KeyValue(
		[2]string{"model", meta.Model},
		[2]string{"time", meta.Timestamp.Format("2006-01-02 15:04:05")},
		[2]string{"integrator", fmt.Sprintf("%s (dt %g)", meta.Integrator, meta.Dt)},
		[2]string{"duration", fmt.Sprintf("%g", meta.Duration)},
		[2]string{"seed", fmt.Sprint(meta.Seed)},
		[2]string{"stages", strings.Join(meta.Stages, ", ")},
		[2]string{"chains", fmt.Sprintf("%d x %d draws, converged %s", meta.Chains, meta.Samples/max(meta.Chains, 1), conv)},
		[2]string{"elapsed", fmt.Sprintf("%.0f ms", meta.ElapsedMS)},
	))
	if len(meta.Summary) > 0 {
		viz.SummaryTable(w, meta.Summary)
	}

	recs, err := st.LoadExpectations(id)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		viz.ExpectationTable(w, recs)
	}
	fmt.Fprint(w, viz.Warnings(meta.Warnings))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := resolveRun(st, args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, viz.Title("run "+id))

	truth, states, err := st.LoadTrajectory(id)
	if err != nil {
		return err
	}
	data, err := st.LoadDataset(id)
	if err != nil {
		return err
	}
	plotted := -1
	for j, name := range states {
		if stateName != "" && name != stateName {
			continue
		}
		if plotted < 0 {
			plotted = j
		}
		fmt.Fprintln(w, viz.Fit(truth, data, nil, j, name, viz.DefaultSize))
		fmt.Fprintln(w)
	}
	if plotted < 0 {
		return fmt.Errorf("no state %q (have %v)", stateName, states)
	}
	if svgOut != "" && len(pairNames) == 0 {
		if err := writeSVG(svgOut, func(f io.Writer) error {
			return export.FitSVG(f, truth, data, nil, plotted, 800, 400)
		}); err != nil {
			return err
		}
	}

	names, chains, err := st.LoadChains(id)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg, err := st.LoadConfig(id)
	if err != nil {
		return err
	}

	columns := make([][]float64, len(names))
	for _, c := range chains {
		for j := range names {
			columns[j] = append(columns[j], chainColumn(c, j)...)
		}
	}

	rule, err := kde.ParseRule(cfg.Density.Rule)
	if err != nil {
		return err
	}
	densities, err := kde.EstimateAll(context.Background(), columns, kde.WithRule(rule), kde.AllowDegenerate())
	if err != nil {
		return err
	}
	for j, d := range densities {
		fmt.Fprintln(w, viz.DensityPlot(d, names[j], viz.DefaultSize))
		fmt.Fprintln(w)
	}

	if traceName != "" {
		j := slices.Index(names, traceName)
		if j < 0 {
			return fmt.Errorf("no quantity %q (have %v)", traceName, names)
		}
		width := viz.DefaultSize.Width
		for c, m := range chains {
			draws := chainColumn(m, j)
			fmt.Fprintf(w, "chain %d %s %s %.0f\n", c, viz.Sparkline(draws, width), viz.Label("ess"), analysis.EffectiveSampleSize(draws))
		}
		fmt.Fprintln(w, viz.Trace(chainColumn(chains[0], j), traceName, viz.DefaultSize))

		first := chainColumn(chains[0], j)
		counts, edges := analysis.Histogram(columns[j], width)
		fmt.Fprintf(w, "%s %s [%.4g, %.4g]\n", viz.Label("histogram    "), viz.Sparkline(counts, width), edges[0], edges[len(edges)-1])
		if rho := analysis.Autocorrelation(first); len(rho) > 1 {
			fmt.Fprintf(w, "%s %s\n", viz.Label("autocorr     "), viz.Sparkline(rho[:min(len(rho), width)], width))
		}
		// A sharp peak means the chain oscillates.
		if ps := analysis.PowerSpectrum(first); len(ps) > 2 {
			fmt.Fprintf(w, "%s %s\n", viz.Label("spectrum     "), viz.Sparkline(ps[1:], width))
		}
	}

	if len(pairNames) > 0 {
		if len(pairNames) != 2 {
			return fmt.Errorf("--pair takes two names, got %v", pairNames)
		}
		a, b := slices.Index(names, pairNames[0]), slices.Index(names, pairNames[1])
		if a < 0 || b < 0 {
			return fmt.Errorf("unknown pair %v (have %v)", pairNames, names)
		}
		fmt.Fprintln(w, viz.Pair(columns[a], columns[b], names[a], names[b], viz.DefaultSize))
		if svgOut != "" {
			canvas := viz.Scatter(columns[a], columns[b], viz.BoundsOf(columns[a], columns[b]), 100, 50)
			if err := writeSVG(svgOut, func(f io.Writer) error {
				return export.CanvasToSVG(f, canvas, 4)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func chainColumn(m mat.Matrix, j int) []float64 { return mat.Col(nil, j, m) }

func writeSVG(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := make([]string, 0, len(config.Presets))
	for m := range config.Presets {
		models = append(models, m)
	}
	slices.Sort(models)
	if len(args) > 0 {
		models = []string{args[0]}
	}

	var items []string
	for _, m := range models {
		for _, p := range config.ListPresets(m) {
			items = append(items, m+"/"+p)
		}
	}
	if len(items) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no presets for model: %s\n", args[0])
		return nil
	}
	viz.ListTable(cmd.OutOrStdout(), "preset", items)
	return nil
}
