package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/san-kum/bayesode/internal/automation"
	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/pipeline"
	"github.com/san-kum/bayesode/internal/storage"
	"github.com/san-kum/bayesode/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFile    string
	logRotate  string
	themeName  string

	dt          float64
	duration    float64
	integrator  string
	seed        uint64
	adaptive    bool
	points      int
	sigma       float64
	noise       string
	chains      int
	samples     int
	warmup      int
	initMode    string
	observables []string
	method      string
	order       int
	maxOrder    int
	relTol      float64
	absTol      float64
	backend     string
	batchSize   int
	mcSamples   int

	// plot
	stateName string
	svgOut    string
	pairNames []string
	traceName string

	tableName   string
	exportQuery string
	benchPoints int

	sweepField  string
	sweepValues []float64
	sweepRange  []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "bayesode",
		Short:        "bayesian parameter estimation and uncertainty propagation for ODE models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return viz.SetTheme(themeName)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".bayesode", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "preset as model/name, or name with a model argument")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (rotated), - for stdout")
	rootCmd.PersistentFlags().StringVar(&logRotate, "log-rotate", "", "cron schedule rotating the log file, e.g. @daily")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "default", "output theme (default, minimal)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "simulate, infer, estimate densities and evaluate expectations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, pipeline.StageExpect)
		},
	}
	simulateCmd := &cobra.Command{
		Use:   "simulate [model]",
		Short: "generate a synthetic dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, pipeline.StageSimulate)
		},
	}
	inferCmd := &cobra.Command{
		Use:   "infer [model]",
		Short: "generate data and sample the posterior",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, pipeline.StageInfer)
		},
	}
	for _, c := range []*cobra.Command{runCmd, simulateCmd, inferCmd} {
		addRunFlags(c)
	}

	expectCmd := &cobra.Command{
		Use:   "expect [run_id]",
		Short: "re-evaluate expectations on a stored posterior",
		Args:  cobra.ExactArgs(1),
		RunE:  expectRun,
	}
	addExpectationFlags(expectCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run summary",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot data fit, marginal densities and chain traces",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&stateName, "state", "", "plot only this state")
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "also write the fit (or pair plot) as SVG")
	plotCmd.Flags().StringSliceVar(&pairNames, "pair", nil, "scatter the joint draws of two quantities")
	plotCmd.Flags().StringVar(&traceName, "trace", "", "plot chain traces of a quantity")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			id, err := resolveRun(st, args[0])
			if err != nil {
				return err
			}
			if exportQuery != "" {
				out, err := st.Query(id, exportQuery)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			return st.ExportJSON(id, cmd.OutOrStdout())
		},
	}
	exportCmd.Flags().StringVar(&exportQuery, "query", "", "print only the value at this JSON path, e.g. expectations.0.value")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a run table to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			id, err := resolveRun(st, args[0])
			if err != nil {
				return err
			}
			return st.CopyTable(id, tableName, cmd.OutOrStdout())
		},
	}
	exportCSVCmd.Flags().StringVar(&tableName, "table", "chain", "table to export (truth, dataset, chain)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators, priors, backends and observables",
		RunE:  listModels,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark the ensemble backends",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchBackends,
	}
	benchCmd.Flags().IntVar(&benchPoints, "points", 512, "parameter points per solve batch")
	benchCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	benchCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a YAML scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "repeat a run over values of one setting",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepField, "field", automation.FieldSigma, "setting to sweep (sigma, points, seed, samples)")
	sweepCmd.Flags().Float64SliceVar(&sweepValues, "values", nil, "values to sweep")
	sweepCmd.Flags().Float64SliceVar(&sweepRange, "range", nil, "evenly spaced values as lo,hi,count")

	rootCmd.AddCommand(runCmd, simulateCmd, inferCmd, expectCmd, listCmd, showCmd, plotCmd,
		exportCmd, exportCSVCmd, presetsCmd, modelsCmd, benchCmd, scenarioCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	f.Float64Var(&duration, "time", 0, "duration (0 keeps the model default)")
	f.StringVar(&integrator, "integrator", "rk4", "integrator")
	f.BoolVar(&adaptive, "adaptive", false, "adaptive stepping")
	f.Uint64Var(&seed, "seed", 1, "random seed")
	f.IntVar(&points, "points", config.DefaultPoints, "observation count")
	f.Float64Var(&sigma, "sigma", config.DefaultSigma, "noise scale")
	f.StringVar(&noise, "noise", "gaussian", "noise model")
	f.IntVar(&chains, "chains", config.DefaultChains, "chains")
	f.IntVar(&samples, "samples", config.DefaultSamples, "kept draws per chain")
	f.IntVar(&warmup, "warmup", config.DefaultWarmup, "warmup draws per chain")
	f.StringVar(&initMode, "init", "map", "chain initialisation (prior, mean, map)")
	addExpectationFlags(cmd)
}

func addExpectationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&observables, "observable", nil, "observable expressions, e.g. final:prey")
	f.StringVar(&method, "method", "koopman", "expectation method (koopman, montecarlo)")
	f.IntVar(&order, "order", 5, "initial quadrature order")
	f.IntVar(&maxOrder, "max-order", 15, "maximum quadrature order")
	f.Float64Var(&relTol, "rtol", 1e-4, "relative tolerance")
	f.Float64Var(&absTol, "atol", 1e-8, "absolute tolerance")
	f.StringVar(&backend, "backend", "auto", "ensemble backend (auto, cpu, lockstep, gpu)")
	f.IntVar(&batchSize, "batch", 1024, "solves per backend batch")
	f.IntVar(&mcSamples, "mc-samples", 10000, "monte carlo sample count")
}

// resolveConfig starts from the defaults, a preset or a config file, in
// that order of precedence, and applies every flag set on the command line.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		m, name, ok := config.ParsePresetName(preset)
		if !ok {
			m, name = model, preset
			if m == "" {
				m = cfg.Model
			}
		}
		p := config.GetPreset(m, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s/%s (available: %v)", m, name, config.ListPresets(m))
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if model != "" && model != cfg.Model {
		if preset != "" || configFile != "" {
			return nil, fmt.Errorf("model %s conflicts with configured model %s", model, cfg.Model)
		}
		cfg.Model = model
	}

	applyFlags(cmd, cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Lookup(name) != nil && f.Changed(name) {
			apply()
		}
	}
	set("dt", func() { cfg.Dt = dt })
	set("time", func() { cfg.Duration = duration })
	set("integrator", func() { cfg.Integrator = integrator })
	set("adaptive", func() { cfg.Adaptive = adaptive })
	set("seed", func() { cfg.Seed = seed })
	set("points", func() { cfg.Data.Points = points })
	set("sigma", func() { cfg.Data.Sigma = sigma })
	set("noise", func() { cfg.Data.Noise = noise })
	set("chains", func() { cfg.Inference.Chains = chains })
	set("samples", func() { cfg.Inference.Samples = samples })
	set("warmup", func() { cfg.Inference.Warmup = warmup })
	set("init", func() { cfg.Inference.Init = initMode })
	set("observable", func() { cfg.Expectation.Observables = observables })
	set("method", func() { cfg.Expectation.Method = method })
	set("order", func() { cfg.Expectation.Order = order })
	set("max-order", func() { cfg.Expectation.MaxOrder = maxOrder })
	set("rtol", func() { cfg.Expectation.RelTol = relTol })
	set("atol", func() { cfg.Expectation.AbsTol = absTol })
	set("backend", func() { cfg.Expectation.Backend = backend })
	set("batch", func() { cfg.Expectation.BatchSize = batchSize })
	set("mc-samples", func() { cfg.Expectation.Samples = mcSamples })
	set("log-level", func() { cfg.Logging.Level = logLevel })
	set("log-file", func() { cfg.Logging.Filename = logFile })
	set("log-rotate", func() { cfg.Logging.RotateSchedule = logRotate })
}

// newPipeline builds a pipeline logging per cfg. The returned func closes
// the log file.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	p := pipeline.New(cfg, experiment.NewRegistry(), storage.New(dataDir), logger)
	return p, func() { closer.Close() }, nil
}

func runPipeline(cmd *cobra.Command, args []string, last string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	p, done, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := p.RunUntil(ctx, last)
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep)
	}
	return err
}

func expectRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := resolveRun(st, args[0])
	if err != nil {
		return err
	}
	cfg, err := st.LoadConfig(id)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	p, done, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := p.Resume(ctx, id)
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep)
	}
	return err
}

// resolveRun maps "latest" to the newest stored run.
func resolveRun(st *storage.Store, id string) (string, error) {
	if id == "latest" {
		return st.Latest()
	}
	return id, nil
}

// maxPlots caps the number of states plotted per run.
const maxPlots = 4

func printReport(w io.Writer, rep *pipeline.Report) {
	exp := rep.Experiment
	title := exp.Info.Name
	if rep.RunID != "" {
		title = "run " + rep.RunID
	}
	fmt.Fprintln(w, viz.Title(title))

	pairs := [][2]string{
		{"model", exp.Info.Name},
		{"integrator", exp.Config.Integrator},
		{"span", fmt.Sprintf("[%g, %g]", exp.Problem.Span.Start, exp.Problem.Span.End)},
	}
	for _, s := range rep.Stages {
		pairs = append(pairs, [2]string{s, rep.Timings[s].String()})
	}
	fmt.Fprintln(w, viz.KeyValue(pairs...))

	if rep.Truth != nil {
		for j, name := range exp.Problem.StateNames {
			if j == maxPlots {
				break
			}
			fmt.Fprintln(w, viz.Fit(rep.Truth, rep.Dataset, rep.Predictive, j, name, viz.DefaultSize))
			fmt.Fprintln(w)
		}
	}
	if rep.Posterior != nil {
		viz.SummaryTable(w, rep.Summary())
	}
	for j, d := range rep.Densities {
		fmt.Fprintln(w, viz.DensityPlot(d, exp.Problem.ParamNames[j], viz.DefaultSize))
		fmt.Fprintln(w)
	}
	if len(rep.Expectations) > 0 {
		viz.ExpectationTable(w, rep.ExpectationRecords())
	}
	fmt.Fprint(w, viz.Warnings(rep.Warnings))
}
