package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/experiment"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/models"
	"github.com/san-kum/bayesode/internal/viz"
)

func listModels(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := cmd.OutOrStdout()

	var rows [][]any
	for _, name := range reg.ListModels() {
		m, err := reg.GetModel(name)
		if err != nil {
			return err
		}
		info := m.Describe()
		params := make([]string, len(info.ParamNames))
		for i, p := range info.ParamNames {
			params[i] = fmt.Sprintf("%s=%g", p, info.DefaultParams[i])
		}
		rows = append(rows, []any{name, strings.Join(info.StateNames, ", "), strings.Join(params, ", "),
			fmt.Sprintf("[%g, %g]", info.DefaultSpan.Start, info.DefaultSpan.End), info.Description})
	}
	viz.Table(w, []string{"model", "states", "params", "span", "description"}, rows)

	viz.ListTable(w, "integrator", reg.ListIntegrators())
	viz.ListTable(w, "prior", reg.ListPriors())
	viz.ListTable(w, "backend", reg.ListBackends())
	viz.ListTable(w, "observable", reg.ListObservables())
	return nil
}

// benchBackends solves the same batch of perturbed parameter points on every
// backend and compares the final states with the cpu backend.
func benchBackends(cmd *cobra.Command, args []string) error {
	model := "lotka_volterra"
	if len(args) > 0 {
		model = args[0]
	}
	reg := experiment.NewRegistry()
	m, err := reg.GetModel(model)
	if err != nil {
		return err
	}
	newInteg, err := reg.GetIntegrator(integrator)
	if err != nil {
		return err
	}
	prob, err := models.DefaultProblem(m)
	if err != nil {
		return err
	}
	cfg := dynamo.DefaultConfig()
	cfg.Dt = dt

	rng := rand.New(rand.NewPCG(1, 2))
	params := make([]dynamo.Params, benchPoints)
	for i := range params {
		p := prob.Params.Clone()
		for k := range p {
			p[k] *= 1 + 0.1*(rng.Float64()-0.5)
		}
		params[i] = p
	}

	logger, closer, err := logging.New(logging.Config{Level: logLevel, Console: true})
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "benchmarking %s: %d solves over [%g, %g], %s dt=%g\n\n",
		model, benchPoints, prob.Span.Start, prob.Span.End, integrator, dt)

	var reference []*dynamo.Trajectory
	var rows [][]any
	for _, name := range []string{"cpu", "lockstep", "gpu", "auto"} {
		b, err := reg.GetBackend(name, newInteg, cfg, logger)
		if err != nil {
			return err
		}
		start := time.Now()
		trajs, err := b.SolveMany(context.Background(), prob, params, cfg, newInteg)
		elapsed := time.Since(start)
		label := b.Name()
		b.Cleanup()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if reference == nil {
			reference = trajs
		}

		diff := 0.0
		for i, tr := range trajs {
			want := reference[i].Final()
			for k, v := range tr.Final() {
				diff = math.Max(diff, math.Abs(v-want[k]))
			}
		}
		rows = append(rows, []any{label, len(trajs), elapsed.Round(time.Microsecond).String(),
			fmt.Sprintf("%.0f", float64(len(trajs))/elapsed.Seconds()), fmt.Sprintf("%.1e", diff)})
	}
	viz.Table(cmd.OutOrStdout(), []string{"backend", "solves", "time", "solves/s", "max |Δ| vs cpu"}, rows)
	return nil
}
