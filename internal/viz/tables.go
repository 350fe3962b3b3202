package viz

import (
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/san-kum/bayesode/internal/storage"
)

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleRounded
	style.Options.SeparateColumns = true
	style.Options.DrawBorder = true
	t.SetStyle(style)
	t.AppendHeader(table.Row(header))
	return t
}

func rightAligned(names ...string) []table.ColumnConfig {
	out := make([]table.ColumnConfig, len(names))
	for i, n := range names {
		out[i] = table.ColumnConfig{Name: n, Align: text.AlignRight}
	}
	return out
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}

// SummaryTable writes posterior marginals with their true values.
func SummaryTable(w io.Writer, rows []storage.ParamSummary) {
	t := newTable(w, "param", "truth", "mean", "sd", "2.5%", "50%", "97.5%", "ess", "rhat")
	t.SetColumnConfigs(rightAligned("truth", "mean", "sd", "2.5%", "50%", "97.5%", "ess", "rhat"))
	for _, r := range rows {
		t.AppendRow(table.Row{r.Name, num(r.Truth), num(r.Mean), num(r.StdDev),
			num(r.Q025), num(r.Q50), num(r.Q975), fmt.Sprintf("%.0f", r.ESS), fmt.Sprintf("%.3f", r.RHat)})
	}
	t.Render()
}

// ExpectationTable writes expectation results. Unconverged rows are
// flagged.
func ExpectationTable(w io.Writer, rows []storage.ExpectationRecord) {
	t := newTable(w, "observable", "value", "truth", "residual", "solves", "order", "method", "backend", "ms")
	t.SetColumnConfigs(rightAligned("value", "truth", "residual", "solves", "order", "ms"))
	for _, r := range rows {
		status := r.Method
		if !r.Converged {
			status += " " + Warn("(unconverged)")
		}
		t.AppendRow(table.Row{r.Observable, fmt.Sprintf("%.8g", r.Value), fmt.Sprintf("%.8g", r.Truth),
			fmt.Sprintf("%.2g", r.Residual), r.Evaluations, r.Order, status, r.Backend, fmt.Sprintf("%.1f", r.ElapsedMS)})
	}
	t.Render()
}

// RunTable lists stored runs.
func RunTable(w io.Writer, runs []storage.RunMetadata) {
	t := newTable(w, "id", "model", "time", "integrator", "stages", "chains", "samples", "converged")
	for _, r := range runs {
		conv := OK("yes")
		switch {
		case r.Chains == 0:
			conv = Label("-")
		case !r.Converged:
			conv = Warn("no")
		}
		t.AppendRow(table.Row{r.ID, r.Model, r.Timestamp.Format("2006-01-02 15:04:05"), r.Integrator,
			len(r.Stages), r.Chains, r.Samples, conv})
	}
	t.Render()
}

// ListTable writes a single-column listing with a title.
func ListTable(w io.Writer, title string, items []string) {
	t := newTable(w, title)
	for _, it := range items {
		t.AppendRow(table.Row{it})
	}
	t.Render()
}

// Table writes rows under header with numeric columns right aligned.
func Table(w io.Writer, header []string, rows [][]any) {
	h := make([]any, len(header))
	for i, s := range header {
		h[i] = s
	}
	t := newTable(w, h...)
	for _, r := range rows {
		t.AppendRow(table.Row(r))
	}
	t.Render()
}
