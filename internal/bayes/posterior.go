package bayes

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/bayesode/internal/analysis"
)

// ChainDiagnostics summarises one chain on its own.
type ChainDiagnostics struct {
	AcceptanceRate float64
	Divergences    int
	Evaluations    int
	ESS            []float64
	Mean           []float64
	StdDev         []float64
	Elapsed        time.Duration
}

// Chain holds the draws of one independent sampling run, one row per draw.
type Chain struct {
	ID          int
	Seed        uint64
	Initial     []float64
	Samples     *mat.Dense
	Names       []string
	Diagnostics ChainDiagnostics
}

func newChain(id int, seed uint64, initial []float64, samples *mat.Dense, names []string, acceptance float64, divergences, evals int, elapsed time.Duration) *Chain {
	_, c := samples.Dims()
	diag := ChainDiagnostics{
		AcceptanceRate: acceptance,
		Divergences:    divergences,
		Evaluations:    evals,
		ESS:            make([]float64, c),
		Mean:           make([]float64, c),
		StdDev:         make([]float64, c),
		Elapsed:        elapsed,
	}
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, samples)
		diag.Mean[j], diag.StdDev[j] = stat.MeanStdDev(col, nil)
		diag.ESS[j] = analysis.EffectiveSampleSize(col)
	}
	return &Chain{ID: id, Seed: seed, Initial: initial, Samples: samples, Names: names, Diagnostics: diag}
}

// ChainFromSamples rebuilds a chain from stored draws. Sampler counters
// are not recoverable and stay zero; the acceptance rate is NaN since
// stored draws may be thinned.
func ChainFromSamples(id int, samples *mat.Dense, names []string) *Chain {
	return newChain(id, 0, nil, samples, names, math.NaN(), 0, 0, 0)
}

func (c *Chain) Len() int {
	r, _ := c.Samples.Dims()
	return r
}

// Column returns the draws of quantity j.
func (c *Chain) Column(j int) []float64 { return mat.Col(nil, j, c.Samples) }

// Posterior keeps independent chains apart alongside pooled views.
type Posterior struct {
	Chains []*Chain
	Names  []string
	// RHat is split R-hat per quantity; NaN when chains are too short.
	RHat []float64
	// MaxRHat is the convergence threshold used by Warnings and Converged.
	MaxRHat float64
}

func NewPosterior(chains []*Chain, names []string, maxRHat float64) *Posterior {
	p := &Posterior{Chains: chains, Names: names, MaxRHat: maxRHat, RHat: make([]float64, len(names))}
	for j := range names {
		cols := make([][]float64, len(chains))
		for i, c := range chains {
			cols[i] = c.Column(j)
		}
		r, err := analysis.SplitRHat(cols)
		if err != nil {
			r = math.NaN()
		}
		p.RHat[j] = r
	}
	return p
}

func (p *Posterior) Len() int {
	n := 0
	for _, c := range p.Chains {
		n += c.Len()
	}
	return n
}

// Pooled stacks every chain's draws. labels[i] is the chain ID of row i.
func (p *Posterior) Pooled() (samples *mat.Dense, labels []int) {
	samples = mat.NewDense(p.Len(), len(p.Names), nil)
	labels = make([]int, 0, p.Len())
	row := 0
	for _, c := range p.Chains {
		for i := 0; i < c.Len(); i++ {
			samples.SetRow(row, c.Samples.RawRowView(i))
			labels = append(labels, c.ID)
			row++
		}
	}
	return samples, labels
}

// Column returns the pooled draws of a named quantity.
func (p *Posterior) Column(name string) ([]float64, error) {
	for j, n := range p.Names {
		if n == name {
			return p.ColumnAt(j), nil
		}
	}
	return nil, fmt.Errorf("bayes: no quantity %q in posterior", name)
}

func (p *Posterior) ColumnAt(j int) []float64 {
	out := make([]float64, 0, p.Len())
	for _, c := range p.Chains {
		out = append(out, c.Column(j)...)
	}
	return out
}

// ParamSummary describes the pooled marginal of one quantity.
type ParamSummary struct {
	Name   string
	Mean   float64
	StdDev float64
	Q025   float64
	Q50    float64
	Q975   float64
	ESS    float64
	RHat   float64
}

func (p *Posterior) Summary() []ParamSummary {
	out := make([]ParamSummary, len(p.Names))
	for j, name := range p.Names {
		col := p.ColumnAt(j)
		mean, sd := stat.MeanStdDev(col, nil)
		sort.Float64s(col)
		ess := 0.0
		for _, c := range p.Chains {
			ess += c.Diagnostics.ESS[j]
		}
		out[j] = ParamSummary{
			Name:   name,
			Mean:   mean,
			StdDev: sd,
			Q025:   stat.Quantile(0.025, stat.Empirical, col, nil),
			Q50:    stat.Quantile(0.5, stat.Empirical, col, nil),
			Q975:   stat.Quantile(0.975, stat.Empirical, col, nil),
			ESS:    ess,
			RHat:   p.RHat[j],
		}
	}
	return out
}

// Mean is the pooled posterior mean of every quantity.
func (p *Posterior) Mean() []float64 {
	out := make([]float64, len(p.Names))
	for j := range p.Names {
		out[j] = stat.Mean(p.ColumnAt(j), nil)
	}
	return out
}

// Converged reports whether every R-hat is defined and below MaxRHat.
func (p *Posterior) Converged() bool {
	for _, r := range p.RHat {
		if math.IsNaN(r) || r > p.MaxRHat {
			return false
		}
	}
	return true
}

// Warnings lists every sign of non-convergence: high or undefined R-hat,
// chains with extreme acceptance rates, and chains that hit solver failures.
func (p *Posterior) Warnings() []string {
	var out []string
	for j, r := range p.RHat {
		switch {
		case math.IsNaN(r) && len(p.Chains) > 1:
			out = append(out, fmt.Sprintf("%s: split R-hat undefined (chains too short)", p.Names[j]))
		case r > p.MaxRHat:
			out = append(out, fmt.Sprintf("%s: split R-hat %.3f exceeds %.3f", p.Names[j], r, p.MaxRHat))
		}
	}
	for _, c := range p.Chains {
		d := c.Diagnostics
		if !math.IsNaN(d.AcceptanceRate) && (d.AcceptanceRate < 0.1 || d.AcceptanceRate > 0.9) {
			out = append(out, fmt.Sprintf("chain %d: acceptance rate %.2f outside [0.10, 0.90]", c.ID, d.AcceptanceRate))
		}
		if d.Divergences > 0 {
			out = append(out, fmt.Sprintf("chain %d: %d of %d solves failed", c.ID, d.Divergences, d.Evaluations))
		}
	}
	return out
}
