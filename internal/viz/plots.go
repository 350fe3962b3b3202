package viz

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/synth"
)

// PlotSize is the character size of a plot area.
type PlotSize struct {
	Width, Height int
}

var DefaultSize = PlotSize{Width: 72, Height: 12}

// columns returns the times at the centre of each plot column.
func columns(lo, hi float64, n int) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = lo + (hi-lo)*float64(i)/float64(max(n-1, 1))
	}
	return ts
}

func increasing(xs []float64) bool {
	if len(xs) < 2 {
		return false
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}

// resample evaluates the series (xs, ys) at ts. A monotone cubic keeps the
// band between observation times free of overshoot.
func resample(xs, ys, ts []float64) []float64 {
	var pred interp.FittablePredictor = &interp.FritschButland{}
	if len(xs) == 2 {
		pred = &interp.PiecewiseLinear{}
	}
	out := make([]float64, len(ts))
	if err := pred.Fit(xs, ys); err != nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i, t := range ts {
		out[i] = pred.Predict(t)
	}
	return out
}

// Fit plots state j of the truth trajectory with the predictive band and
// the observations. Band and data may be nil.
func Fit(truth *dynamo.Trajectory, data *synth.Dataset, band *bayes.Band, j int, name string, size PlotSize) string {
	if truth == nil || len(truth.Times) < 2 {
		return ""
	}
	lo, hi := truth.Times[0], truth.Times[len(truth.Times)-1]
	ts := columns(lo, hi, size.Width)

	series := [][]float64{make([]float64, len(ts))}
	colors := []asciigraph.AnsiColor{theme.Series[0]}
	legends := []string{"truth"}
	for i, t := range ts {
		series[0][i] = truth.Interpolate(j, t)
	}

	if band != nil && increasing(band.Times) {
		for _, q := range [][][]float64{band.Lower, band.Median, band.Upper} {
			ys := make([]float64, len(q))
			for i, row := range q {
				ys[i] = row[j]
			}
			series = append(series, resample(band.Times, ys, ts))
		}
		colors = append(colors, theme.Series[1], theme.Series[2], theme.Series[1])
		legends = append(legends, "2.5%", "median", "97.5%")
	}

	if data != nil && data.Len() > 0 {
		s := make([]float64, len(ts))
		for i := range s {
			s[i] = math.NaN()
		}
		data.Each(func(_ int, t float64, obs dynamo.State) {
			i := int(math.Round((t - lo) / (hi - lo) * float64(len(ts)-1)))
			if i >= 0 && i < len(s) {
				s[i] = obs[j]
			}
		})
		series = append(series, s)
		colors = append(colors, theme.Series[3])
		legends = append(legends, "data")
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(size.Height),
		asciigraph.Caption(fmt.Sprintf("%s over [%g, %g]", name, lo, hi)),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(legends...),
	)
}

// DensityPlot draws d over its support.
func DensityPlot(d kde.Univariate, name string, size PlotSize) string {
	if d.PointMass() {
		return fmt.Sprintf("%s: point mass at %g\n", name, d.Mean())
	}
	lo, hi := d.Support()
	xs := columns(lo, hi, size.Width)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = d.Prob(x)
	}
	lb := 0.0
	return asciigraph.Plot(ys,
		asciigraph.Height(size.Height),
		asciigraph.LowerBound(lb),
		asciigraph.Caption(fmt.Sprintf("p(%s) on [%.4g, %.4g], mean %.4g sd %.3g", name, lo, hi, d.Mean(), d.StdDev())),
	)
}

// Trace plots one chain's draws of a quantity, resampled to the plot width.
func Trace(draws []float64, name string, size PlotSize) string {
	if len(draws) == 0 {
		return ""
	}
	return asciigraph.Plot(draws,
		asciigraph.Height(size.Height),
		asciigraph.Width(size.Width),
		asciigraph.Caption(fmt.Sprintf("trace of %s (%d draws)", name, len(draws))),
	)
}

// Pair scatters the joint draws of two quantities.
func Pair(xs, ys []float64, xName, yName string, size PlotSize) string {
	b := BoundsOf(xs, ys)
	c := Scatter(xs, ys, b, size.Width, size.Height)
	return fmt.Sprintf("%s %s [%.4g, %.4g]\n%s%s %s [%.4g, %.4g]\n",
		Label("y:"), yName, b.YMin, b.YMax, c, Label("x:"), xName, b.XMin, b.XMax)
}
