// Package export writes run figures as standalone SVG documents.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/synth"
	"github.com/san-kum/bayesode/internal/viz"
)

const (
	background  = "#0a0a0a"
	truthColor  = "#00ff88"
	bandColor   = "#4466aa"
	medianColor = "#00ccff"
	dataColor   = "#ff4444"
)

// CanvasToSVG converts a Braille canvas to SVG, one circle per lit dot.
func CanvasToSVG(w io.Writer, canvas *viz.Canvas, scale float64) error {
	if canvas == nil {
		return fmt.Errorf("export: nil canvas")
	}
	width := float64(canvas.Width) * scale * 2
	height := float64(canvas.Height) * scale * 4

	bw := bufio.NewWriter(w)
	header(bw, width, height)
	fmt.Fprintf(bw, "<g fill=%q>\n", truthColor)

	pixelMap := [4][2]int{
		{0x01, 0x08},
		{0x02, 0x10},
		{0x04, 0x20},
		{0x40, 0x80},
	}
	dotRadius := scale * 0.4
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			pattern := int(canvas.Grid[row][col] - 0x2800)
			if pattern <= 0 {
				continue
			}
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&pixelMap[dy][dx] != 0 {
						fmt.Fprintf(bw, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
							baseX+float64(dx)*scale+scale/2, baseY+float64(dy)*scale+scale/2, dotRadius)
					}
				}
			}
		}
	}
	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

func header(w *bufio.Writer, width, height float64) {
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill=%q/>
`, width, height, width, height, background)
}

// frame maps data coordinates onto a width x height image with 10% padding.
type frame struct {
	minX, minY, rangeX, rangeY float64
	width, height              float64
}

func newFrame(b viz.Bounds, width, height int) frame {
	rx, ry := b.XMax-b.XMin, b.YMax-b.YMin
	f := frame{
		minX: b.XMin - 0.1*rx, rangeX: 1.2 * rx,
		minY: b.YMin - 0.1*ry, rangeY: 1.2 * ry,
		width: float64(width), height: float64(height),
	}
	return f
}

func (f frame) at(x, y float64) (float64, float64) {
	return (x - f.minX) / f.rangeX * f.width, f.height - (y-f.minY)/f.rangeY*f.height
}

func (f frame) path(w *bufio.Writer, xs, ys []float64, stroke string, dashed bool) {
	dash := ""
	if dashed {
		dash = ` stroke-dasharray="4 3"`
	}
	fmt.Fprintf(w, `<path fill="none" stroke=%q stroke-width="1.5"%s d="`, stroke, dash)
	for i := range xs {
		px, py := f.at(xs[i], ys[i])
		if i == 0 {
			fmt.Fprintf(w, "M%.1f,%.1f", px, py)
		} else {
			fmt.Fprintf(w, " L%.1f,%.1f", px, py)
		}
	}
	w.WriteString("\"/>\n")
}

// FitSVG draws state j of the truth trajectory, the predictive band and
// the observations. Band and data may be nil.
func FitSVG(w io.Writer, truth *dynamo.Trajectory, data *synth.Dataset, band *bayes.Band, j, width, height int) error {
	if truth == nil || len(truth.Times) < 2 {
		return fmt.Errorf("export: trajectory needs at least two samples")
	}
	if j < 0 || j >= len(truth.States[0]) {
		return fmt.Errorf("export: state index %d out of range", j)
	}

	xs := append([]float64(nil), truth.Times...)
	ys := truth.Component(j)
	var lower, median, upper []float64
	if band != nil {
		for i := range band.Times {
			lower = append(lower, band.Lower[i][j])
			median = append(median, band.Median[i][j])
			upper = append(upper, band.Upper[i][j])
		}
	}
	var dataT, dataY []float64
	if data != nil {
		dataT = data.Times()
		dataY = data.Column(j)
	}

	allX := append(append(append([]float64(nil), xs...), dataT...), bandTimes(band)...)
	allY := append(append(append(append([]float64(nil), ys...), dataY...), lower...), upper...)
	for i := range allY {
		if math.IsNaN(allY[i]) {
			allY[i] = ys[0]
		}
	}
	for len(allX) < len(allY) {
		allX = append(allX, xs[0])
	}
	f := newFrame(viz.BoundsOf(allX, allY), width, height)

	bw := bufio.NewWriter(w)
	header(bw, f.width, f.height)
	if band != nil && len(band.Times) > 1 {
		fmt.Fprintf(bw, `<path fill=%q fill-opacity="0.35" stroke="none" d="`, bandColor)
		for i, t := range band.Times {
			px, py := f.at(t, upper[i])
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(bw, "%s%.1f,%.1f ", cmd, px, py)
		}
		for i := len(band.Times) - 1; i >= 0; i-- {
			px, py := f.at(band.Times[i], lower[i])
			fmt.Fprintf(bw, "L%.1f,%.1f ", px, py)
		}
		bw.WriteString("Z\"/>\n")
		f.path(bw, band.Times, median, medianColor, true)
	}
	f.path(bw, xs, ys, truthColor, false)
	for i := range dataT {
		px, py := f.at(dataT[i], dataY[i])
		fmt.Fprintf(bw, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"3\" fill=%q/>\n", px, py, dataColor)
	}
	bw.WriteString("</svg>\n")
	return bw.Flush()
}

func bandTimes(b *bayes.Band) []float64 {
	if b == nil {
		return nil
	}
	return b.Times
}
