package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
	return c
}

// Set lights the dot at (x, y) in sub-pixel coordinates. The canvas is
// (Width*2) x (Height*4) sub-pixels; y grows downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Lit counts the dots that are set.
func (c *Canvas) Lit() int {
	n := 0
	for _, row := range c.Grid {
		for _, r := range row {
			for bits := int(r - blank); bits > 0; bits &= bits - 1 {
				n++
			}
		}
	}
	return n
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Bounds is a plotting window.
type Bounds struct {
	XMin, XMax, YMin, YMax float64
}

// BoundsOf returns the range of xs and ys, widened where it is empty.
func BoundsOf(xs, ys []float64) Bounds {
	b := Bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for i := range xs {
		b.XMin, b.XMax = math.Min(b.XMin, xs[i]), math.Max(b.XMax, xs[i])
		b.YMin, b.YMax = math.Min(b.YMin, ys[i]), math.Max(b.YMax, ys[i])
	}
	if !(b.XMax > b.XMin) {
		b.XMin, b.XMax = b.XMin-0.5, b.XMin+0.5
	}
	if !(b.YMax > b.YMin) {
		b.YMin, b.YMax = b.YMin-0.5, b.YMin+0.5
	}
	return b
}

// Scatter plots the points (xs[i], ys[i]) on a canvas of w x h cells.
// Points outside bounds are dropped.
func Scatter(xs, ys []float64, bounds Bounds, w, h int) *Canvas {
	c := NewCanvas(w, h)
	pw, ph := float64(2*w-1), float64(4*h-1)
	for i := range xs {
		if i >= len(ys) || math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		fx := (xs[i] - bounds.XMin) / (bounds.XMax - bounds.XMin)
		fy := (ys[i] - bounds.YMin) / (bounds.YMax - bounds.YMin)
		if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
			continue
		}
		c.Set(int(math.Round(fx*pw)), int(math.Round((1-fy)*ph)))
	}
	return c
}
