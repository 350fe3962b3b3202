package kde

import (
	"math"
	"math/rand/v2"
)

// Dirac is a point mass at Value.
type Dirac struct {
	Value float64
}

func NewDirac(v float64) *Dirac { return &Dirac{Value: v} }

func (d *Dirac) Prob(x float64) float64 {
	if x == d.Value {
		return math.Inf(1)
	}
	return 0
}

func (d *Dirac) LogProb(x float64) float64 { return math.Log(d.Prob(x)) }

func (d *Dirac) CDF(x float64) float64 {
	if x < d.Value {
		return 0
	}
	return 1
}

func (d *Dirac) Rand(*rand.Rand) float64     { return d.Value }
func (d *Dirac) Mean() float64               { return d.Value }
func (d *Dirac) StdDev() float64             { return 0 }
func (d *Dirac) Support() (float64, float64) { return d.Value, d.Value }
func (d *Dirac) PointMass() bool             { return true }
func (d *Dirac) Mode() float64               { return d.Value }
func (d *Dirac) Quantile(float64) float64    { return d.Value }
