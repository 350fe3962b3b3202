// Package metrics defines observables: pure scalar functions of a solved
// trajectory whose expectations the koopman package evaluates.
package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Observable maps a trajectory to a scalar. Fn must be pure.
type Observable struct {
	Name string
	Fn   func(tr *dynamo.Trajectory) float64
	// Times lists the instants Fn reads. Solvers add them to the save grid
	// so point evaluations land on recorded samples.
	Times []float64
	// Const is set when Fn ignores the trajectory entirely.
	Const bool
}

func (o Observable) String() string { return o.Name }

func (o Observable) Eval(tr *dynamo.Trajectory) float64 { return o.Fn(tr) }

// Constant returns c for every trajectory.
func Constant(c float64) Observable {
	return Observable{
		Name:  fmt.Sprintf("const(%g)", c),
		Fn:    func(*dynamo.Trajectory) float64 { return c },
		Const: true,
	}
}

// Component reads state j at sample index i. Negative i counts from the end.
func Component(j, i int) Observable {
	return Observable{
		Name: fmt.Sprintf("u%d[%d]", j, i),
		Fn: func(tr *dynamo.Trajectory) float64 {
			k := i
			if k < 0 {
				k += tr.Len()
			}
			return tr.States[k][j]
		},
	}
}

// ComponentAt reads state j at time t, interpolating linearly between samples.
func ComponentAt(j int, t float64) Observable {
	return Observable{
		Name:  fmt.Sprintf("u%d(t=%g)", j, t),
		Fn:    func(tr *dynamo.Trajectory) float64 { return tr.Interpolate(j, t) },
		Times: []float64{t},
	}
}

// Final reads state j at the end of the span.
func Final(j int) Observable {
	o := Component(j, -1)
	o.Name = fmt.Sprintf("final(u%d)", j)
	return o
}

// TimeAverage is the trapezoidal time mean of state j over the recorded samples.
func TimeAverage(j int) Observable {
	return Observable{
		Name: fmt.Sprintf("mean(u%d)", j),
		Fn: func(tr *dynamo.Trajectory) float64 {
			n := tr.Len()
			if n == 1 {
				return tr.States[0][j]
			}
			area := 0.0
			for k := 1; k < n; k++ {
				area += 0.5 * (tr.States[k][j] + tr.States[k-1][j]) * (tr.Times[k] - tr.Times[k-1])
			}
			return area / (tr.Times[n-1] - tr.Times[0])
		},
	}
}

func Max(j int) Observable {
	return Observable{
		Name: fmt.Sprintf("max(u%d)", j),
		Fn: func(tr *dynamo.Trajectory) float64 {
			m := math.Inf(-1)
			for _, s := range tr.States {
				m = math.Max(m, s[j])
			}
			return m
		},
	}
}

func Min(j int) Observable {
	return Observable{
		Name: fmt.Sprintf("min(u%d)", j),
		Fn: func(tr *dynamo.Trajectory) float64 {
			m := math.Inf(1)
			for _, s := range tr.States {
				m = math.Min(m, s[j])
			}
			return m
		},
	}
}

// SumOver restricts the observable to the given times and sums state j there.
func SumOver(j int, times []float64) Observable {
	ts := append([]float64(nil), times...)
	return Observable{
		Name: fmt.Sprintf("sum(u%d@%v)", j, ts),
		Fn: func(tr *dynamo.Trajectory) float64 {
			sum := 0.0
			for _, t := range ts {
				sum += tr.Interpolate(j, t)
			}
			return sum
		},
		Times: ts,
	}
}
