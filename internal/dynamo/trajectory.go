package dynamo

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Trajectory holds the samples of a single solve. It is read-only once
// returned by a solver.
type Trajectory struct {
	Times  []float64
	States []State
	Params Params
	Stats  SolveStats
}

func (tr *Trajectory) Len() int { return len(tr.Times) }

func (tr *Trajectory) At(i int) (float64, State) { return tr.Times[i], tr.States[i] }

func (tr *Trajectory) Final() State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

// Component returns the j-th state component across all samples.
func (tr *Trajectory) Component(j int) []float64 {
	out := make([]float64, len(tr.States))
	for i, s := range tr.States {
		out[i] = s[j]
	}
	return out
}

// Interpolate returns component j at time t by linear interpolation between
// stored samples. Times outside the stored range clamp to the end points.
func (tr *Trajectory) Interpolate(j int, t float64) float64 {
	n := len(tr.Times)
	if n == 0 {
		return 0
	}
	if t <= tr.Times[0] {
		return tr.States[0][j]
	}
	if t >= tr.Times[n-1] {
		return tr.States[n-1][j]
	}
	k := sort.SearchFloat64s(tr.Times, t)
	if tr.Times[k] == t {
		return tr.States[k][j]
	}
	t0, t1 := tr.Times[k-1], tr.Times[k]
	w := (t - t0) / (t1 - t0)
	return tr.States[k-1][j]*(1-w) + tr.States[k][j]*w
}

// Matrix returns the states as a rows=time, cols=state matrix.
func (tr *Trajectory) Matrix() *mat.Dense {
	if len(tr.States) == 0 {
		return nil
	}
	m := mat.NewDense(len(tr.States), len(tr.States[0]), nil)
	for i, s := range tr.States {
		m.SetRow(i, s)
	}
	return m
}
