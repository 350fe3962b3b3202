// Package synth turns ground-truth trajectories into noisy observation
// datasets. A Dataset is immutable once built; accessors hand out copies.
package synth

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/dynamo"
)

var (
	ErrEmptyDataset = errors.New("synth: dataset has no observations")
	ErrInvalidData  = errors.New("synth: invalid observation")
)

// Dataset is a table of (time, observed state) rows.
type Dataset struct {
	times      []float64
	observed   []dynamo.State
	stateNames []string
}

// NewDataset copies its inputs and validates them.
func NewDataset(times []float64, observed []dynamo.State, stateNames []string) (*Dataset, error) {
	d := &Dataset{
		times:      append([]float64(nil), times...),
		observed:   make([]dynamo.State, len(observed)),
		stateNames: append([]string(nil), stateNames...),
	}
	for i, s := range observed {
		d.observed[i] = s.Clone()
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) Validate() error {
	if len(d.times) == 0 {
		return ErrEmptyDataset
	}
	if len(d.times) != len(d.observed) {
		return fmt.Errorf("%w: %d times but %d rows", ErrInvalidData, len(d.times), len(d.observed))
	}
	if !sort.Float64sAreSorted(d.times) {
		return fmt.Errorf("%w: times are not sorted", ErrInvalidData)
	}
	dim := len(d.observed[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-width rows", ErrInvalidData)
	}
	if len(d.stateNames) != 0 && len(d.stateNames) != dim {
		return fmt.Errorf("%w: %d names for %d columns", ErrInvalidData, len(d.stateNames), dim)
	}
	for i, s := range d.observed {
		if len(s) != dim {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidData, i, len(s), dim)
		}
		if !s.IsValid() || math.IsNaN(d.times[i]) {
			return fmt.Errorf("%w: row %d at t=%g is not finite", ErrInvalidData, i, d.times[i])
		}
		if i > 0 && d.times[i] == d.times[i-1] {
			return fmt.Errorf("%w: duplicate time %g", ErrInvalidData, d.times[i])
		}
	}
	return nil
}

func (d *Dataset) Len() int { return len(d.times) }
func (d *Dataset) Dim() int { return len(d.observed[0]) }

func (d *Dataset) Times() []float64 { return append([]float64(nil), d.times...) }

func (d *Dataset) StateNames() []string {
	if len(d.stateNames) == 0 {
		names := make([]string, d.Dim())
		for j := range names {
			names[j] = fmt.Sprintf("u%d", j)
		}
		return names
	}
	return append([]string(nil), d.stateNames...)
}

// Row returns a copy of observation i.
func (d *Dataset) Row(i int) (float64, dynamo.State) { return d.times[i], d.observed[i].Clone() }

// Column returns component j across all rows.
func (d *Dataset) Column(j int) []float64 {
	out := make([]float64, len(d.observed))
	for i, s := range d.observed {
		out[i] = s[j]
	}
	return out
}

// Matrix returns the observations as rows=time, cols=component.
func (d *Dataset) Matrix() *mat.Dense {
	m := mat.NewDense(d.Len(), d.Dim(), nil)
	for i, s := range d.observed {
		m.SetRow(i, s)
	}
	return m
}

// Span is the closed interval covered by the observation times.
func (d *Dataset) Span() (float64, float64) { return d.times[0], d.times[len(d.times)-1] }

// Each calls fn for every row without copying. fn must not retain or modify obs.
func (d *Dataset) Each(fn func(i int, t float64, obs dynamo.State)) {
	for i := range d.times {
		fn(i, d.times[i], d.observed[i])
	}
}
