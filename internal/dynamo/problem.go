package dynamo

import (
	"fmt"
	"math"
	"sort"
)

type TimeSpan struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

func (s TimeSpan) Validate() error {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		return fmt.Errorf("%w: non-finite bound [%g, %g]", ErrInvalidTimeSpan, s.Start, s.End)
	}
	if s.End <= s.Start {
		return fmt.Errorf("%w: end %g is not after start %g", ErrInvalidTimeSpan, s.End, s.Start)
	}
	return nil
}

func (s TimeSpan) Duration() float64 { return s.End - s.Start }

// Contains reports whether t lies in the closed span.
func (s TimeSpan) Contains(t float64) bool { return t >= s.Start && t <= s.End }

// Grid returns n+1 evenly spaced times covering the span, both ends included.
func (s TimeSpan) Grid(n int) []float64 {
	if n < 1 {
		n = 1
	}
	times := make([]float64, n+1)
	step := s.Duration() / float64(n)
	for i := range times {
		times[i] = s.Start + float64(i)*step
	}
	times[n] = s.End
	return times
}

// Problem is the immutable model definition: a system, its initial
// state, time span and parameter vector.
type Problem struct {
	System     System
	U0         State
	Span       TimeSpan
	Params     Params
	StateNames []string
	ParamNames []string
}

// NewProblem validates dimensions and the time span before any solve is attempted.
func NewProblem(sys System, u0 State, span TimeSpan, p Params) (*Problem, error) {
	if sys == nil {
		return nil, fmt.Errorf("dynamo: nil system")
	}
	if err := span.Validate(); err != nil {
		return nil, err
	}
	if len(u0) != sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, system expects %d",
			ErrDimensionMismatch, len(u0), sys.StateDim())
	}
	if len(p) != sys.ParamDim() {
		return nil, fmt.Errorf("%w: parameter vector has %d entries, system expects %d",
			ErrDimensionMismatch, len(p), sys.ParamDim())
	}
	if !u0.IsValid() {
		return nil, fmt.Errorf("%w: initial state %v", ErrInvalidState, []float64(u0))
	}

	prob := &Problem{
		System: sys,
		U0:     u0.Clone(),
		Span:   span,
		Params: p.Clone(),
	}
	if named, ok := sys.(Named); ok {
		prob.StateNames = named.StateNames()
		prob.ParamNames = named.ParamNames()
	}
	if prob.StateNames == nil {
		prob.StateNames = defaultNames("u", sys.StateDim())
	}
	if prob.ParamNames == nil {
		prob.ParamNames = defaultNames("p", sys.ParamDim())
	}
	return prob, nil
}

// Remake returns a copy of the problem carrying its own parameter vector.
// The system and initial state are shared read-only.
func (p *Problem) Remake(params Params) (*Problem, error) {
	if len(params) != p.System.ParamDim() {
		return nil, fmt.Errorf("%w: parameter vector has %d entries, system expects %d",
			ErrDimensionMismatch, len(params), p.System.ParamDim())
	}
	c := *p
	c.Params = params.Clone()
	return &c, nil
}

// ValidateSaveAt checks that output times are sorted and inside the span.
func (p *Problem) ValidateSaveAt(times []float64) error {
	if !sort.Float64sAreSorted(times) {
		return fmt.Errorf("%w: not sorted", ErrInvalidSaveAt)
	}
	for i, t := range times {
		if !p.Span.Contains(t) {
			return fmt.Errorf("%w: t[%d]=%g outside [%g, %g]", ErrInvalidSaveAt, i, t, p.Span.Start, p.Span.End)
		}
		if i > 0 && t == times[i-1] {
			return fmt.Errorf("%w: duplicate time %g", ErrInvalidSaveAt, t)
		}
	}
	return nil
}

func defaultNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return names
}
