package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Params is an ordered parameter vector. Ordering is fixed by the System
// that consumes it and must be preserved by every stage.
type Params []float64

func (p Params) Clone() Params {
	c := make(Params, len(p))
	copy(c, p)
	return c
}

type System interface {
	Derive(x State, p Params, t float64) State
	StateDim() int
	ParamDim() int
}

// Func adapts a plain derivative function to System.
type Func struct {
	F       func(x State, p Params, t float64) State
	NStates int
	NParams int
}

func (f Func) Derive(x State, p Params, t float64) State { return f.F(x, p, t) }
func (f Func) StateDim() int                             { return f.NStates }
func (f Func) ParamDim() int                             { return f.NParams }

// Named is implemented by systems that can label their state and parameter slots.
type Named interface {
	StateNames() []string
	ParamNames() []string
}

type Config struct {
	Dt            float64
	Tolerance     float64
	AbsTolerance  float64
	MaxDt         float64
	MinDt         float64
	MaxSteps      int
	Adaptive      bool
	ValidateState bool
	// SaveAt lists the output times. Empty means every accepted step is kept.
	SaveAt []float64
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Tolerance:     1e-6,
		AbsTolerance:  1e-8,
		MaxDt:         0.5,
		MinDt:         1e-10,
		MaxSteps:      1_000_000,
		Adaptive:      false,
		ValidateState: true,
	}
}

// WithSaveAt returns a copy of the config with its own save grid.
func (c Config) WithSaveAt(times []float64) Config {
	c.SaveAt = append([]float64(nil), times...)
	return c
}

type SolveStats struct {
	Steps     int
	Rejected  int
	FuncEvals int
}

type Integrator interface {
	Name() string
	// Stages is the number of derivative evaluations per step.
	Stages() int
	Step(sys System, x State, p Params, t float64, dt float64) State
}

// AdaptiveIntegrator advances one trial step with an embedded error estimate.
// It returns the candidate state, a suggested next step size and whether the
// step met the tolerances.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, p Params, t, dt, rtol, atol float64) (State, float64, bool)
}

// SecondOrder is implemented by systems whose state is Positions()
// positions followed by the matching velocities.
type SecondOrder interface {
	System
	Positions() int
}

// Restricted is implemented by integrators that only solve some systems.
type Restricted interface {
	Supports(sys System) bool
}

// BatchSafe is implemented by integrators whose step sequence does not
// depend on the state, so many lanes can advance in lockstep.
type BatchSafe interface {
	BatchSafe() bool
}

// IsBatchSafe reports whether integ can run under lockstep batched execution.
func IsBatchSafe(integ Integrator) bool {
	b, ok := integ.(BatchSafe)
	return ok && b.BatchSafe()
}
