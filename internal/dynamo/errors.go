package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for problem construction and solving.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the integration became numerically unstable.
	ErrUnstable = errors.New("dynamo: solve unstable (state diverged)")

	// ErrDimensionMismatch indicates mismatched state/parameter dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between problem and system")

	// ErrInvalidTimeSpan indicates a span whose end is not after its start.
	ErrInvalidTimeSpan = errors.New("dynamo: invalid time span")

	// ErrInvalidSaveAt indicates output times that are unsorted or outside the span.
	ErrInvalidSaveAt = errors.New("dynamo: invalid save times")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrMaxSteps indicates the step budget was exhausted before reaching the end of the span.
	ErrMaxSteps = errors.New("dynamo: maximum number of steps exceeded")

	// ErrContextCanceled indicates the solve was interrupted.
	ErrContextCanceled = errors.New("dynamo: solve canceled by context")
)

// SimulationError wraps an error with solve context, including the
// parameter point that was being integrated.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Params  Params
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("%v (step %d, t=%.6g, params=%v)", e.Wrapped, e.Step, e.Time, []float64(e.Params))
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// PointError reports which member of a batch failed.
type PointError struct {
	Index  int
	Params Params
	Err    error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("parameter point %d %v: %v", e.Index, []float64(e.Params), e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }
