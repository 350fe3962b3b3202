package koopman

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/metrics"
)

const (
	MethodKoopman    = "koopman"
	MethodMonteCarlo = "montecarlo"
)

// IndependentMarginals is the only supported joint density: the product of
// the per-parameter densities.
const IndependentMarginals = "independent-marginals"

var (
	ErrInvalidRequest = errors.New("koopman: invalid request")
	ErrZeroMass       = errors.New("koopman: density has no mass on the quadrature nodes")
	ErrTooManyNodes   = errors.New("koopman: quadrature grid exceeds evaluation budget")
)

type Request struct {
	Observable metrics.Observable
	Problem    *dynamo.Problem
	// Densities holds one marginal per problem parameter, in parameter order.
	Densities    []kde.Univariate
	SolverConfig dynamo.Config
	Integrator   compute.IntegratorFactory
	// Joint names how marginals combine. Empty means IndependentMarginals.
	Joint  string
	Method string

	Order     int
	OrderStep int
	MaxOrder  int
	RelTol    float64
	AbsTol    float64
	// MaxEvaluations bounds the solves of a single quadrature level.
	MaxEvaluations int

	// Samples and Seed drive the Monte Carlo method.
	Samples int
	Seed    uint64

	BatchSize int
	// Resolution is the number of intervals in the save grid built when the
	// observable names times and SolverConfig has no grid of its own.
	Resolution int
	Backend    compute.Backend
	Logger     *slog.Logger
}

// Defaults fills every zero field with its default.
func (r Request) Defaults() Request {
	if r.Joint == "" {
		r.Joint = IndependentMarginals
	}
	if r.Method == "" {
		r.Method = MethodKoopman
	}
	if r.Order == 0 {
		r.Order = 5
	}
	if r.OrderStep == 0 {
		r.OrderStep = 2
	}
	if r.MaxOrder == 0 {
		r.MaxOrder = 21
	}
	if r.RelTol == 0 && r.AbsTol == 0 {
		r.RelTol = 1e-6
		r.AbsTol = 1e-10
	}
	if r.MaxEvaluations == 0 {
		r.MaxEvaluations = 250_000
	}
	if r.Samples == 0 {
		r.Samples = 10_000
	}
	if r.BatchSize == 0 {
		r.BatchSize = 1024
	}
	if r.Resolution == 0 {
		r.Resolution = 200
	}
	return r
}

func (r Request) validate() error {
	switch {
	case r.Observable.Fn == nil:
		return fmt.Errorf("%w: observable has no function", ErrInvalidRequest)
	case r.Problem == nil:
		return fmt.Errorf("%w: nil problem", ErrInvalidRequest)
	case len(r.Densities) != len(r.Problem.Params):
		return fmt.Errorf("%w: %d densities for %d parameters", ErrInvalidRequest, len(r.Densities), len(r.Problem.Params))
	case r.Integrator == nil:
		return fmt.Errorf("%w: nil integrator factory", ErrInvalidRequest)
	case r.Joint != IndependentMarginals:
		return fmt.Errorf("%w: unsupported joint density %q", ErrInvalidRequest, r.Joint)
	case r.Order < 1 || r.OrderStep < 1 || r.MaxOrder < r.Order+r.OrderStep:
		return fmt.Errorf("%w: orders %d..%d step %d", ErrInvalidRequest, r.Order, r.MaxOrder, r.OrderStep)
	case r.RelTol < 0 || r.AbsTol < 0 || math.IsNaN(r.RelTol) || math.IsNaN(r.AbsTol):
		return fmt.Errorf("%w: negative tolerance", ErrInvalidRequest)
	case r.BatchSize < 1 || r.Samples < 2:
		return fmt.Errorf("%w: batch size %d, samples %d", ErrInvalidRequest, r.BatchSize, r.Samples)
	}
	for i, d := range r.Densities {
		if d == nil {
			return fmt.Errorf("%w: missing density for %s", ErrInvalidRequest, r.Problem.ParamNames[i])
		}
		if lo, hi := d.Support(); !d.PointMass() && (!(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0)) {
			return fmt.Errorf("%w: density for %s has support [%g, %g]", ErrInvalidRequest, r.Problem.ParamNames[i], lo, hi)
		}
	}
	switch r.Method {
	case MethodKoopman, MethodMonteCarlo:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, r.Method)
	}
	return nil
}

// Result is an expectation estimate with its error indicator. Converged is
// false when the tolerance was not met; Value is still the best estimate.
type Result struct {
	Observable  string
	Value       float64
	Residual    float64
	Evaluations int
	Order       int
	Converged   bool
	Method      string
	Assumption  string
	Backend     string
	Elapsed     time.Duration
}

func (r *Result) String() string {
	return fmt.Sprintf("E[%s] = %.8g ± %.2g (%s, %d solves)", r.Observable, r.Value, r.Residual, r.Method, r.Evaluations)
}
