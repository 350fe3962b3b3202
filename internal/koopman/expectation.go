package koopman

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/logging"
	"github.com/san-kum/bayesode/internal/sim"
)

// Expectation computes E[Observable(trajectory)] over the product of
// req.Densities. Constant observables return immediately without solving.
func Expectation(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req = req.Defaults()
	if err := req.validate(); err != nil {
		return nil, err
	}
	logger := logging.OrDiscard(req.Logger)

	res := &Result{
		Observable: req.Observable.String(),
		Method:     req.Method,
		Assumption: req.Joint,
	}
	if req.Observable.Const {
		res.Value = req.Observable.Eval(nil)
		res.Converged = true
		res.Elapsed = time.Since(start)
		return res, nil
	}

	cfg, err := saveGrid(req)
	if err != nil {
		return nil, err
	}
	backend := req.Backend
	if backend == nil {
		backend = compute.AutoSelectBackend(req.Integrator(), cfg, logger)
		defer backend.Cleanup()
	}
	res.Backend = backend.Name()

	e := &evaluator{req: req, cfg: cfg, backend: backend, logger: logger}
	switch req.Method {
	case MethodMonteCarlo:
		err = e.monteCarlo(ctx, res)
	default:
		err = e.quadrature(ctx, res)
	}
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	if !res.Converged {
		logger.Warn("expectation did not converge", "observable", res.Observable,
			"method", res.Method, "order", res.Order, "residual", res.Residual)
	}
	return res, nil
}

type evaluator struct {
	req     Request
	cfg     dynamo.Config
	backend compute.Backend
	logger  *slog.Logger
}

func (e *evaluator) tolerance(v float64) float64 {
	return math.Max(e.req.AbsTol, e.req.RelTol*math.Abs(v))
}

// quadrature raises the rule order by OrderStep until two successive
// estimates agree within tolerance or MaxOrder is reached.
func (e *evaluator) quadrature(ctx context.Context, res *Result) error {
	order := e.req.Order
	value, n, err := e.level(ctx, order)
	if err != nil {
		return err
	}
	res.Evaluations += n
	res.Residual = math.Inf(1)

	for order+e.req.OrderStep <= e.req.MaxOrder {
		next := order + e.req.OrderStep
		v, n, err := e.level(ctx, next)
		if err != nil {
			return err
		}
		res.Evaluations += n
		res.Residual = math.Abs(v - value)
		order, value = next, v
		e.logger.Debug("quadrature level", "order", order, "nodes", n, "value", v, "residual", res.Residual)
		if res.Residual <= e.tolerance(v) {
			res.Converged = true
			break
		}
	}
	res.Value = value
	res.Order = order
	return nil
}

// level evaluates the tensor-product rule with order nodes per dimension.
// Point-mass dimensions contribute a single node of weight 1.
func (e *evaluator) level(ctx context.Context, order int) (float64, int, error) {
	dims := len(e.req.Densities)
	xs := make([][]float64, dims)
	ws := make([][]float64, dims)
	total := 1
	for j, d := range e.req.Densities {
		if d.PointMass() {
			xs[j], ws[j] = []float64{d.Mean()}, []float64{1}
		} else {
			lo, hi := d.Support()
			xs[j], ws[j] = make([]float64, order), make([]float64, order)
			quad.Legendre{}.FixedLocations(xs[j], ws[j], lo, hi)
			for k, x := range xs[j] {
				ws[j][k] *= d.Prob(x)
			}
		}
		total *= len(xs[j])
		if total > e.req.MaxEvaluations {
			return 0, 0, fmt.Errorf("%w: order %d needs more than %d solves", ErrTooManyNodes, order, e.req.MaxEvaluations)
		}
	}

	params := make([]dynamo.Params, 0, total)
	weights := make([]float64, 0, total)
	idx := make([]int, dims)
	for n := 0; n < total; n++ {
		p := e.req.Problem.Params.Clone()
		w := 1.0
		for j := range idx {
			p[j] = xs[j][idx[j]]
			w *= ws[j][idx[j]]
		}
		if w > 0 {
			params = append(params, p)
			weights = append(weights, w)
		}
		for j := dims - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < len(xs[j]) {
				break
			}
			idx[j] = 0
		}
	}

	mass := floats.Sum(weights)
	if !(mass > 0) {
		return 0, 0, fmt.Errorf("%w (order %d)", ErrZeroMass, order)
	}
	values, err := e.evaluate(ctx, params)
	if err != nil {
		return 0, 0, err
	}
	return floats.Dot(weights, values) / mass, len(params), nil
}

// monteCarlo averages the observable over independent draws; the residual
// is the standard error of the mean.
func (e *evaluator) monteCarlo(ctx context.Context, res *Result) error {
	rng := rand.New(rand.NewPCG(e.req.Seed, e.req.Seed^0x9e3779b97f4a7c15))
	params := make([]dynamo.Params, e.req.Samples)
	for i := range params {
		p := e.req.Problem.Params.Clone()
		for j, d := range e.req.Densities {
			p[j] = d.Rand(rng)
		}
		params[i] = p
	}
	values, err := e.evaluate(ctx, params)
	if err != nil {
		return err
	}
	mean, sd := stat.MeanStdDev(values, nil)
	res.Value = mean
	res.Residual = sd / math.Sqrt(float64(len(values)))
	res.Evaluations = len(values)
	res.Converged = res.Residual <= e.tolerance(mean)
	return nil
}

// evaluate solves every parameter point in batches of BatchSize and applies
// the observable to each trajectory.
func (e *evaluator) evaluate(ctx context.Context, params []dynamo.Params) ([]float64, error) {
	out := make([]float64, len(params))
	for start := 0; start < len(params); start += e.req.BatchSize {
		end := min(start+e.req.BatchSize, len(params))
		trajs, err := e.backend.SolveMany(ctx, e.req.Problem, params[start:end], e.cfg, e.req.Integrator)
		if err != nil {
			var pe *dynamo.PointError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("koopman: %w", &dynamo.PointError{Index: start + pe.Index, Params: pe.Params, Err: pe.Err})
			}
			return nil, fmt.Errorf("koopman: %w", err)
		}
		for k, tr := range trajs {
			v := e.req.Observable.Eval(tr)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("koopman: observable %s is %g at %v", e.req.Observable, v, params[start+k])
			}
			out[start+k] = v
		}
	}
	return out, nil
}

// saveGrid adds the observable's read times to the solver's save grid,
// building a uniform grid first when the config has none.
func saveGrid(req Request) (dynamo.Config, error) {
	cfg := req.SolverConfig
	if len(req.Observable.Times) == 0 {
		return cfg, nil
	}
	span := req.Problem.Span
	for _, t := range req.Observable.Times {
		if !span.Contains(t) {
			return cfg, fmt.Errorf("%w: observable %s reads t=%g outside [%g, %g]", ErrInvalidRequest, req.Observable, t, span.Start, span.End)
		}
	}
	base := cfg.SaveAt
	if len(base) == 0 {
		base = span.Grid(req.Resolution)
	}
	return cfg.WithSaveAt(mergeTimes(base, req.Observable.Times, sim.TimeEpsilon(span))), nil
}

func mergeTimes(a, b []float64, eps float64) []float64 {
	all := append(append([]float64(nil), a...), b...)
	sort.Float64s(all)
	out := all[:1]
	for _, t := range all[1:] {
		if t-out[len(out)-1] > eps {
			out = append(out, t)
		}
	}
	return out
}
