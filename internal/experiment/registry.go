package experiment

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/compute"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/integrators"
	"github.com/san-kum/bayesode/internal/metrics"
	"github.com/san-kum/bayesode/internal/models"
)

var ErrUnknown = errors.New("experiment: unknown name")

// Registry resolves configuration names to models, integrators, priors,
// backends and observables.
type Registry struct {
	models      map[string]func() models.Model
	integrators map[string]compute.IntegratorFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() models.Model),
		integrators: make(map[string]compute.IntegratorFactory),
	}

	r.models["lotka_volterra"] = func() models.Model { return models.NewLotkaVolterra() }
	r.models["decay"] = func() models.Model { return models.NewExponentialDecay() }
	r.models["logistic"] = func() models.Model { return models.NewLogistic() }
	r.models["lorenz"] = func() models.Model { return models.NewLorenz() }
	r.models["vanderpol"] = func() models.Model { return models.NewVanDerPol() }
	r.models["duffing"] = func() models.Model { return models.NewDuffing() }
	r.models["rossler"] = func() models.Model { return models.NewRossler() }
	r.models["pendulum"] = func() models.Model { return models.NewPendulum() }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }
	r.integrators["verlet"] = func() dynamo.Integrator { return integrators.NewVerlet() }

	return r
}

// RegisterModel adds or replaces a model.
func (r *Registry) RegisterModel(name string, fn func() models.Model) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (models.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: model %q (have %v)", ErrUnknown, name, r.ListModels())
	}
	return fn(), nil
}

// GetIntegrator returns a factory, since every concurrent solve needs its
// own integrator.
func (r *Registry) GetIntegrator(name string) (compute.IntegratorFactory, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: integrator %q (have %v)", ErrUnknown, name, r.ListIntegrators())
	}
	return fn, nil
}

func (r *Registry) GetBackend(name string, newInteg compute.IntegratorFactory, cfg dynamo.Config, logger *slog.Logger) (compute.Backend, error) {
	var integ dynamo.Integrator
	if newInteg != nil {
		integ = newInteg()
	}
	b, err := compute.New(name, integ, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: backend %q (have %v)", ErrUnknown, name, compute.Names())
	}
	return b, nil
}

func (r *Registry) GetPrior(spec bayes.Spec) (bayes.Prior, error) {
	return bayes.FromSpec(spec)
}

// GetObservable parses expr against the model's state names.
func (r *Registry) GetObservable(expr string, stateNames []string) (metrics.Observable, error) {
	return metrics.Parse(expr, stateNames)
}

// DefaultPrior is the prior used for a parameter the configuration leaves
// open: a normal around the reference value with half its magnitude as
// spread, truncated to positive values when the reference is positive.
func (r *Registry) DefaultPrior(value float64) (bayes.Prior, error) {
	sd := math.Max(math.Abs(value)/2, 0.1)
	p, err := bayes.Normal(value, sd)
	if err != nil {
		return nil, err
	}
	if value > 0 {
		return bayes.Truncated(p, 0, math.Inf(1))
	}
	return p, nil
}

// DefaultNoisePrior is InverseGamma(2, σ), whose mean is σ.
func (r *Registry) DefaultNoisePrior(sigma float64) (bayes.Prior, error) {
	if !(sigma > 0) {
		sigma = 0.1
	}
	return bayes.InverseGamma(2, sigma)
}

func (r *Registry) ListModels() []string      { return sortedKeys(r.models) }
func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListPriors() []string      { return bayes.Families() }
func (r *Registry) ListBackends() []string    { return compute.Names() }
func (r *Registry) ListObservables() []string { return metrics.Kinds() }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
