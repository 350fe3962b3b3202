package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// Noise perturbs a single observed value.
type Noise interface {
	Name() string
	Perturb(x float64) float64
}

// Additive adds independent N(0, σ²) draws. σ = 0 leaves values untouched.
type Additive struct {
	sigma float64
	dist  distuv.Normal
}

func NewAdditive(sigma float64, src rand.Source) (*Additive, error) {
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("synth: noise sigma must be non-negative, got %g", sigma)
	}
	return &Additive{sigma: sigma, dist: distuv.Normal{Mu: 0, Sigma: sigma, Src: src}}, nil
}

func (a *Additive) Name() string { return "gaussian" }

func (a *Additive) Perturb(x float64) float64 {
	if a.sigma == 0 {
		return x
	}
	return x + a.dist.Rand()
}

// Multiplicative scales values by (1 + ε), ε ~ N(0, σ²).
type Multiplicative struct {
	sigma float64
	dist  distuv.Normal
}

func NewMultiplicative(sigma float64, src rand.Source) (*Multiplicative, error) {
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("synth: noise sigma must be non-negative, got %g", sigma)
	}
	return &Multiplicative{sigma: sigma, dist: distuv.Normal{Mu: 0, Sigma: sigma, Src: src}}, nil
}

func (m *Multiplicative) Name() string { return "multiplicative" }

func (m *Multiplicative) Perturb(x float64) float64 {
	if m.sigma == 0 {
		return x
	}
	return x * (1 + m.dist.Rand())
}

// Rander wraps any gonum distribution as additive noise.
type Rander struct {
	Dist distuv.Rander
}

func (r Rander) Name() string              { return "custom" }
func (r Rander) Perturb(x float64) float64 { return x + r.Dist.Rand() }

// NewNoise builds a noise model by kind: "gaussian", "multiplicative" or "none".
func NewNoise(kind string, sigma float64, seed uint64) (Noise, error) {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	switch kind {
	case "", "gaussian", "normal":
		return NewAdditive(sigma, src)
	case "multiplicative":
		return NewMultiplicative(sigma, src)
	case "none":
		return NewAdditive(0, src)
	default:
		return nil, fmt.Errorf("synth: unknown noise kind %q", kind)
	}
}

// Generate perturbs every recorded component of traj independently.
// The trajectory itself is not modified.
func Generate(traj *dynamo.Trajectory, stateNames []string, noise Noise) (*Dataset, error) {
	if traj == nil || traj.Len() == 0 {
		return nil, fmt.Errorf("synth: %w", ErrEmptyDataset)
	}
	if noise == nil {
		return nil, fmt.Errorf("synth: nil noise model")
	}
	observed := make([]dynamo.State, traj.Len())
	for i, s := range traj.States {
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: trajectory sample %d at t=%g is not finite", ErrInvalidData, i, traj.Times[i])
		}
		row := make(dynamo.State, len(s))
		for j, v := range s {
			row[j] = noise.Perturb(v)
		}
		observed[i] = row
	}
	return NewDataset(traj.Times, observed, stateNames)
}
