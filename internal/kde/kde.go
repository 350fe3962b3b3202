// Package kde builds continuous marginal densities from posterior samples.
//
// Estimation is a pure transform: a Density is immutable and safe for
// concurrent use. Random draws take an explicit *rand.Rand.
package kde

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrTooFewSamples    = errors.New("kde: need at least 2 samples")
	ErrZeroSpread       = errors.New("kde: samples have zero spread")
	ErrInvalidSample    = errors.New("kde: non-finite sample")
	ErrInvalidBandwidth = errors.New("kde: bandwidth must be positive")
)

// Univariate is a one-dimensional density usable for quadrature and sampling.
type Univariate interface {
	Prob(x float64) float64
	LogProb(x float64) float64
	CDF(x float64) float64
	Rand(rng *rand.Rand) float64
	Mean() float64
	StdDev() float64
	// Support is the interval outside which the density is negligible.
	Support() (lo, hi float64)
	// PointMass reports whether all mass sits at Mean().
	PointMass() bool
}

type Rule int

const (
	Silverman Rule = iota
	Scott
)

func (r Rule) String() string {
	switch r {
	case Silverman:
		return "silverman"
	case Scott:
		return "scott"
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// ParseRule maps a config name to a Rule.
func ParseRule(name string) (Rule, error) {
	switch name {
	case "", "silverman":
		return Silverman, nil
	case "scott":
		return Scott, nil
	}
	return 0, fmt.Errorf("kde: unknown bandwidth rule %q", name)
}

type options struct {
	rule            Rule
	bandwidth       float64
	allowDegenerate bool
	tails           float64
}

type Option func(*options)

func WithRule(r Rule) Option { return func(o *options) { o.rule = r } }

// WithBandwidth fixes the kernel width instead of using a rule of thumb.
func WithBandwidth(h float64) Option { return func(o *options) { o.bandwidth = h } }

// AllowDegenerate turns zero-spread input into a point mass instead of an error.
func AllowDegenerate() Option { return func(o *options) { o.allowDegenerate = true } }

// WithTails sets how many bandwidths the support extends past the samples.
func WithTails(k float64) Option { return func(o *options) { o.tails = k } }

// Density is a Gaussian kernel density estimate.
type Density struct {
	samples []float64
	h       float64
	mean    float64
	sd      float64
	lo, hi  float64
}

// Estimate fits a Gaussian KDE to samples. The result is a *Density, or a
// Dirac when AllowDegenerate is set and the samples are all equal.
func Estimate(samples []float64, opts ...Option) (Univariate, error) {
	o := options{rule: Silverman, tails: 4}
	for _, opt := range opts {
		opt(&o)
	}

	if len(samples) < 2 {
		if len(samples) == 1 && o.allowDegenerate {
			return NewDirac(samples[0]), nil
		}
		return nil, fmt.Errorf("%w: got %d", ErrTooFewSamples, len(samples))
	}
	sorted := append([]float64(nil), samples...)
	for i, v := range sorted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidSample, i)
		}
	}
	sort.Float64s(sorted)

	mean, sd := stat.MeanStdDev(sorted, nil)
	if sd == 0 {
		if o.allowDegenerate {
			return NewDirac(sorted[0]), nil
		}
		return nil, ErrZeroSpread
	}

	h := o.bandwidth
	if h == 0 {
		h = bandwidth(sorted, sd, o.rule)
	}
	if h <= 0 || math.IsNaN(h) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidBandwidth, h)
	}

	n := float64(len(sorted))
	return &Density{
		samples: sorted,
		h:       h,
		mean:    mean,
		sd:      math.Sqrt(sd*sd*(n-1)/n + h*h),
		lo:      sorted[0] - o.tails*h,
		hi:      sorted[len(sorted)-1] + o.tails*h,
	}, nil
}

func bandwidth(sorted []float64, sd float64, rule Rule) float64 {
	n := math.Pow(float64(len(sorted)), -0.2)
	if rule == Scott {
		return 1.06 * sd * n
	}
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
	spread := sd
	if s := iqr / 1.34; s > 0 && s < sd {
		spread = s
	}
	return 0.9 * spread * n
}

func (d *Density) Bandwidth() float64          { return d.h }
func (d *Density) Len() int                    { return len(d.samples) }
func (d *Density) Mean() float64               { return d.mean }
func (d *Density) StdDev() float64             { return d.sd }
func (d *Density) Support() (float64, float64) { return d.lo, d.hi }
func (d *Density) PointMass() bool             { return false }

// window returns the index range of samples within 8 bandwidths of x;
// kernels beyond that contribute below float64 resolution.
func (d *Density) window(x float64) (int, int) {
	r := 8 * d.h
	i := sort.SearchFloat64s(d.samples, x-r)
	j := sort.SearchFloat64s(d.samples, x+r)
	return i, j
}

func (d *Density) Prob(x float64) float64 {
	i, j := d.window(x)
	sum := 0.0
	for _, s := range d.samples[i:j] {
		u := (x - s) / d.h
		sum += math.Exp(-0.5 * u * u)
	}
	return sum / (float64(len(d.samples)) * d.h * math.Sqrt(2*math.Pi))
}

func (d *Density) LogProb(x float64) float64 {
	return math.Log(d.Prob(x))
}

func (d *Density) CDF(x float64) float64 {
	i, j := d.window(x)
	// samples below the window contribute a full unit each
	sum := float64(i)
	for _, s := range d.samples[i:j] {
		sum += distuv.UnitNormal.CDF((x - s) / d.h)
	}
	return sum / float64(len(d.samples))
}

// Rand draws from the estimate: a random sample plus kernel noise.
func (d *Density) Rand(rng *rand.Rand) float64 {
	s := d.samples[rng.IntN(len(d.samples))]
	return s + d.h*rng.NormFloat64()
}

// Mode locates the highest density point on a fine grid over the support.
func (d *Density) Mode() float64 {
	const n = 2048
	best, bestP := d.lo, -1.0
	step := (d.hi - d.lo) / n
	for k := 0; k <= n; k++ {
		x := d.lo + float64(k)*step
		if p := d.Prob(x); p > bestP {
			best, bestP = x, p
		}
	}
	return best
}

// Quantile inverts the CDF by bisection.
func (d *Density) Quantile(p float64) float64 {
	if p <= 0 {
		return d.lo
	}
	if p >= 1 {
		return d.hi
	}
	lo, hi := d.lo, d.hi
	for i := 0; i < 100 && hi-lo > 1e-12*math.Max(1, math.Abs(hi)); i++ {
		mid := 0.5 * (lo + hi)
		if d.CDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}
