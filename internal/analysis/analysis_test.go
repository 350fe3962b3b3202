package analysis

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func ar1(n int, phi float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, 1))
	x := make([]float64, n)
	for i := 1; i < n; i++ {
		x[i] = phi*x[i-1] + rng.NormFloat64()
	}
	return x
}

func TestAutocorrelationAR1(t *testing.T) {
	x := ar1(20000, 0.8, 3)
	rho := Autocorrelation(x)
	if rho[0] != 1 {
		t.Errorf("rho[0] = %v", rho[0])
	}
	for _, k := range []int{1, 2, 3} {
		want := math.Pow(0.8, float64(k))
		if math.Abs(rho[k]-want) > 0.05 {
			t.Errorf("rho[%d] = %v, want ~%v", k, rho[k], want)
		}
	}
	if Autocorrelation([]float64{2, 2, 2, 2}) != nil {
		t.Error("constant series should have nil autocorrelation")
	}
}

func TestEffectiveSampleSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	iid := make([]float64, 4000)
	for i := range iid {
		iid[i] = rng.NormFloat64()
	}
	if ess := EffectiveSampleSize(iid); ess < 3000 || ess > 5500 {
		t.Errorf("iid ESS = %v, want near 4000", ess)
	}

	// AR(1) with phi=0.9 has integrated autocorrelation time (1+phi)/(1-phi) = 19.
	corr := ar1(20000, 0.9, 5)
	ess := EffectiveSampleSize(corr)
	if ess < 600 || ess > 1500 {
		t.Errorf("AR(1) ESS = %v, want near %v", ess, 20000.0/19)
	}

	if ess := EffectiveSampleSize([]float64{1, 1, 1, 1, 1}); ess != 1 {
		t.Errorf("stuck chain ESS = %v, want 1", ess)
	}
}

func TestSplitRHat(t *testing.T) {
	mixed := [][]float64{ar1(2000, 0.3, 1), ar1(2000, 0.3, 2), ar1(2000, 0.3, 3)}
	r, err := SplitRHat(mixed)
	if err != nil {
		t.Fatal(err)
	}
	if r > 1.02 {
		t.Errorf("mixed chains R-hat = %v", r)
	}

	shifted := ar1(2000, 0.3, 4)
	for i := range shifted {
		shifted[i] += 10
	}
	r, _ = SplitRHat([][]float64{mixed[0], shifted})
	if r < 1.5 {
		t.Errorf("disjoint chains R-hat = %v, want large", r)
	}

	if _, err := SplitRHat([][]float64{{1, 2, 3}}); !errors.Is(err, ErrShortChain) {
		t.Errorf("expected ErrShortChain, got %v", err)
	}
	if r, _ := SplitRHat([][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}}); r != 1 {
		t.Errorf("identical constant chains R-hat = %v", r)
	}
}

func TestAcceptanceRate(t *testing.T) {
	m := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 0,
		1, 0,
		1, 2,
		1, 2,
	})
	if got := AcceptanceRate(m); got != 0.5 {
		t.Errorf("AcceptanceRate = %v, want 0.5", got)
	}
}

func TestHistogram(t *testing.T) {
	counts, edges := Histogram([]float64{0, 0.1, 0.5, 0.9, 1}, 2)
	if len(counts) != 2 || len(edges) != 3 {
		t.Fatalf("got %d counts %d edges", len(counts), len(edges))
	}
	if counts[0] != 2 || counts[1] != 3 {
		t.Errorf("counts = %v", counts)
	}
	if edges[0] != 0 || edges[2] != 1 {
		t.Errorf("edges = %v", edges)
	}
}

func TestPowerSpectrumPeak(t *testing.T) {
	n := 256
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 8 * float64(i) / float64(n))
	}
	ps := PowerSpectrum(x)
	peak := 0
	for i, v := range ps {
		if v > ps[peak] {
			peak = i
		}
	}
	if peak != 8 {
		t.Errorf("peak at bin %d, want 8", peak)
	}
}
