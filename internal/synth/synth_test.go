package synth

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/bayesode/internal/dynamo"
)

func sampleTrajectory() *dynamo.Trajectory {
	tr := &dynamo.Trajectory{}
	for i := 0; i <= 50; i++ {
		tm := float64(i) * 0.1
		tr.Times = append(tr.Times, tm)
		tr.States = append(tr.States, dynamo.State{math.Exp(-tm), math.Cos(tm)})
	}
	return tr
}

func TestGenerateZeroNoiseIsExact(t *testing.T) {
	tr := sampleTrajectory()
	for _, kind := range []string{"gaussian", "multiplicative", "none"} {
		t.Run(kind, func(t *testing.T) {
			noise, err := NewNoise(kind, 0, 1)
			if err != nil {
				t.Fatal(err)
			}
			ds, err := Generate(tr, []string{"a", "b"}, noise)
			if err != nil {
				t.Fatal(err)
			}
			ds.Each(func(i int, tm float64, obs dynamo.State) {
				if tm != tr.Times[i] || obs[0] != tr.States[i][0] || obs[1] != tr.States[i][1] {
					t.Fatalf("row %d differs: %v vs %v", i, obs, tr.States[i])
				}
			})
		})
	}
}

func TestGenerateGaussianResiduals(t *testing.T) {
	tr := &dynamo.Trajectory{}
	for i := 0; i < 4000; i++ {
		tr.Times = append(tr.Times, float64(i))
		tr.States = append(tr.States, dynamo.State{5})
	}
	noise, err := NewNoise("gaussian", 0.5, 42)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := Generate(tr, nil, noise)
	if err != nil {
		t.Fatal(err)
	}

	col := ds.Column(0)
	mean, sd := stat.MeanStdDev(col, nil)
	if math.Abs(mean-5) > 0.05 {
		t.Errorf("noise mean %v, want ~5", mean)
	}
	if math.Abs(sd-0.5) > 0.05 {
		t.Errorf("noise sd %v, want ~0.5", sd)
	}
	if tr.States[0][0] != 5 {
		t.Error("trajectory was mutated")
	}
}

func TestGenerateDeterministicSeed(t *testing.T) {
	tr := sampleTrajectory()
	n1, _ := NewNoise("gaussian", 0.1, 7)
	n2, _ := NewNoise("gaussian", 0.1, 7)
	a, _ := Generate(tr, nil, n1)
	b, _ := Generate(tr, nil, n2)
	for j := 0; j < 2; j++ {
		ca, cb := a.Column(j), b.Column(j)
		for i := range ca {
			if ca[i] != cb[i] {
				t.Fatalf("same seed produced different data at (%d,%d)", i, j)
			}
		}
	}
}

func TestGenerateCustomRander(t *testing.T) {
	tr := sampleTrajectory()
	noise := Rander{Dist: distuv.Uniform{Min: -0.01, Max: 0.01, Src: rand.NewPCG(1, 2)}}
	ds, err := Generate(tr, nil, noise)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range ds.Column(0) {
		if math.Abs(v-tr.States[i][0]) > 0.01 {
			t.Fatalf("row %d outside uniform noise band", i)
		}
	}
	if names := ds.StateNames(); names[1] != "u1" {
		t.Errorf("default names %v", names)
	}
}

func TestGenerateErrors(t *testing.T) {
	noise, _ := NewNoise("gaussian", 0.1, 1)
	if _, err := Generate(&dynamo.Trajectory{}, nil, noise); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
	bad := &dynamo.Trajectory{Times: []float64{0}, States: []dynamo.State{{math.NaN()}}}
	if _, err := Generate(bad, nil, noise); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
	if _, err := NewNoise("laplace", 0.1, 1); err == nil {
		t.Error("expected unknown noise kind error")
	}
	if _, err := NewAdditive(-1, nil); err == nil {
		t.Error("expected negative sigma error")
	}
}

func TestDatasetIsImmutable(t *testing.T) {
	times := []float64{0, 1}
	rows := []dynamo.State{{1}, {2}}
	ds, err := NewDataset(times, rows, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	times[0] = 99
	rows[0][0] = 99
	_, r := ds.Row(0)
	r[0] = 42

	if ds.Times()[0] != 0 || ds.Column(0)[0] != 1 {
		t.Error("dataset shares memory with caller")
	}
	if rr, cc := ds.Matrix().Dims(); rr != 2 || cc != 1 {
		t.Errorf("matrix dims %dx%d", rr, cc)
	}

	if _, err := NewDataset([]float64{1, 0}, rows, nil); !errors.Is(err, ErrInvalidData) {
		t.Errorf("unsorted times accepted: %v", err)
	}
	if _, err := NewDataset([]float64{0, 1}, []dynamo.State{{1}, {1, 2}}, nil); !errors.Is(err, ErrInvalidData) {
		t.Errorf("ragged rows accepted: %v", err)
	}
}
