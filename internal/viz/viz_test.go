package viz

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/bayesode/internal/bayes"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/kde"
	"github.com/san-kum/bayesode/internal/storage"
	"github.com/san-kum/bayesode/internal/synth"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(-1, 0)
	c.Set(4, 0)
	if c.Grid[0][0] != 0x2801 || c.Grid[0][1] != 0x2880 {
		t.Errorf("grid %U %U", c.Grid[0][0], c.Grid[0][1])
	}
	if c.Lit() != 2 {
		t.Errorf("lit %d, want 2", c.Lit())
	}
}

func TestCanvasDrawLine(t *testing.T) {
	c := NewCanvas(4, 1)
	c.DrawLine(0, 0, 7, 0)
	if c.Lit() != 8 {
		t.Errorf("horizontal line lit %d dots, want 8", c.Lit())
	}
}

func TestScatterCorners(t *testing.T) {
	c := Scatter([]float64{0, 1, 5}, []float64{0, 1, 5}, Bounds{0, 1, 0, 1}, 3, 2)
	if c.Lit() != 2 {
		t.Fatalf("expected 2 dots inside bounds, got %d", c.Lit())
	}
	// (0,0) is bottom left, (1,1) top right
	if c.Grid[1][0]&0x40 == 0 || c.Grid[0][2]&0x8 == 0 {
		t.Errorf("corners not set:\n%s", c)
	}
}

func TestBoundsOfDegenerate(t *testing.T) {
	b := BoundsOf([]float64{2, 2}, []float64{1, 3})
	if b.XMin != 1.5 || b.XMax != 2.5 || b.YMin != 1 || b.YMax != 3 {
		t.Errorf("bounds %+v", b)
	}
}

func TestSparkline(t *testing.T) {
	s := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	if s != "▁▂▃▄▅▆▇█" {
		t.Errorf("sparkline %q", s)
	}
	if got := Sparkline(nil, 3); got != "───" {
		t.Errorf("empty sparkline %q", got)
	}
}

func TestSetTheme(t *testing.T) {
	defer func() { theme = ThemeDefault }()
	if err := SetTheme("minimal"); err != nil || theme.Name != "minimal" {
		t.Errorf("SetTheme failed: %v", err)
	}
	if err := SetTheme("neon"); err == nil {
		t.Error("unknown theme accepted")
	}
}

func TestFitPlot(t *testing.T) {
	truth := &dynamo.Trajectory{Times: []float64{0, 1, 2}, States: []dynamo.State{{0}, {1}, {4}}}
	data, err := synth.NewDataset([]float64{0, 2}, []dynamo.State{{0.1}, {3.9}}, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	band := &bayes.Band{
		Times:  []float64{0, 2},
		Lower:  [][]float64{{-0.5}, {3}},
		Median: [][]float64{{0}, {4}},
		Upper:  [][]float64{{0.5}, {5}},
	}
	out := Fit(truth, data, band, 0, "x", PlotSize{Width: 30, Height: 6})
	for _, want := range []string{"truth", "median", "data", "x over [0, 2]"} {
		if !strings.Contains(out, want) {
			t.Errorf("plot lacks %q:\n%s", want, out)
		}
	}
	if Fit(nil, nil, nil, 0, "x", DefaultSize) != "" {
		t.Error("nil truth should render nothing")
	}
}

func TestDensityPlot(t *testing.T) {
	if out := DensityPlot(kde.NewDirac(2), "k", DefaultSize); !strings.Contains(out, "point mass at 2") {
		t.Errorf("dirac plot %q", out)
	}
	d, err := kde.Estimate([]float64{0.9, 1, 1.1, 1.05, 0.95})
	if err != nil {
		t.Fatal(err)
	}
	if out := DensityPlot(d, "k", PlotSize{Width: 20, Height: 5}); !strings.Contains(out, "p(k)") {
		t.Errorf("density plot lacks caption:\n%s", out)
	}
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	SummaryTable(&buf, []storage.ParamSummary{{Name: "k", Truth: 0.5, Mean: 0.51, RHat: math.NaN()}})
	ExpectationTable(&buf, []storage.ExpectationRecord{{Observable: "final:x", Value: 0.82, Method: "koopman", Converged: true}})
	RunTable(&buf, []storage.RunMetadata{{ID: "decay_1", Model: "decay", Timestamp: time.Unix(0, 0)}})
	ListTable(&buf, "models", []string{"decay", "lorenz"})

	out := buf.String()
	for _, want := range []string{"k", "0.51", "final:x", "0.82", "decay_1", "lorenz"} {
		if !strings.Contains(out, want) {
			t.Errorf("tables lack %q", want)
		}
	}
}

func TestResampleStaysMonotone(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{0, 0.1, 2, 2.05}
	ts := columns(-1, 4, 51)
	got := resample(xs, ys, ts)
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("resampled series decreases at t=%v: %v -> %v", ts[i], got[i-1], got[i])
		}
	}
	if got[0] != 0 || got[len(got)-1] != 2.05 {
		t.Errorf("ends %v %v, want clamped 0 and 2.05", got[0], got[len(got)-1])
	}
	if lin := resample([]float64{0, 2}, []float64{1, 3}, []float64{1}); lin[0] != 2 {
		t.Errorf("two-point resample = %v, want 2", lin[0])
	}
	if increasing([]float64{0, 1, 1}) || increasing([]float64{0}) {
		t.Error("increasing accepted a non-increasing grid")
	}
}
