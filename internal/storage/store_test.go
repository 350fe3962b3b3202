package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/config"
	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/synth"
)

func sampleRun(t *testing.T, st *Store) *Run {
	t.Helper()
	run, err := st.Create("decay")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	tr := &dynamo.Trajectory{
		Times:  []float64{0, 0.5, 1},
		States: []dynamo.State{{1}, {0.6065306597126334}, {0.36787944117144233}},
	}
	if err := run.WriteTrajectory(tr, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	ds, err := synth.NewDataset(tr.Times, []dynamo.State{{1.01}, {0.59}, {0.37}}, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := run.WriteDataset(ds); err != nil {
		t.Fatal(err)
	}
	chains := []mat.Matrix{
		mat.NewDense(2, 2, []float64{0.5, 0.1, 0.51, 0.11}),
		mat.NewDense(3, 2, []float64{0.49, 0.09, 0.5, 0.1, 0.52, 0.12}),
	}
	if err := run.WriteChains([]string{"k", "noise_sigma"}, chains); err != nil {
		t.Fatal(err)
	}
	if err := run.WriteExpectations([]ExpectationRecord{{Observable: "final:x", Value: 0.37, Residual: 1e-9, Converged: true}}); err != nil {
		t.Fatal(err)
	}
	if err := run.WriteConfig(config.GetPreset("decay", "quick")); err != nil {
		t.Fatal(err)
	}
	meta := &RunMetadata{
		Model:     "decay",
		Timestamp: time.Now(),
		Seed:      42,
		Stages:    []string{"simulate", "infer", "density", "expect"},
		Summary:   []ParamSummary{{Name: "k", Truth: 0.5, Mean: 0.504}},
	}
	if err := run.WriteMetadata(meta); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	run := sampleRun(t, st)

	meta, err := st.Load(run.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != run.ID || meta.Model != "decay" || meta.Seed != 42 {
		t.Errorf("metadata mismatch: %+v", meta)
	}
	if meta.Summary[0].Mean != 0.504 {
		t.Errorf("summary lost: %+v", meta.Summary)
	}

	tr, names, err := st.LoadTrajectory(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if names[0] != "x" || tr.States[2][0] != 0.36787944117144233 {
		t.Errorf("trajectory not stored at full precision: %v", tr.States)
	}

	ds, err := st.LoadDataset(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 3 || ds.StateNames()[0] != "x" {
		t.Errorf("dataset %d rows, names %v", ds.Len(), ds.StateNames())
	}

	params, chains, err := st.LoadChains(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 2 || params[1] != "noise_sigma" || len(chains) != 2 {
		t.Fatalf("chains %v %d", params, len(chains))
	}
	if r, _ := chains[1].Dims(); r != 3 || chains[1].At(2, 0) != 0.52 {
		t.Errorf("chain 1 = %v", mat.Formatted(chains[1]))
	}

	recs, err := st.LoadExpectations(run.ID)
	if err != nil || len(recs) != 1 || !recs[0].Converged {
		t.Errorf("expectations %v, %v", recs, err)
	}
	cfg, err := st.LoadConfig(run.ID)
	if err != nil || cfg.Model != "decay" {
		t.Errorf("config %v, %v", cfg, err)
	}
}

func TestStoreCreateUnique(t *testing.T) {
	st := New(t.TempDir())
	a, err := st.Create("decay")
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Create("decay")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Errorf("two runs share id %s", a.ID)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if runs, err := st.List(); err != nil || len(runs) != 0 {
		t.Fatalf("empty store: %v %v", runs, err)
	}
	if _, err := st.Latest(); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	first := sampleRun(t, st)
	second := sampleRun(t, st)
	if err := os.Mkdir(filepath.Join(st.BaseDir(), "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	latest, _ := st.Latest()
	if latest != second.ID || runs[1].ID != first.ID {
		t.Errorf("order %s, %s; latest %s", runs[0].ID, runs[1].ID, latest)
	}
}

func TestStoreRejectsBadIDs(t *testing.T) {
	st := New(t.TempDir())
	for _, id := range []string{"", "../etc", "missing"} {
		if _, err := st.Load(id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("%q: expected ErrRunNotFound, got %v", id, err)
		}
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	run := sampleRun(t, st)

	var buf bytes.Buffer
	if err := st.ExportJSON(run.ID, &buf); err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Truth) != 3 || len(data.Observed) != 3 || len(data.Chains) != 2 || len(data.Expectations) != 1 {
		t.Errorf("incomplete export: %+v", data)
	}

	buf.Reset()
	if err := st.CopyTable(run.ID, "chain", &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "chain,draw,k,noise_sigma\n0,0,0.5,0.1\n") {
		t.Errorf("chain csv starts %q", buf.String()[:40])
	}
	if err := st.CopyTable(run.ID, "states", &buf); err == nil {
		t.Error("expected unknown table error")
	}
}

func TestExportPartialRun(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create("decay")
	if err != nil {
		t.Fatal(err)
	}
	if err := run.WriteMetadata(&RunMetadata{Model: "decay", Stages: []string{"simulate"}}); err != nil {
		t.Fatal(err)
	}
	data, err := st.Export(run.ID)
	if err != nil {
		t.Fatalf("partial run: %v", err)
	}
	if data.Chains != nil || data.Expectations != nil {
		t.Errorf("unexpected content %+v", data)
	}
}

func TestQuery(t *testing.T) {
	st := New(t.TempDir())
	run := sampleRun(t, st)

	tests := []struct {
		path string
		want string
	}{
		{`metadata.summary.#(name=="k").mean`, "0.504"},
		{"expectations.0.observable", `"final:x"`},
		{"param_names.#", "2"},
		{"chains.1.2.0", "0.52"},
	}
	for _, tt := range tests {
		got, err := st.Query(run.ID, tt.path)
		if err != nil {
			t.Errorf("%s: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %s, want %s", tt.path, got, tt.want)
		}
	}
	if _, err := st.Query(run.ID, "metadata.nothing"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}
