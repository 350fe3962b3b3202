package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// ExportData bundles every stored artefact of a run into one document.
type ExportData struct {
	Metadata     *RunMetadata        `json:"metadata"`
	StateNames   []string            `json:"state_names"`
	Times        []float64           `json:"times"`
	Truth        [][]float64         `json:"truth"`
	DataTimes    []float64           `json:"data_times"`
	Observed     [][]float64         `json:"observed"`
	ParamNames   []string            `json:"param_names,omitempty"`
	Chains       [][][]float64       `json:"chains,omitempty"`
	Expectations []ExpectationRecord `json:"expectations,omitempty"`
}

// Export gathers a run. Stages that did not run are left empty.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	out := &ExportData{Metadata: meta}

	if tr, names, err := s.LoadTrajectory(runID); err == nil {
		out.StateNames = names
		out.Times = tr.Times
		for _, st := range tr.States {
			out.Truth = append(out.Truth, st)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if d, err := s.LoadDataset(runID); err == nil {
		out.DataTimes = d.Times()
		d.Each(func(_ int, _ float64, obs dynamo.State) { out.Observed = append(out.Observed, obs) })
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if names, chains, err := s.LoadChains(runID); err == nil {
		out.ParamNames = names
		for _, c := range chains {
			r, _ := c.Dims()
			rows := make([][]float64, r)
			for i := range rows {
				rows[i] = c.RawRowView(i)
			}
			out.Chains = append(out.Chains, rows)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if recs, err := s.LoadExpectations(runID); err == nil {
		out.Expectations = recs
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExportJSON(runID string, w io.Writer) error {
	data, err := s.Export(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

var ErrNoMatch = errors.New("storage: query matched nothing")

// Query evaluates a gjson path, e.g. "metadata.summary.#(name==\"k\").mean"
// or "expectations.0.value", against the exported run and returns the raw
// JSON of the match.
func (s *Store) Query(runID, path string) (string, error) {
	var buf bytes.Buffer
	if err := s.ExportJSON(runID, &buf); err != nil {
		return "", err
	}
	res := gjson.GetBytes(buf.Bytes(), path)
	if !res.Exists() {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, path)
	}
	return res.Raw, nil
}

// CopyTable copies one of a run's CSV tables ("truth", "dataset" or
// "chain") to dst.
func (s *Store) CopyTable(runID, table string, dst io.Writer) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	var name string
	switch table {
	case "truth":
		name = truthFile
	case "dataset":
		name = datasetFile
	case "chain":
		name = chainFile
	default:
		return errors.New("storage: table must be truth, dataset or chain")
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}
