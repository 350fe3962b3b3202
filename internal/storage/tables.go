package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/bayesode/internal/dynamo"
	"github.com/san-kum/bayesode/internal/synth"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeCSV(path string, header []string, rows func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := rows(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// readCSV returns the header and the numeric body of a table.
func readCSV(path string) ([]string, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return parseCSV(f, filepath.Base(path))
}

func parseCSV(r io.Reader, name string) ([]string, [][]float64, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("storage: %s: missing header", name)
	}
	header := records[0]
	body := make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("storage: %s line %d column %s: %w", name, i+2, header[j], err)
			}
			row[j] = v
		}
		body = append(body, row)
	}
	return header, body, nil
}

func writeSeries(path string, names []string, n int, row func(i int) (float64, []float64)) error {
	header := append([]string{"time"}, names...)
	return writeCSV(path, header, func(w *csv.Writer) error {
		rec := make([]string, len(header))
		for i := 0; i < n; i++ {
			t, vals := row(i)
			rec[0] = formatFloat(t)
			for j, v := range vals {
				rec[j+1] = formatFloat(v)
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteTrajectory stores the noiseless trajectory used to generate data.
func (r *Run) WriteTrajectory(tr *dynamo.Trajectory, stateNames []string) error {
	return writeSeries(r.path(truthFile), stateNames, tr.Len(), func(i int) (float64, []float64) {
		return tr.Times[i], tr.States[i]
	})
}

func (r *Run) WriteDataset(d *synth.Dataset) error {
	return writeSeries(r.path(datasetFile), d.StateNames(), d.Len(), func(i int) (float64, []float64) {
		return d.Row(i)
	})
}

// WriteChains stores every draw as one row labelled with its chain and
// draw index.
func (r *Run) WriteChains(names []string, chains []mat.Matrix) error {
	header := append([]string{"chain", "draw"}, names...)
	return writeCSV(r.path(chainFile), header, func(w *csv.Writer) error {
		rec := make([]string, len(header))
		for c, m := range chains {
			rows, cols := m.Dims()
			if cols != len(names) {
				return fmt.Errorf("storage: chain %d has %d columns for %d names", c, cols, len(names))
			}
			for i := 0; i < rows; i++ {
				rec[0], rec[1] = strconv.Itoa(c), strconv.Itoa(i)
				for j := 0; j < cols; j++ {
					rec[j+2] = formatFloat(m.At(i, j))
				}
				if err := w.Write(rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) loadSeries(runID, file string) ([]string, []float64, []dynamo.State, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, nil, nil, err
	}
	header, body, err := readCSV(filepath.Join(dir, file))
	if err != nil {
		return nil, nil, nil, err
	}
	if len(header) < 2 || header[0] != "time" {
		return nil, nil, nil, fmt.Errorf("storage: %s: unexpected header %v", file, header)
	}
	times := make([]float64, len(body))
	states := make([]dynamo.State, len(body))
	for i, row := range body {
		times[i] = row[0]
		states[i] = dynamo.State(row[1:])
	}
	return header[1:], times, states, nil
}

func (s *Store) LoadTrajectory(runID string) (*dynamo.Trajectory, []string, error) {
	names, times, states, err := s.loadSeries(runID, truthFile)
	if err != nil {
		return nil, nil, err
	}
	return &dynamo.Trajectory{Times: times, States: states}, names, nil
}

func (s *Store) LoadDataset(runID string) (*synth.Dataset, error) {
	names, times, states, err := s.loadSeries(runID, datasetFile)
	if err != nil {
		return nil, err
	}
	return synth.NewDataset(times, states, names)
}

// LoadChains returns the parameter names and one matrix per chain.
func (s *Store) LoadChains(runID string) ([]string, []*mat.Dense, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, nil, err
	}
	header, body, err := readCSV(filepath.Join(dir, chainFile))
	if err != nil {
		return nil, nil, err
	}
	if len(header) < 3 || header[0] != "chain" || header[1] != "draw" {
		return nil, nil, fmt.Errorf("storage: %s: unexpected header %v", chainFile, header)
	}
	names := header[2:]

	var grouped [][]float64
	for _, row := range body {
		c := int(row[0])
		if c < 0 || float64(c) != row[0] {
			return nil, nil, fmt.Errorf("storage: %s: bad chain label %v", chainFile, row[0])
		}
		for len(grouped) <= c {
			grouped = append(grouped, nil)
		}
		grouped[c] = append(grouped[c], row[2:]...)
	}
	chains := make([]*mat.Dense, 0, len(grouped))
	for c, data := range grouped {
		if len(data) == 0 {
			return nil, nil, fmt.Errorf("storage: %s: chain %d has no draws", chainFile, c)
		}
		chains = append(chains, mat.NewDense(len(data)/len(names), len(names), data))
	}
	return names, chains, nil
}
