// Package storage persists pipeline runs: one directory per run holding
// JSON metadata, the YAML configuration and CSV tables.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/bayesode/internal/config"
)

const (
	metadataFile    = "metadata.json"
	configFile      = "config.yaml"
	truthFile       = "truth.csv"
	datasetFile     = "dataset.csv"
	chainFile       = "chain.csv"
	expectationFile = "expectation.json"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

// ParamSummary is the stored form of one posterior marginal.
type ParamSummary struct {
	Name   string  `json:"name"`
	Truth  float64 `json:"truth"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Q025   float64 `json:"q025"`
	Q50    float64 `json:"q50"`
	Q975   float64 `json:"q975"`
	ESS    float64 `json:"ess"`
	RHat   float64 `json:"rhat"`
}

type ExpectationRecord struct {
	Observable  string  `json:"observable"`
	Value       float64 `json:"value"`
	Truth       float64 `json:"truth"`
	Residual    float64 `json:"residual"`
	Evaluations int     `json:"evaluations"`
	Order       int     `json:"order"`
	Converged   bool    `json:"converged"`
	Method      string  `json:"method"`
	Assumption  string  `json:"assumption"`
	Backend     string  `json:"backend"`
	ElapsedMS   float64 `json:"elapsed_ms"`
}

type RunMetadata struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Timestamp  time.Time      `json:"timestamp"`
	Seed       uint64         `json:"seed"`
	Dt         float64        `json:"dt"`
	Duration   float64        `json:"duration"`
	Integrator string         `json:"integrator"`
	Stages     []string       `json:"stages"`
	Chains     int            `json:"chains"`
	Samples    int            `json:"samples"`
	Converged  bool           `json:"converged"`
	Summary    []ParamSummary `json:"summary,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	ElapsedMS  float64        `json:"elapsed_ms"`
}

// Run is an open run directory.
type Run struct {
	ID  string
	Dir string
}

// Create makes a fresh run directory named after the model and the current
// time. Runs created within the same second get a numeric suffix.
func (s *Store) Create(model string) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s_%s", model, time.Now().Format("20060102-150405"))
	id := base
	for i := 1; ; i++ {
		dir := filepath.Join(s.baseDir, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return &Run{ID: id, Dir: dir}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// Open returns an existing run for further writes.
func (s *Store) Open(runID string) (*Run, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return &Run{ID: runID, Dir: dir}, nil
}

func (r *Run) path(name string) string { return filepath.Join(r.Dir, name) }

func (r *Run) WriteMetadata(meta *RunMetadata) error {
	meta.ID = r.ID
	return writeJSON(r.path(metadataFile), meta)
}

func (r *Run) WriteConfig(cfg *config.Config) error {
	return config.Save(r.path(configFile), cfg)
}

func (r *Run) WriteExpectations(recs []ExpectationRecord) error {
	return writeJSON(r.path(expectationFile), recs)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// List returns every readable run, newest first. Directories without
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var meta RunMetadata
		if err := readJSON(filepath.Join(s.baseDir, entry.Name(), metadataFile), &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) runDir(runID string) (string, error) {
	if runID == "" || filepath.Base(runID) != runID {
		return "", fmt.Errorf("%w: invalid id %q", ErrRunNotFound, runID)
	}
	dir := filepath.Join(s.baseDir, runID)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return dir, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return config.Load(filepath.Join(dir, configFile))
}

func (s *Store) LoadExpectations(runID string) ([]ExpectationRecord, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	var recs []ExpectationRecord
	if err := readJSON(filepath.Join(dir, expectationFile), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Latest returns the ID of the newest run.
func (s *Store) Latest() (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: store %s is empty", ErrRunNotFound, s.baseDir)
	}
	return runs[0].ID, nil
}
