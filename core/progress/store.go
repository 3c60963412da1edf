// Package progress implements the file based exchange between a worker
// process and the orchestrator. The worker is the only writer of
// progress.json inside its working directory; the orchestrator only
// reads. Writes go through a temp file and rename so readers never see
// a half written snapshot.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"training-orchestrator/core/models"
)

// File names making up the working directory contract between the
// launcher, the worker and the completion watcher.
const (
	ProgressFile     = "progress.json"
	ConfigFile       = "config.json"
	ResultsFile      = "results.json"
	FinalResultsFile = "final_results.json"
)

// ErrTransient marks a read that raced a concurrent write or hit a
// torn file. Callers keep their last good snapshot and retry on the
// next tick; this error never reaches a job status.
var ErrTransient = errors.New("transient progress read failure")

// Store reads and writes progress snapshots in a working directory
type Store struct {
	dir string
}

// NewStore creates a progress store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the working directory the store operates on
func (s *Store) Dir() string {
	return s.dir
}

// Write merges patch over the current snapshot and atomically replaces
// progress.json. Fields absent from the patch keep their stored value,
// so workers may write partial updates.
func (s *Store) Write(patch models.ProgressSnapshot) error {
	current, err := s.Read()
	if err != nil {
		// A torn previous write is superseded by this one
		current = models.EmptySnapshot()
	}
	current = current.Merge(patch)

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ProgressFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close progress file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ProgressFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

// Read returns the current snapshot. A missing file means the worker
// has not written yet and yields the empty snapshot. A file that fails
// to decode yields the empty snapshot and ErrTransient.
func (s *Store) Read() (models.ProgressSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ProgressFile))
	if err != nil {
		if os.IsNotExist(err) {
			return models.EmptySnapshot(), nil
		}
		return models.EmptySnapshot(), fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var snap models.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.EmptySnapshot(), fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return snap, nil
}

// WriteConfig persists the job config handed to the worker. Restricted
// permissions since hyperparameters may reference credentials.
func WriteConfig(dir string, job *models.Job) error {
	payload := WorkerConfig{
		JobID:     job.ID,
		Kind:      job.Kind,
		Config:    job.Config,
		OutputDir: dir,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode worker config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), data, 0600)
}

// WorkerConfig is the decoded contents of config.json
type WorkerConfig struct {
	JobID     string           `json:"job_id"`
	Kind      models.JobKind   `json:"kind"`
	Config    models.JobConfig `json:"config"`
	OutputDir string           `json:"output_dir"`
}

// ReadConfig loads the worker config from dir
func ReadConfig(dir string) (*WorkerConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read worker config: %w", err)
	}
	var cfg WorkerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode worker config: %w", err)
	}
	return &cfg, nil
}

// ResultFileFor returns the artifact file name a job kind must produce
func ResultFileFor(kind models.JobKind) string {
	if kind == models.JobKindSearch {
		return FinalResultsFile
	}
	return ResultsFile
}

// ResultPath returns the artifact path for a finished job, or an error
// if the worker exited cleanly without producing one.
func ResultPath(dir string, kind models.JobKind) (string, error) {
	path := filepath.Join(dir, ResultFileFor(kind))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("result artifact missing: %w", err)
	}
	return path, nil
}

// WriteResults persists a training worker's artifact
func WriteResults(dir string, result models.TrainingResult) error {
	return writeJSON(filepath.Join(dir, ResultsFile), result)
}

// WriteFinalResults persists a search worker's artifact
func WriteFinalResults(dir string, result models.SearchResult) error {
	return writeJSON(filepath.Join(dir, FinalResultsFile), result)
}

// ReadFinalResults loads a completed search's artifact
func ReadFinalResults(path string) (*models.SearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	var result models.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return &result, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
