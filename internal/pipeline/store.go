package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID has no record on disk.
var ErrRunNotFound = errors.New("run not found")

// Store manages run records and per-stage artifacts on disk:
//
//	<baseDir>/<run-id>/run.json
//	<baseDir>/<run-id>/stages/<stage>/attempt-<n>/output.md
//	<baseDir>/<run-id>/final/<file>
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.sdlc/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".sdlc", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

func (s *Store) stageAttemptDir(id string, stage StageID, attempt int) string {
	return filepath.Join(s.runDir(id), "stages", string(stage), fmt.Sprintf("attempt-%d", attempt))
}

// FinalDir returns the directory holding a run's final artifacts.
func (s *Store) FinalDir(id string) string {
	return filepath.Join(s.runDir(id), "final")
}

// Create initialises a new run with a fresh ID. An empty id asks the store to
// generate one.
func (s *Store) Create(id, requirements string) (*RunRecord, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := os.Stat(s.runDir(id)); err == nil {
		return nil, fmt.Errorf("run %s already exists", id)
	}
	if err := os.MkdirAll(filepath.Join(s.runDir(id), "stages"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir stages: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rec := &RunRecord{
		ID:           id,
		Status:       StatusPending,
		CurrentStage: StageCollectRequirements,
		StageHistory: []StageHistoryEntry{},
		State:        NewState(requirements),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := writeJSON(s.recordPath(id), rec); err != nil {
		return nil, fmt.Errorf("write run.json: %w", err)
	}
	return rec, nil
}

// Get reads the record for a run.
func (s *Store) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	if err := readJSON(s.recordPath(id), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// Update performs an atomic read-modify-write of a run record.
func (s *Store) Update(id string, fn func(*RunRecord)) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return writeJSON(s.recordPath(id), rec)
}

// List returns all runs, newest first, optionally filtered by status.
// Pass "" for statusFilter to return every run.
func (s *Store) List(statusFilter string) ([]RunRecord, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Get(entry.Name())
		if err != nil {
			continue // not a run directory
		}
		if statusFilter == "" || rec.Status == statusFilter {
			runs = append(runs, *rec)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt == runs[j].CreatedAt {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt > runs[j].CreatedAt
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	dir := s.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return os.RemoveAll(dir)
}

// SaveStageOutput writes the raw model output captured for a stage attempt.
func (s *Store) SaveStageOutput(id string, stage StageID, attempt int, output string) error {
	return writeText(filepath.Join(s.stageAttemptDir(id, stage, attempt), "output.md"), output)
}

// GetStageOutput reads the output captured for a stage attempt.
func (s *Store) GetStageOutput(id string, stage StageID, attempt int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.stageAttemptDir(id, stage, attempt), "output.md"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveFinal writes a named final artifact and returns its path.
func (s *Store) SaveFinal(id, name, content string) (string, error) {
	path := filepath.Join(s.FinalDir(id), name)
	if err := writeText(path, content); err != nil {
		return "", err
	}
	return path, nil
}
