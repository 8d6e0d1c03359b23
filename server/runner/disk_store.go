package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DiskStore persists run history as one JSON file per run.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu    sync.Mutex
	runs  []RunRecord // most recent first
	files map[string]string
}

// NewDiskStore creates a disk-backed store keeping at most maxCount runs.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("history size must be positive, got %d", maxCount)
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
		files:    make(map[string]string),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := s.Reload(); err != nil {
		logger.Warn("failed to load existing runs", "error", err)
	}
	return s, nil
}

// History returns all runs as summaries, most recent first.
func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Get returns the record of a run.
func (s *DiskStore) Get(id string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, true
		}
	}
	return RunRecord{}, false
}

// Save writes a run to disk and drops the oldest runs beyond the limit.
func (s *DiskStore) Save(run RunRecord) error {
	if run.StartedAt == nil {
		return errors.New("cannot save run without start time")
	}
	if run.ID == "" {
		return errors.New("cannot save run without id")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	path := filepath.Join(s.dir, fileName(run))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]RunRecord{run}, s.runs...)
	s.files[run.ID] = path
	for len(s.runs) > s.maxCount {
		oldest := s.runs[len(s.runs)-1]
		s.runs = s.runs[:len(s.runs)-1]
		if err := os.Remove(s.files[oldest.ID]); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old run file", "id", oldest.ID, "error", err)
		}
		delete(s.files, oldest.ID)
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-reads all runs from disk.
func (s *DiskStore) Reload() error {
	runs, files, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	s.files = files
	return nil
}

// fileName sorts by start time and stays unique for runs started in the same second.
func fileName(run RunRecord) string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return run.StartedAt.UTC().Format("2006-01-02T15-04-05") + "-" + id + ".json"
}

func (s *DiskStore) load() ([]RunRecord, map[string]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var runs []RunRecord
	files := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}
		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" || run.StartedAt == nil {
			s.logger.Warn("ignoring incomplete run file", "file", path)
			continue
		}
		runs = append(runs, run)
		files[run.ID] = path
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(*runs[j].StartedAt)
	})
	if len(runs) > s.maxCount {
		for _, old := range runs[s.maxCount:] {
			delete(files, old.ID)
		}
		runs = runs[:s.maxCount]
	}

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return runs, files, nil
}
