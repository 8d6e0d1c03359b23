package runner

import (
	"errors"
	"slices"
	"sync"
)

// MemoryStore keeps run history in memory only.
type MemoryStore struct {
	maxCount int

	mu   sync.Mutex
	runs []RunRecord
}

// NewMemoryStore creates an in-memory store keeping at most maxCount runs.
// Zero means no limit.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{maxCount: maxCount}
}

// History returns all runs as summaries, most recent first.
func (s *MemoryStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
		result[i].Operations = slices.Clone(run.Operations)
	}
	return result
}

// Get returns the record of a run.
func (s *MemoryStore) Get(id string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, true
		}
	}
	return RunRecord{}, false
}

// Save stores a run in memory.
func (s *MemoryStore) Save(run RunRecord) error {
	if run.ID == "" {
		return errors.New("cannot save run without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// prepend to keep most recent first
	s.runs = append([]RunRecord{run}, s.runs...)
	if s.maxCount > 0 && len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
