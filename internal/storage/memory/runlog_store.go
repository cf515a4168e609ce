package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// RunLogStore keeps the append-only run audit trail in a map.
type RunLogStore struct {
	mu   sync.RWMutex
	runs map[string]seace.RunLogEntry
}

// NewRunLogStore constructs a RunLogStore.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{runs: make(map[string]seace.RunLogEntry)}
}

// StartRun records the opening audit entry for a run.
func (s *RunLogStore) StartRun(_ context.Context, entry seace.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[entry.ID] = entry
	return nil
}

// FinishRun finalizes an entry with its terminal status and counters.
func (s *RunLogStore) FinishRun(
	_ context.Context,
	runID string,
	status seace.JobStatus,
	message string,
	counters seace.JobCounters,
	duration time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[runID]
	if !ok {
		return seace.ErrJobNotFound
	}
	now := time.Now().UTC()
	entry.Status = status
	entry.Message = message
	entry.Counters = counters
	entry.FinishedAt = &now
	entry.DurationMs = duration.Milliseconds()
	s.runs[runID] = entry
	return nil
}

// GetRun fetches an entry by run ID. Exposed for tests.
func (s *RunLogStore) GetRun(runID string) (seace.RunLogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.runs[runID]
	return entry, ok
}
