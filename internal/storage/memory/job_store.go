// Package memory provides in-memory store implementations used for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// JobStore keeps jobs and their per-row outcomes in maps.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]seace.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]seace.Job)}
}

// CreateJob stores a new job. IDs must be unique.
func (s *JobStore) CreateJob(_ context.Context, job seace.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job through its lifecycle and refreshes counters.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status seace.JobStatus,
	message string,
	counters seace.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return seace.ErrJobNotFound
	}
	job.Status = status
	job.Message = message
	job.Counters = counters
	now := time.Now().UTC()
	if status == seace.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordOutcome appends one row's ingestion result to the job.
func (s *JobStore) RecordOutcome(_ context.Context, jobID string, outcome seace.RowOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return seace.ErrJobNotFound
	}
	switch outcome.Kind {
	case seace.OutcomeInserted:
		job.Inserted = append(job.Inserted, outcome.ProcessID)
	case seace.OutcomeUpdated:
		job.Updated = append(job.Updated, outcome.ProcessID)
	case seace.OutcomeErrored:
		job.Errors = append(job.Errors, seace.RowError{ProcessID: outcome.ProcessID, Message: outcome.Err})
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (seace.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return seace.Job{}, seace.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (s *JobStore) ListJobs(_ context.Context, status *seace.JobStatus, limit, offset int) ([]seace.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]seace.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Submitted.After(all[j].Submitted)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func pointerTime(t time.Time) *time.Time { return &t }
