package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// RunLogStore appends run audit entries to Postgres.
type RunLogStore struct {
	pool  querier
	table string
}

// NewRunLogStore creates a Postgres-backed RunLogStore sharing the DSN
// handling of ProcessStore.
func NewRunLogStore(ctx context.Context, cfg ProcessStoreConfig) (*RunLogStore, error) {
	if cfg.Table == "" {
		cfg.Table = "extraction_runs"
	}
	store, err := NewProcessStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RunLogStore{pool: store.pool, table: store.table}, nil
}

// NewRunLogStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRunLogStoreWithPool(pool querier, table string) (*RunLogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "extraction_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunLogStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RunLogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun writes the opening audit entry.
func (s *RunLogStore) StartRun(ctx context.Context, entry seace.RunLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	job_id,
	operation,
	status,
	message,
	inserted,
	updated,
	errored,
	started_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.JobID,
		entry.Operation,
		string(entry.Status),
		entry.Message,
		entry.Counters.Inserted,
		entry.Counters.Updated,
		entry.Counters.Errored,
		entry.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run log %s: %w", entry.ID, err)
	}
	return nil
}

// FinishRun finalizes an entry with its terminal status and counters.
func (s *RunLogStore) FinishRun(
	ctx context.Context,
	runID string,
	status seace.JobStatus,
	message string,
	counters seace.JobCounters,
	duration time.Duration,
) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	message = $3,
	inserted = $4,
	updated = $5,
	errored = $6,
	finished_at = $7,
	duration_ms = $8
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		runID,
		string(status),
		message,
		counters.Inserted,
		counters.Updated,
		counters.Errored,
		time.Now().UTC(),
		duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("finalize run log %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize run log %s: %w", runID, seace.ErrJobNotFound)
	}
	return nil
}
