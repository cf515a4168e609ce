package seace

import (
	"context"
	"io"
	"time"
)

// SearchPage is the page object over the portal's search UI. One instance
// maps to one exclusive browser tab; all calls are strictly sequential.
// Implementations must be safe to Close more than once.
type SearchPage interface {
	// Open navigates to the public search form.
	Open(ctx context.Context) error

	// Filter configuration. Each call is independently best-effort at the
	// call site; implementations return errors, callers decide fatality.
	SelectResultsTab(ctx context.Context) error
	SetObjectType(ctx context.Context, t ContractObjectType) error
	SetYear(ctx context.Context, year int) error
	SetDateRange(ctx context.Context, from, to string) error
	SetKeywords(ctx context.Context, text string) error
	SetEntity(ctx context.Context, entity string) error
	SetProcessType(ctx context.Context, processType string) error

	// Submit triggers the search. Failure is fatal for the run.
	Submit(ctx context.Context) error
	// WaitResults blocks until the results table is present or the timeout
	// elapses, in which case it returns ErrResultsTimeout.
	WaitResults(ctx context.Context, timeout time.Duration) error

	// Rows extracts the current page's table rows.
	Rows(ctx context.Context) ([]RawRow, error)
	// Pagination reports next-page availability and position counters.
	Pagination(ctx context.Context) (PageInfo, error)
	// Advance moves to the next results page.
	Advance(ctx context.Context) error

	// URL returns the page's current address for record provenance.
	URL(ctx context.Context) (string, error)

	Close()
}

// SessionFactory opens a fresh browser page per job. Sessions are never
// shared across jobs.
type SessionFactory interface {
	NewSearchPage(ctx context.Context) (SearchPage, error)
}

// UpsertResult reports whether an upsert inserted a new record.
type UpsertResult struct {
	Created bool
}

// RecordStore persists ProcessRecords idempotently keyed by ProcessID.
type RecordStore interface {
	// Upsert inserts the record or updates it in place.
	Upsert(ctx context.Context, record ProcessRecord) (UpsertResult, error)
	// Refresh updates the record only if it already exists; it never
	// inserts. Returns false when no such record is stored.
	Refresh(ctx context.Context, record ProcessRecord) (bool, error)
}

// JobStore persists extraction job metadata and per-row outcomes.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, message string, counters JobCounters) error
	RecordOutcome(ctx context.Context, jobID string, outcome RowOutcome) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
}

// RunLogStore owns the append-only audit trail of runs.
type RunLogStore interface {
	StartRun(ctx context.Context, entry RunLogEntry) error
	FinishRun(ctx context.Context, runID string, status JobStatus, message string, counters JobCounters, duration time.Duration) error
}

// ExportSink snapshots a normalized batch to durable side files before the
// database commit.
type ExportSink interface {
	Export(ctx context.Context, jobID string, records []ProcessRecord) (ExportArtifacts, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes job-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Prober checks that the portal responds at all before a browser session
// is spent on it.
type Prober interface {
	Check(ctx context.Context, url string) error
}

// Queue provides enqueue/dequeue semantics for extraction jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
