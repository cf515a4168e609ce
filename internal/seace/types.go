// Package seace defines core types shared across subsystems.
package seace

import (
	"time"
)

// JobStatus represents the lifecycle state of an extraction job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ContractObjectType is the portal's contracting-object category.
type ContractObjectType string

// Contract object types accepted by the portal's search filter.
const (
	ObjectBien        ContractObjectType = "bien"
	ObjectServicio    ContractObjectType = "servicio"
	ObjectConsultoria ContractObjectType = "consultoria"
	ObjectObra        ContractObjectType = "obra"
)

// Valid reports whether t is one of the recognized object types.
func (t ContractObjectType) Valid() bool {
	switch t {
	case ObjectBien, ObjectServicio, ObjectConsultoria, ObjectObra:
		return true
	default:
		return false
	}
}

// ExtractionParams captures per-job search filters requested by the client.
// Immutable once a run starts.
type ExtractionParams struct {
	Keywords     []string           `json:"keywords" mapstructure:"keywords"`
	ObjectType   ContractObjectType `json:"objeto_contratacion" mapstructure:"objeto_contratacion"`
	Year         int                `json:"anio" mapstructure:"anio"`
	MaxProcesses *int               `json:"max_processes" mapstructure:"max_processes"`
	FromDate     string             `json:"fecha_desde" mapstructure:"fecha_desde"`
	ToDate       string             `json:"fecha_hasta" mapstructure:"fecha_hasta"`
	Entity       *string            `json:"entidad" mapstructure:"entidad"`
	ProcessType  *string            `json:"tipo_proceso" mapstructure:"tipo_proceso"`
}

// Bounded reports whether the run has an admission cap.
func (p ExtractionParams) Bounded() bool {
	return p.MaxProcesses != nil && *p.MaxProcesses > 0
}

// RawRow is one scraped results-table row, untyped. The portal's list view
// renders 11 positional columns; rows are never persisted in this form.
type RawRow struct {
	Cells   []string
	PageURL string
}

// Positions of the columns this pipeline reads out of a RawRow.
const (
	ColOrdinal      = 0
	ColEntity       = 1
	ColPublished    = 2
	ColNomenclature = 3
	ColObjectType   = 5
	ColDescription  = 6
	ColAmount       = 7
	ColCurrency     = 8

	ExpectedColumns = 11
)

// Cell returns the trimmed cell at idx, or "" when the row is short.
func (r RawRow) Cell(idx int) string {
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return r.Cells[idx]
}

// ProcessRecord is the normalized, persisted procurement listing.
// ProcessID is never empty after normalization and is the upsert key.
type ProcessRecord struct {
	ProcessID       string     `json:"process_id"`
	EntityName      string     `json:"entity_name"`
	PublicationDate *time.Time `json:"publication_date"`
	Nomenclature    *string    `json:"nomenclature"`
	ObjectType      *string    `json:"contract_object_type"`
	Description     string     `json:"description"`
	ReferenceAmount *float64   `json:"reference_amount"`
	Currency        string     `json:"currency"`
	Department      *string    `json:"department"`
	Province        *string    `json:"province"`
	District        *string    `json:"district"`
	Status          string     `json:"status"`
	SourceURL       string     `json:"source_url"`
	ScrapedAt       time.Time  `json:"scraped_at"`
	SchemaVersion   string     `json:"schema_version"`
}

// Record defaults applied at normalization time.
const (
	DefaultCurrency      = "Soles"
	DefaultRecordStatus  = "Published"
	DefaultSchemaVersion = "3"
)

// JobCounters tracks ingestion outcomes per job.
type JobCounters struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errored  int `json:"errored"`
}

// RowError captures one record's persistence failure without failing the run.
type RowError struct {
	ProcessID string `json:"process_id"`
	Message   string `json:"message"`
}

// Job represents the metadata persisted for each submitted extraction run.
type Job struct {
	ID        string           `json:"id"`
	Status    JobStatus        `json:"status"`
	Params    ExtractionParams `json:"params"`
	Counters  JobCounters      `json:"counters"`
	Inserted  []string         `json:"inserted_ids,omitempty"`
	Updated   []string         `json:"updated_ids,omitempty"`
	Errors    []RowError       `json:"errors,omitempty"`
	Message   string           `json:"message,omitempty"`
	Submitted time.Time        `json:"submitted_at"`
	Started   *time.Time       `json:"started_at,omitempty"`
	Finished  *time.Time       `json:"finished_at,omitempty"`
}

// DurationMs returns the job's wall-clock duration in milliseconds, zero
// until it has started.
func (j Job) DurationMs() int64 {
	if j.Started == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.Finished != nil {
		end = *j.Finished
	}
	return end.Sub(*j.Started).Milliseconds()
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RowOutcome records how one normalized record fared against the store.
type RowOutcome struct {
	ProcessID string
	Kind      OutcomeKind
	Err       string
}

// OutcomeKind classifies a RowOutcome.
type OutcomeKind string

// Row outcome kinds.
const (
	OutcomeInserted OutcomeKind = "inserted"
	OutcomeUpdated  OutcomeKind = "updated"
	OutcomeErrored  OutcomeKind = "errored"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// RunLogEntry is the append-only audit record for one extraction run.
// Written once at run start and finalized once at run end.
type RunLogEntry struct {
	ID         string      `json:"id"`
	JobID      string      `json:"job_id"`
	Operation  string      `json:"operation"`
	Status     JobStatus   `json:"status"`
	Message    string      `json:"message"`
	Counters   JobCounters `json:"counters"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// PageInfo is the pagination state reported by the results table.
type PageInfo struct {
	HasNext      bool
	Current      int
	Total        int
	PositionText string
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    ExtractionParams
	Submitted int64
}

// ExportArtifacts lists the side-channel files written for one job.
type ExportArtifacts struct {
	TextPath  string `json:"text_path"`
	JSONPath  string `json:"json_path"`
	CSVPath   string `json:"csv_path"`
	XLSXPath  string `json:"xlsx_path"`
	BlobURIs  []string
	RowsCount int
}
