// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// querier is the slice of pgxpool.Pool the stores need; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProcessStoreConfig controls the Postgres connection pool.
type ProcessStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ProcessStore persists normalized procurement records keyed by process_id.
type ProcessStore struct {
	pool  querier
	table string
}

// NewProcessStore creates a Postgres-backed ProcessStore using the
// provided config.
func NewProcessStore(ctx context.Context, cfg ProcessStoreConfig) (*ProcessStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "procurement_processes"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProcessStore{pool: pool, table: table}, nil
}

// NewProcessStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProcessStoreWithPool(pool querier, table string) (*ProcessStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "procurement_processes"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProcessStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProcessStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts the record or updates the existing row with the same
// process_id. The xmax trick distinguishes a fresh insert from a conflict
// update without a second round trip.
func (s *ProcessStore) Upsert(ctx context.Context, record seace.ProcessRecord) (seace.UpsertResult, error) {
	if s == nil || s.pool == nil {
		return seace.UpsertResult{}, fmt.Errorf("process store is not configured")
	}
	if record.ProcessID == "" {
		return seace.UpsertResult{}, fmt.Errorf("process id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	process_id,
	entity_name,
	publication_date,
	nomenclature,
	contract_object_type,
	description,
	reference_amount,
	currency,
	department,
	province,
	district,
	status,
	source_url,
	scraped_at,
	schema_version
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (process_id) DO UPDATE SET
	entity_name = EXCLUDED.entity_name,
	publication_date = EXCLUDED.publication_date,
	nomenclature = EXCLUDED.nomenclature,
	contract_object_type = EXCLUDED.contract_object_type,
	description = EXCLUDED.description,
	reference_amount = EXCLUDED.reference_amount,
	currency = EXCLUDED.currency,
	department = EXCLUDED.department,
	province = EXCLUDED.province,
	district = EXCLUDED.district,
	status = EXCLUDED.status,
	source_url = EXCLUDED.source_url,
	scraped_at = EXCLUDED.scraped_at,
	schema_version = EXCLUDED.schema_version
RETURNING (xmax = 0) AS created`, s.table)

	var created bool
	err := s.pool.QueryRow(ctx, query, upsertArgs(record)...).Scan(&created)
	if err != nil {
		return seace.UpsertResult{}, fmt.Errorf("upsert process %s: %w", record.ProcessID, err)
	}
	return seace.UpsertResult{Created: created}, nil
}

// Refresh updates an existing row in place and reports whether one was
// there. It never inserts.
func (s *ProcessStore) Refresh(ctx context.Context, record seace.ProcessRecord) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("process store is not configured")
	}
	if record.ProcessID == "" {
		return false, fmt.Errorf("process id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	entity_name = $2,
	publication_date = $3,
	nomenclature = $4,
	contract_object_type = $5,
	description = $6,
	reference_amount = $7,
	currency = $8,
	department = $9,
	province = $10,
	district = $11,
	status = $12,
	source_url = $13,
	scraped_at = $14,
	schema_version = $15
WHERE process_id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, upsertArgs(record)...)
	if err != nil {
		return false, fmt.Errorf("refresh process %s: %w", record.ProcessID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func upsertArgs(record seace.ProcessRecord) []any {
	return []any{
		record.ProcessID,
		record.EntityName,
		record.PublicationDate,
		record.Nomenclature,
		record.ObjectType,
		record.Description,
		record.ReferenceAmount,
		record.Currency,
		record.Department,
		record.Province,
		record.District,
		record.Status,
		record.SourceURL,
		record.ScrapedAt,
		record.SchemaVersion,
	}
}
