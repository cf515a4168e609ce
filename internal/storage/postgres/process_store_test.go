package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

func sampleRecord() seace.ProcessRecord {
	now := time.Unix(1700000000, 0).UTC()
	pub := time.Date(2025, 10, 9, 14, 30, 0, 0, time.UTC)
	nomenclature := "AS-SM-12-2025-MDLP-1"
	objectType := "Servicio"
	amount := 1234.56
	return seace.ProcessRecord{
		ProcessID:       nomenclature,
		EntityName:      "MUNICIPALIDAD DISTRITAL DE LA PUNTA",
		PublicationDate: &pub,
		Nomenclature:    &nomenclature,
		ObjectType:      &objectType,
		Description:     "Servicio de mantenimiento de parques y jardines",
		ReferenceAmount: &amount,
		Currency:        seace.DefaultCurrency,
		Status:          seace.DefaultRecordStatus,
		SourceURL:       "https://prod2.seace.gob.pe/buscador?page=1",
		ScrapedAt:       now,
		SchemaVersion:   seace.DefaultSchemaVersion,
	}
}

func argsOf(rec seace.ProcessRecord) []any {
	return []any{
		rec.ProcessID, rec.EntityName, rec.PublicationDate, rec.Nomenclature,
		rec.ObjectType, rec.Description, rec.ReferenceAmount, rec.Currency,
		rec.Department, rec.Province, rec.District, rec.Status,
		rec.SourceURL, rec.ScrapedAt, rec.SchemaVersion,
	}
}

func TestUpsertReportsInsertVersusUpdate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProcessStoreWithPool(mock, "procurement_processes")
	require.NoError(t, err)

	rec := sampleRecord()

	mock.ExpectQuery("INSERT INTO procurement_processes").
		WithArgs(argsOf(rec)...).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(true))
	res, err := store.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, res.Created)

	mock.ExpectQuery("INSERT INTO procurement_processes").
		WithArgs(argsOf(rec)...).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(false))
	res, err = store.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, res.Created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRequiresProcessID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProcessStoreWithPool(mock, "procurement_processes")
	require.NoError(t, err)

	rec := sampleRecord()
	rec.ProcessID = ""
	_, err = store.Upsert(context.Background(), rec)
	require.Error(t, err)
}

func TestRefreshSkipsMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProcessStoreWithPool(mock, "procurement_processes")
	require.NoError(t, err)

	rec := sampleRecord()

	mock.ExpectExec("UPDATE procurement_processes").
		WithArgs(argsOf(rec)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	applied, err := store.Refresh(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, applied)

	mock.ExpectExec("UPDATE procurement_processes").
		WithArgs(argsOf(rec)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	applied, err = store.Refresh(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogStoreRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunLogStoreWithPool(mock, "extraction_runs")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	entry := seace.RunLogEntry{
		ID:        "run-1",
		JobID:     "job-1",
		Operation: "extract",
		Status:    seace.JobStatusRunning,
		StartedAt: started,
	}

	mock.ExpectExec("INSERT INTO extraction_runs").
		WithArgs("run-1", "job-1", "extract", "running", "", 0, 0, 0, started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.StartRun(context.Background(), entry))

	mock.ExpectExec("UPDATE extraction_runs").
		WithArgs("run-1", "completed", "ok", 3, 2, 1, pgxmock.AnyArg(), int64(90000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	counters := seace.JobCounters{Inserted: 3, Updated: 2, Errored: 1}
	require.NoError(t, store.FinishRun(context.Background(), "run-1", seace.JobStatusCompleted, "ok", counters, 90*time.Second))

	mock.ExpectExec("UPDATE extraction_runs").
		WithArgs("run-9", "failed", "", 0, 0, 0, pgxmock.AnyArg(), int64(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = store.FinishRun(context.Background(), "run-9", seace.JobStatusFailed, "", seace.JobCounters{}, 0)
	require.ErrorIs(t, err, seace.ErrJobNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
