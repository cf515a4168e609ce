package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
	"github.com/openconvocatoria/seace-ingest/internal/storage/memory"
)

func exportRecords() []seace.ProcessRecord {
	pub := time.Date(2025, 10, 9, 14, 30, 0, 0, time.UTC)
	nomenclature := "AS-SM-12-2025-MDLP-1"
	amount := 1234.56
	return []seace.ProcessRecord{
		{
			ProcessID:       nomenclature,
			EntityName:      "MUNICIPALIDAD DISTRITAL DE LA PUNTA",
			PublicationDate: &pub,
			Nomenclature:    &nomenclature,
			Description:     "Servicio de mantenimiento de parques y jardines",
			ReferenceAmount: &amount,
			Currency:        seace.DefaultCurrency,
			Status:          seace.DefaultRecordStatus,
			SourceURL:       "https://prod2.seace.gob.pe/buscador?page=1",
			ScrapedAt:       time.Unix(1700000000, 0).UTC(),
			SchemaVersion:   seace.DefaultSchemaVersion,
		},
		{
			ProcessID:   "SEACE-1700000000000000000-2-00ff",
			EntityName:  "GOBIERNO REGIONAL DE CUSCO",
			Description: "Mejoramiento de la carretera vecinal tramo A",
			Currency:    seace.DefaultCurrency,
			Status:      seace.DefaultRecordStatus,
			ScrapedAt:   time.Unix(1700000000, 0).UTC(),
		},
	}
}

func TestExportWritesAllFormats(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSink(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)

	artifacts, err := sink.Export(context.Background(), "job-1", exportRecords())
	require.NoError(t, err)
	require.Equal(t, 2, artifacts.RowsCount)

	text, err := os.ReadFile(artifacts.TextPath)
	require.NoError(t, err)
	require.Contains(t, string(text), "AS-SM-12-2025-MDLP-1")
	require.Contains(t, string(text), "Registros: 2")

	jsonData, err := os.ReadFile(artifacts.JSONPath)
	require.NoError(t, err)
	var decoded []seace.ProcessRecord
	require.NoError(t, json.Unmarshal(jsonData, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "GOBIERNO REGIONAL DE CUSCO", decoded[1].EntityName)

	csvFile, err := os.Open(artifacts.CSVPath)
	require.NoError(t, err)
	defer csvFile.Close()
	rows, err := csv.NewReader(csvFile).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + two records
	require.Equal(t, "process_id", rows[0][0])
	require.Equal(t, "1234.56", rows[1][6])
	require.Equal(t, "", rows[2][6]) // missing amount stays blank

	wb, err := excelize.OpenFile(artifacts.XLSXPath)
	require.NoError(t, err)
	defer wb.Close()
	sheetRows, err := wb.GetRows("Procesos")
	require.NoError(t, err)
	require.Len(t, sheetRows, 3)
	require.Equal(t, "AS-SM-12-2025-MDLP-1", sheetRows[1][0])
}

func TestExportMirrorsToBlobStore(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	sink, err := NewFileSink(t.TempDir(), blob, zap.NewNop())
	require.NoError(t, err)

	artifacts, err := sink.Export(context.Background(), "job-2", exportRecords())
	require.NoError(t, err)
	require.Len(t, artifacts.BlobURIs, 3)

	payload, ok := blob.GetObject("job-2/records.json")
	require.True(t, ok)
	require.True(t, strings.Contains(string(payload), "AS-SM-12-2025-MDLP-1"))
}

func TestExportEmptyBatchStillWritesFiles(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSink(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)

	artifacts, err := sink.Export(context.Background(), "job-3", nil)
	require.NoError(t, err)
	require.Zero(t, artifacts.RowsCount)
	require.FileExists(t, artifacts.TextPath)
	require.FileExists(t, artifacts.CSVPath)
}
