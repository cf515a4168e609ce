// Package export snapshots normalized batches to side files before the
// database commit, so a failed ingestion still leaves a recoverable copy.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

var csvHeader = []string{
	"process_id", "entity_name", "publication_date", "nomenclature",
	"contract_object_type", "description", "reference_amount", "currency",
	"department", "province", "district", "status", "source_url",
	"scraped_at", "schema_version",
}

// FileSink writes one .txt, .json, .csv and .xlsx file per job under a
// root directory, optionally mirroring them to a blob store.
type FileSink struct {
	root   string
	mirror seace.BlobStore
	logger *zap.Logger
}

// NewFileSink returns a sink rooted at dir. mirror may be nil.
func NewFileSink(root string, mirror seace.BlobStore, logger *zap.Logger) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{root: root, mirror: mirror, logger: logger}, nil
}

// Export writes all artifact formats for the batch. Mirror failures are
// logged but do not fail the export; local files are the source of truth.
func (s *FileSink) Export(ctx context.Context, jobID string, records []seace.ProcessRecord) (seace.ExportArtifacts, error) {
	if err := ctx.Err(); err != nil {
		return seace.ExportArtifacts{}, fmt.Errorf("context canceled: %w", err)
	}
	dir := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return seace.ExportArtifacts{}, fmt.Errorf("create job export dir: %w", err)
	}

	artifacts := seace.ExportArtifacts{RowsCount: len(records)}

	text := renderText(jobID, records)
	artifacts.TextPath = filepath.Join(dir, "records.txt")
	if err := os.WriteFile(artifacts.TextPath, []byte(text), 0o600); err != nil {
		return artifacts, fmt.Errorf("write text export: %w", err)
	}

	jsonPayload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return artifacts, fmt.Errorf("marshal records: %w", err)
	}
	artifacts.JSONPath = filepath.Join(dir, "records.json")
	if err := os.WriteFile(artifacts.JSONPath, jsonPayload, 0o600); err != nil {
		return artifacts, fmt.Errorf("write json export: %w", err)
	}

	csvPayload, err := renderCSV(records)
	if err != nil {
		return artifacts, fmt.Errorf("render csv: %w", err)
	}
	artifacts.CSVPath = filepath.Join(dir, "records.csv")
	if err := os.WriteFile(artifacts.CSVPath, csvPayload, 0o600); err != nil {
		return artifacts, fmt.Errorf("write csv export: %w", err)
	}

	artifacts.XLSXPath = filepath.Join(dir, "records.xlsx")
	if err := writeXLSX(artifacts.XLSXPath, records); err != nil {
		return artifacts, fmt.Errorf("write xlsx export: %w", err)
	}

	if s.mirror != nil {
		s.mirrorArtifacts(ctx, jobID, &artifacts, map[string][]byte{
			"records.txt":  []byte(text),
			"records.json": jsonPayload,
			"records.csv":  csvPayload,
		})
	}
	return artifacts, nil
}

func (s *FileSink) mirrorArtifacts(ctx context.Context, jobID string, artifacts *seace.ExportArtifacts, payloads map[string][]byte) {
	contentTypes := map[string]string{
		"records.txt":  "text/plain; charset=utf-8",
		"records.json": "application/json",
		"records.csv":  "text/csv",
	}
	for name, payload := range payloads {
		uri, err := s.mirror.PutObject(ctx, jobID+"/"+name, contentTypes[name], bytes.NewReader(payload))
		if err != nil {
			s.logger.Warn("export mirror failed",
				zap.String("job_id", jobID), zap.String("artifact", name), zap.Error(err))
			continue
		}
		artifacts.BlobURIs = append(artifacts.BlobURIs, uri)
	}
}

// renderText produces the human-readable report format.
func renderText(jobID string, records []seace.ProcessRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraccion de procesos de seleccion\n")
	fmt.Fprintf(&b, "Job: %s\n", jobID)
	fmt.Fprintf(&b, "Registros: %d\n", len(records))
	fmt.Fprintf(&b, "Generado: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 72) + "\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, rec.ProcessID)
		fmt.Fprintf(&b, "    Entidad:     %s\n", rec.EntityName)
		fmt.Fprintf(&b, "    Descripcion: %s\n", rec.Description)
		fmt.Fprintf(&b, "    Publicado:   %s\n", formatDate(rec.PublicationDate))
		fmt.Fprintf(&b, "    Monto:       %s %s\n", formatAmount(rec.ReferenceAmount), rec.Currency)
	}
	return b.String()
}

func renderCSV(records []seace.ProcessRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := w.Write(csvRow(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(path string, records []seace.ProcessRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Procesos"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for i, rec := range records {
		cells := csvRow(rec)
		row := make([]any, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("compute cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func csvRow(rec seace.ProcessRecord) []string {
	return []string{
		rec.ProcessID,
		rec.EntityName,
		formatDate(rec.PublicationDate),
		deref(rec.Nomenclature),
		deref(rec.ObjectType),
		rec.Description,
		formatAmount(rec.ReferenceAmount),
		rec.Currency,
		deref(rec.Department),
		deref(rec.Province),
		deref(rec.District),
		rec.Status,
		rec.SourceURL,
		rec.ScrapedAt.UTC().Format(time.RFC3339),
		rec.SchemaVersion,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatAmount(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
