// Package normalize coerces scraped row text into typed ProcessRecords.
package normalize

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Date layouts the portal renders in the list view, most specific first.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Placeholder values the portal uses for "no amount".
var amountPlaceholders = map[string]struct{}{
	"":    {},
	"---": {},
	"N/A": {},
	"n/a": {},
	"-":   {},
}

// Normalizer turns RawRows into ProcessRecords. It is side-effect-free on
// its inputs; the logger only records values that failed to parse.
type Normalizer struct {
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Record builds the persisted form of one scraped row. rowIndex is the
// row's position within the whole run, used for synthetic identities.
func (n *Normalizer) Record(row seace.RawRow, rowIndex int, scrapedAt time.Time) seace.ProcessRecord {
	nomenclature := strings.TrimSpace(row.Cell(seace.ColNomenclature))

	amount := ParseAmount(row.Cell(seace.ColAmount))
	if amount == nil && !isAmountPlaceholder(row.Cell(seace.ColAmount)) {
		n.logger.Debug("unparsable reference amount",
			zap.String("value", row.Cell(seace.ColAmount)),
			zap.Int("row", rowIndex),
		)
	}

	return seace.ProcessRecord{
		ProcessID:       ProcessID(nomenclature, scrapedAt, rowIndex),
		EntityName:      strings.TrimSpace(row.Cell(seace.ColEntity)),
		PublicationDate: ParseDate(row.Cell(seace.ColPublished)),
		Nomenclature:    nilIfEmpty(nomenclature),
		ObjectType:      nilIfEmpty(strings.TrimSpace(row.Cell(seace.ColObjectType))),
		Description:     strings.TrimSpace(row.Cell(seace.ColDescription)),
		ReferenceAmount: amount,
		Currency:        Currency(row.Cell(seace.ColCurrency)),
		Status:          seace.DefaultRecordStatus,
		SourceURL:       row.PageURL,
		ScrapedAt:       scrapedAt.UTC(),
		SchemaVersion:   seace.DefaultSchemaVersion,
	}
}

// ParseDate parses the portal's dd/mm/yyyy[ HH:MM[:SS]] format into a UTC
// timestamp. Unparsable input yields nil, never an error.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseAmount converts the portal's "1.234.567,89" notation into a float.
// Placeholders and garbage yield nil; negatives are rejected.
func ParseAmount(s string) *float64 {
	s = strings.TrimSpace(s)
	if _, placeholder := amountPlaceholders[s]; placeholder {
		return nil
	}
	cleaned := strings.ReplaceAll(s, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "S/"))
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

// Currency returns the trimmed currency label, defaulting to Soles.
func Currency(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return seace.DefaultCurrency
	}
	return s
}

// ProcessID derives the record identity from the portal's nomenclature. A
// blank nomenclature gets a synthetic identity built from the scrape
// timestamp, the row index, and a random suffix, so the not-null invariant
// always holds.
func ProcessID(nomenclature string, scrapedAt time.Time, rowIndex int) string {
	if nomenclature != "" {
		return nomenclature
	}
	return fmt.Sprintf("SEACE-%d-%d-%04x", scrapedAt.UnixNano(), rowIndex, rand.Intn(0x10000))
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isAmountPlaceholder(s string) bool {
	_, ok := amountPlaceholders[strings.TrimSpace(s)]
	return ok
}
