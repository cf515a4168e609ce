package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// ParseRows turns a results-table HTML snapshot into raw rows. Structural
// validation happens downstream; this only flattens cells to trimmed text.
func ParseRows(html, pageURL string) ([]seace.RawRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results table: %w", err)
	}

	var rows []seace.RawRow
	doc.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := seace.RawRow{
			Cells:   make([]string, 0, cells.Length()),
			PageURL: pageURL,
		}
		cells.Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, cleanCell(td.Text()))
		})
		rows = append(rows, row)
	})
	return rows, nil
}

// cleanCell collapses the whitespace runs PrimeFaces leaves inside cells.
func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
