package extractor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Minimum structural requirements for a data row. Rows that miss them are
// header/separator rows, not data.
const (
	minColumns        = 7
	minDescriptionLen = 10
)

// Header labels the portal renders inside the table body on some views.
var headerLabels = map[string]struct{}{
	"nombre o sigla de la entidad": {},
	"entidad":                      {},
	"descripcion de objeto":        {},
	"descripción de objeto":        {},
}

// Config bounds the extraction loop.
type Config struct {
	// MaxPages is a defensive guard against a paginator that never
	// reports exhaustion. Zero means no guard.
	MaxPages int
}

// Stats summarizes one extraction walk.
type Stats struct {
	PagesVisited  int
	RowsExtracted int
	RowsDropped   int
}

// PageFunc consumes one page's validated rows. Returning an error aborts
// the walk.
type PageFunc func(pageNum int, rows []seace.RawRow) error

type loopState int

const (
	stateExtracting loopState = iota
	stateCheckingNext
	stateAdvancing
	stateDone
)

// Extractor walks the results table strictly in ascending page order. A
// walk is not restartable mid-stream; a fresh run begins at page 1.
type Extractor struct {
	page   seace.SearchPage
	cfg    Config
	logger *zap.Logger

	prevCurrent int
}

// New constructs an Extractor over an already-submitted search page.
func New(page seace.SearchPage, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{page: page, cfg: cfg, logger: logger}
}

// Run pulls pages until the paginator is exhausted, the page guard trips,
// or a page yields zero valid rows. Each page's rows are handed to fn
// before the next page is touched.
func (e *Extractor) Run(ctx context.Context, fn PageFunc) (Stats, error) {
	var stats Stats
	pageNum := 1
	state := stateExtracting

	for state != stateDone {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("extraction canceled: %w", err)
		}

		switch state {
		case stateExtracting:
			rows, err := e.extractPage(ctx, pageNum, &stats)
			if err != nil {
				return stats, err
			}
			if len(rows) == 0 {
				e.noteEmptyPage(ctx, pageNum)
				state = stateDone
				continue
			}
			if err := fn(pageNum, rows); err != nil {
				return stats, fmt.Errorf("consume page %d: %w", pageNum, err)
			}
			state = stateCheckingNext

		case stateCheckingNext:
			info, err := e.page.Pagination(ctx)
			if err != nil {
				e.logger.Warn("pagination state unreadable, stopping", zap.Int("page", pageNum), zap.Error(err))
				state = stateDone
				continue
			}
			e.logger.Debug("pagination state",
				zap.Int("current", info.Current),
				zap.Int("total", info.Total),
				zap.Bool("has_next", info.HasNext),
			)
			if !info.HasNext {
				state = stateDone
				continue
			}
			if e.cfg.MaxPages > 0 && pageNum >= e.cfg.MaxPages {
				e.logger.Warn("page guard reached, stopping",
					zap.Int("max_pages", e.cfg.MaxPages), zap.Int("total_reported", info.Total))
				state = stateDone
				continue
			}
			e.prevCurrent = info.Current
			state = stateAdvancing

		case stateAdvancing:
			if err := e.page.Advance(ctx); err != nil {
				e.logger.Warn("advance to next page failed", zap.Int("from_page", pageNum), zap.Error(err))
			}
			// A stalled paginator would hand us the same page forever;
			// verify the position actually moved before re-extracting.
			if after, err := e.page.Pagination(ctx); err == nil && e.prevCurrent > 0 && after.Current <= e.prevCurrent {
				e.logger.Warn("pagination position unchanged after advance, halting",
					zap.Int("position", after.Current), zap.String("position_text", after.PositionText))
				state = stateDone
				continue
			}
			pageNum++
			state = stateExtracting
		}
	}

	return stats, nil
}

func (e *Extractor) extractPage(ctx context.Context, pageNum int, stats *Stats) ([]seace.RawRow, error) {
	raw, err := e.page.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", pageNum, err)
	}
	stats.PagesVisited++

	valid := make([]seace.RawRow, 0, len(raw))
	for _, row := range raw {
		if reason := validateRow(row); reason != "" {
			stats.RowsDropped++
			e.logger.Debug("row dropped", zap.Int("page", pageNum), zap.String("reason", reason))
			continue
		}
		valid = append(valid, row)
	}
	stats.RowsExtracted += len(valid)
	return valid, nil
}

func (e *Extractor) noteEmptyPage(ctx context.Context, pageNum int) {
	info, err := e.page.Pagination(ctx)
	if err == nil && info.HasNext {
		// The paginator claims more pages but this one produced nothing.
		// Halting beats spinning against a stalled page.
		e.logger.Warn("zero rows extracted while paginator reports more pages, halting",
			zap.Int("page", pageNum), zap.Int("current", info.Current), zap.Int("total", info.Total))
		return
	}
	e.logger.Info("no rows on page, extraction complete", zap.Int("page", pageNum))
}

// validateRow returns a non-empty reason when the row is structural noise.
func validateRow(row seace.RawRow) string {
	if len(row.Cells) < minColumns {
		return fmt.Sprintf("only %d of %d columns", len(row.Cells), seace.ExpectedColumns)
	}
	ordinal, err := strconv.Atoi(strings.TrimSpace(row.Cell(seace.ColOrdinal)))
	if err != nil || ordinal <= 0 {
		return "non-numeric ordinal"
	}
	entity := strings.TrimSpace(row.Cell(seace.ColEntity))
	if entity == "" {
		return "missing entity"
	}
	if _, isHeader := headerLabels[strings.ToLower(entity)]; isHeader {
		return "header label in entity column"
	}
	if len(strings.TrimSpace(row.Cell(seace.ColDescription))) < minDescriptionLen {
		return "description too short"
	}
	return ""
}
