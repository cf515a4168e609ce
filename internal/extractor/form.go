// Package extractor drives the search form and walks the paginated
// results table through the SearchPage page object.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// FormDriver configures the remote search UI to match ExtractionParams.
//
// Every filter step is best-effort: the portal is a third-party UI and any
// individual control may have moved or been renamed, in which case the run
// proceeds with the portal's default for that filter. Only Submit has no
// safe fallback.
type FormDriver struct {
	page   seace.SearchPage
	logger *zap.Logger
}

// NewFormDriver wires the page object and logger.
func NewFormDriver(page seace.SearchPage, logger *zap.Logger) *FormDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormDriver{page: page, logger: logger}
}

// Configure applies all requested filters. Individual failures are logged
// as warnings and swallowed; Configure itself never fails.
func (d *FormDriver) Configure(ctx context.Context, params seace.ExtractionParams) {
	if err := d.page.SelectResultsTab(ctx); err != nil {
		d.logger.Warn("results tab not selected, relying on portal default", zap.Error(err))
	}
	if params.ObjectType != "" {
		if err := d.page.SetObjectType(ctx, params.ObjectType); err != nil {
			d.logger.Warn("object type filter not applied",
				zap.String("value", string(params.ObjectType)), zap.Error(err))
		}
	}
	if params.Year > 0 {
		if err := d.page.SetYear(ctx, params.Year); err != nil {
			d.logger.Warn("year filter not applied", zap.Int("year", params.Year), zap.Error(err))
		}
	}
	if params.FromDate != "" || params.ToDate != "" {
		if err := d.page.SetDateRange(ctx, params.FromDate, params.ToDate); err != nil {
			d.logger.Warn("date range filter not applied",
				zap.String("from", params.FromDate), zap.String("to", params.ToDate), zap.Error(err))
		}
	}
	if len(params.Keywords) > 0 {
		text := strings.Join(params.Keywords, " ")
		if err := d.page.SetKeywords(ctx, text); err != nil {
			d.logger.Warn("keyword filter not applied", zap.String("keywords", text), zap.Error(err))
		}
	}
	if params.Entity != nil && *params.Entity != "" {
		if err := d.page.SetEntity(ctx, *params.Entity); err != nil {
			d.logger.Warn("entity filter not applied", zap.String("entity", *params.Entity), zap.Error(err))
		}
	}
	if params.ProcessType != nil && *params.ProcessType != "" {
		if err := d.page.SetProcessType(ctx, *params.ProcessType); err != nil {
			d.logger.Warn("process type filter not applied",
				zap.String("process_type", *params.ProcessType), zap.Error(err))
		}
	}
}

// Submit triggers the search. Without a submission there are no results,
// so failure here propagates and fails the run.
func (d *FormDriver) Submit(ctx context.Context) error {
	if err := d.page.Submit(ctx); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	return nil
}
