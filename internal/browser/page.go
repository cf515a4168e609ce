package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Selector candidates for the public search UI. The portal is a JSF/
// PrimeFaces app whose component ids drift between deployments, so every
// control is located by trying candidates in order.
var (
	resultsTabCandidates = []string{
		`a[href="#tbBuscador:idFormBuscarProceso"]`,
		`li[aria-controls*="BuscarProceso"] a`,
	}
	objectTypeCandidates = []string{
		`select[id$="objetoContratacion"]`,
		`select[id*="idObjeto"]`,
	}
	yearCandidates = []string{
		`select[id$="anioConvocatoria"]`,
		`select[id*="anio"]`,
	}
	fromDateCandidates = []string{
		`input[id$="fechaInicio_input"]`,
		`input[id*="FechaInicio"]`,
	}
	toDateCandidates = []string{
		`input[id$="fechaFin_input"]`,
		`input[id*="FechaFin"]`,
	}
	keywordsCandidates = []string{
		`input[id$="descripcionObjeto"]`,
		`textarea[id*="descripcion"]`,
	}
	entityCandidates = []string{
		`input[id$="txtNombreEntidad"]`,
		`input[id*="NombreEntidad"]`,
	}
	processTypeCandidates = []string{
		`select[id$="tipoProceso"]`,
		`select[id*="idTipoSeleccion"]`,
	}
	submitCandidates = []string{
		`button[id$="btnBuscarSelToken"]`,
		`button[id*="btnBuscar"]`,
		`input[type="submit"][value*="Buscar"]`,
	}
	resultsTableCandidates = []string{
		`div[id$="dtProcesos"] table`,
		`table[id*="dtProcesos"]`,
		`div.ui-datatable table`,
	}
	paginatorTextCandidates = []string{
		`span.ui-paginator-current`,
	}
	nextPageCandidates = []string{
		`a.ui-paginator-next`,
	}
)

// Page drives one browser tab through the search workflow. It is not safe
// for concurrent use; a job owns its page exclusively.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger

	closeOnce sync.Once
}

var _ seace.SearchPage = (*Page)(nil)

// step runs chromedp actions under the per-step timeout.
func (p *Page) step(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(p.ctx, p.cfg.StepTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stepCtx.Done():
		}
	}()
	return chromedp.Run(stepCtx, actions...)
}

// firstPresent returns the first candidate selector that matches an
// element on the page.
func (p *Page) firstPresent(ctx context.Context, candidates []string) (string, error) {
	for _, sel := range candidates {
		var found bool
		script := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
		if err := p.step(ctx, chromedp.Evaluate(script, &found)); err != nil {
			return "", fmt.Errorf("probe selector %q: %w", sel, err)
		}
		if found {
			return sel, nil
		}
	}
	return "", fmt.Errorf("no element matched any of %d candidate selectors", len(candidates))
}

// poll invokes probe every interval until it succeeds, the context is
// canceled, or the deadline passes.
func poll(ctx context.Context, deadline time.Time, interval time.Duration, probe func() bool) bool {
	for {
		if probe() {
			return true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}

// Open navigates to the search portal and waits for the document body.
func (p *Page) Open(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(p.ctx, p.cfg.NavigationTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-navCtx.Done():
		}
	}()
	err := chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "es-PE,es;q=0.9",
		}),
		chromedp.Navigate(p.cfg.PortalURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		return navigationError(p.cfg.PortalURL, err)
	}
	return nil
}

// navigationError keeps the chromedp cause in the message so a failed
// job can distinguish DNS trouble from a slow page, while callers still
// match the sentinel.
func navigationError(url string, cause error) error {
	return fmt.Errorf("open portal %s: %v: %w", url, cause, seace.ErrNavigationTimeout)
}

// inactiveTabFallback activates the first inactive tab when none of the
// known tab selectors survive a portal redeploy.
const inactiveTabFallback = `ul[role="tablist"] li:not(.ui-state-active) a`

// chooseTab picks the tab selector to click, trying the known candidates
// first and the generic inactive-tab fallback last.
func chooseTab(present func(sel string) bool) (sel string, fallback bool) {
	for _, c := range resultsTabCandidates {
		if present(c) {
			return c, false
		}
	}
	if present(inactiveTabFallback) {
		return inactiveTabFallback, true
	}
	return "", false
}

// SelectResultsTab switches to the procurement search tab when the portal
// lands on a different one.
func (p *Page) SelectResultsTab(ctx context.Context) error {
	sel, fallback := chooseTab(func(sel string) bool {
		var found bool
		script := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
		if err := p.step(ctx, chromedp.Evaluate(script, &found)); err != nil {
			return false
		}
		return found
	})
	if sel == "" {
		return fmt.Errorf("results tab: no element matched any of %d candidate selectors",
			len(resultsTabCandidates)+1)
	}
	if fallback {
		p.logger.Warn("results tab not recognized, activating first inactive tab",
			zap.String("selector", sel))
	}
	if err := p.step(ctx,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.Sleep(p.cfg.SettleDelay),
	); err != nil {
		return fmt.Errorf("click results tab: %w", err)
	}
	return nil
}

// objectTypeValues maps the API enum to the option values the portal's
// select control exposes.
var objectTypeValues = map[seace.ContractObjectType]string{
	seace.ObjectBien:        "1",
	seace.ObjectServicio:    "2",
	seace.ObjectObra:        "3",
	seace.ObjectConsultoria: "4",
}

func (p *Page) SetObjectType(ctx context.Context, t seace.ContractObjectType) error {
	value, ok := objectTypeValues[t]
	if !ok {
		return fmt.Errorf("unknown object type %q", t)
	}
	sel, err := p.firstPresent(ctx, objectTypeCandidates)
	if err != nil {
		return fmt.Errorf("object type control: %w", err)
	}
	return p.selectValue(ctx, sel, value)
}

func (p *Page) SetYear(ctx context.Context, year int) error {
	sel, err := p.firstPresent(ctx, yearCandidates)
	if err != nil {
		return fmt.Errorf("year control: %w", err)
	}
	return p.selectValue(ctx, sel, fmt.Sprintf("%d", year))
}

func (p *Page) SetDateRange(ctx context.Context, from, to string) error {
	if from != "" {
		sel, err := p.firstPresent(ctx, fromDateCandidates)
		if err != nil {
			return fmt.Errorf("from-date control: %w", err)
		}
		if err := p.fillInput(ctx, sel, from); err != nil {
			return fmt.Errorf("from-date: %w", err)
		}
	}
	if to != "" {
		sel, err := p.firstPresent(ctx, toDateCandidates)
		if err != nil {
			return fmt.Errorf("to-date control: %w", err)
		}
		if err := p.fillInput(ctx, sel, to); err != nil {
			return fmt.Errorf("to-date: %w", err)
		}
	}
	return nil
}

func (p *Page) SetKeywords(ctx context.Context, text string) error {
	sel, err := p.firstPresent(ctx, keywordsCandidates)
	if err != nil {
		return fmt.Errorf("keywords control: %w", err)
	}
	return p.fillInput(ctx, sel, text)
}

func (p *Page) SetEntity(ctx context.Context, entity string) error {
	sel, err := p.firstPresent(ctx, entityCandidates)
	if err != nil {
		return fmt.Errorf("entity control: %w", err)
	}
	return p.fillInput(ctx, sel, entity)
}

func (p *Page) SetProcessType(ctx context.Context, processType string) error {
	sel, err := p.firstPresent(ctx, processTypeCandidates)
	if err != nil {
		return fmt.Errorf("process type control: %w", err)
	}
	// The portal keys this select by label, not by numeric code.
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		const want = %q.toLowerCase();
		for (const opt of el.options) {
			if (opt.text.toLowerCase().includes(want)) {
				el.value = opt.value;
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, sel, processType)
	var matched bool
	if err := p.step(ctx, chromedp.Evaluate(script, &matched)); err != nil {
		return fmt.Errorf("set process type: %w", err)
	}
	if !matched {
		return fmt.Errorf("no option matched process type %q", processType)
	}
	return nil
}

// Submit clicks the search button. This is the one form step with no safe
// fallback.
func (p *Page) Submit(ctx context.Context) error {
	sel, err := p.firstPresent(ctx, submitCandidates)
	if err != nil {
		return seace.ErrSubmitNotFound
	}
	if err := p.step(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	return nil
}

// WaitResults blocks until the results table renders or the deadline
// passes. Every candidate selector is re-probed on each pass so a portal
// that only matches a fallback is still detected.
func (p *Page) WaitResults(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var matched string
	ok := poll(ctx, deadline, p.cfg.SettleDelay/3, func() bool {
		sel, err := p.firstPresent(ctx, resultsTableCandidates)
		if err != nil {
			return false
		}
		matched = sel
		return true
	})
	if !ok {
		return fmt.Errorf("results table after %s: %w", timeout, seace.ErrResultsTimeout)
	}
	p.logger.Debug("results table ready", zap.String("selector", matched))
	return p.step(ctx, chromedp.Sleep(p.cfg.SettleDelay))
}

// Rows snapshots the results table and parses it into raw rows.
func (p *Page) Rows(ctx context.Context) ([]seace.RawRow, error) {
	sel, err := p.firstPresent(ctx, resultsTableCandidates)
	if err != nil {
		return nil, fmt.Errorf("results table: %w", err)
	}
	var html string
	if err := p.step(ctx, chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("snapshot results table: %w", err)
	}
	pageURL, err := p.URL(ctx)
	if err != nil {
		p.logger.Debug("current url unavailable", zap.Error(err))
		pageURL = p.cfg.PortalURL
	}
	return ParseRows(html, pageURL)
}

// Pagination reads the paginator widget.
func (p *Page) Pagination(ctx context.Context) (seace.PageInfo, error) {
	var info seace.PageInfo

	textSel, err := p.firstPresent(ctx, paginatorTextCandidates)
	if err != nil {
		return info, fmt.Errorf("paginator text: %w", err)
	}
	if err := p.step(ctx, chromedp.Text(textSel, &info.PositionText, chromedp.ByQuery)); err != nil {
		return info, fmt.Errorf("read paginator text: %w", err)
	}
	info.Current, info.Total = parsePosition(info.PositionText)

	nextSel, err := p.firstPresent(ctx, nextPageCandidates)
	if err != nil {
		// No next control at all means a single unpaginated page.
		info.HasNext = false
		return info, nil
	}
	var disabled bool
	script := fmt.Sprintf(
		`document.querySelector(%q).classList.contains('ui-state-disabled')`, nextSel)
	if err := p.step(ctx, chromedp.Evaluate(script, &disabled)); err != nil {
		return info, fmt.Errorf("read next control state: %w", err)
	}
	info.HasNext = !disabled
	return info, nil
}

// Advance clicks the next-page control and waits for the paginator to
// report a new position, then for rows to be present.
func (p *Page) Advance(ctx context.Context) error {
	before, err := p.Pagination(ctx)
	if err != nil {
		return fmt.Errorf("read position before advance: %w", err)
	}

	nextSel, err := p.firstPresent(ctx, nextPageCandidates)
	if err != nil {
		return fmt.Errorf("next control: %w", err)
	}
	if err := p.step(ctx, chromedp.Click(nextSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click next: %w", err)
	}

	// The table swaps in place via AJAX. Poll the paginator text instead
	// of waiting on navigation.
	deadline := time.Now().Add(p.cfg.StepTimeout)
	moved := poll(ctx, deadline, p.cfg.SettleDelay/3, func() bool {
		after, err := p.Pagination(ctx)
		return err == nil && after.PositionText != before.PositionText
	})
	if !moved {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("paginator position stuck at %q after advance", before.PositionText)
	}

	// The position text flips before the row swap lands; wait for body
	// rows too so the caller does not snapshot a half-rendered table.
	if !poll(ctx, deadline, p.cfg.SettleDelay/3, func() bool { return p.hasDataRows(ctx) }) {
		p.logger.Warn("no data rows visible after page advance",
			zap.String("position_before", before.PositionText))
	}
	return p.step(ctx, chromedp.Sleep(p.cfg.SettleDelay))
}

// hasDataRows reports whether the results table currently holds body rows.
func (p *Page) hasDataRows(ctx context.Context) bool {
	sel, err := p.firstPresent(ctx, resultsTableCandidates)
	if err != nil {
		return false
	}
	script := fmt.Sprintf(
		`(() => { const t = document.querySelector(%q); return t !== null && t.querySelectorAll('tbody tr').length > 0; })()`, sel)
	var has bool
	if err := p.step(ctx, chromedp.Evaluate(script, &has)); err != nil {
		return false
	}
	return has
}

// URL reports the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.step(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Close releases the browser tab. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(p.cancel)
}

// selectValue sets a select control by option value and fires change.
func (p *Page) selectValue(ctx context.Context, sel, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		el.value = %q;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === %q;
	})()`, sel, value, value)
	var applied bool
	if err := p.step(ctx, chromedp.Evaluate(script, &applied)); err != nil {
		return fmt.Errorf("set select %q: %w", sel, err)
	}
	if !applied {
		return fmt.Errorf("select %q rejected value %q", sel, value)
	}
	return nil
}

// fillInput clears and types into a text control.
func (p *Page) fillInput(ctx context.Context, sel, value string) error {
	err := p.step(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", sel, err)
	}
	return nil
}

// parsePosition extracts current/total from paginator text such as
// "1 / 12" or "(Pagina 1 de 12)". Zeroes mean the text was unreadable.
func parsePosition(text string) (current, total int) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r < '0' || r > '9'
	})
	nums := make([]int, 0, 2)
	for _, f := range fields {
		var n int
		if _, err := fmt.Sscanf(f, "%d", &n); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) >= 2 {
		return nums[0], nums[1]
	}
	if len(nums) == 1 {
		return nums[0], nums[0]
	}
	return 0, 0
}
