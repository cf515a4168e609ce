package extractor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

func dataRow(ordinal int, entity string) seace.RawRow {
	return seace.RawRow{
		Cells: []string{
			fmt.Sprintf("%d", ordinal),
			entity,
			"09/10/2025 14:30",
			fmt.Sprintf("AS-SM-%d-2025-TEST-1", ordinal),
			"",
			"Servicio",
			"Contratacion del servicio de limpieza integral",
			"1.000,00",
			"Soles",
			"",
			"",
		},
	}
}

// fakePage is an in-memory SearchPage for deterministic loop tests.
type fakePage struct {
	pages        [][]seace.RawRow
	current      int
	claimsMore   bool // paginator lies about a next page after the last one
	advanceErr   error
	rowsErr      error
	submitErr    error
	filterErr    error
	filterCalls  []string
	submitCalled bool
	closed       bool
}

func (p *fakePage) Open(context.Context) error { return nil }

func (p *fakePage) SelectResultsTab(context.Context) error {
	p.filterCalls = append(p.filterCalls, "tab")
	return p.filterErr
}

func (p *fakePage) SetObjectType(_ context.Context, t seace.ContractObjectType) error {
	p.filterCalls = append(p.filterCalls, "object:"+string(t))
	return p.filterErr
}

func (p *fakePage) SetYear(_ context.Context, year int) error {
	p.filterCalls = append(p.filterCalls, fmt.Sprintf("year:%d", year))
	return p.filterErr
}

func (p *fakePage) SetDateRange(_ context.Context, from, to string) error {
	p.filterCalls = append(p.filterCalls, "range:"+from+".."+to)
	return p.filterErr
}

func (p *fakePage) SetKeywords(_ context.Context, text string) error {
	p.filterCalls = append(p.filterCalls, "keywords:"+text)
	return p.filterErr
}

func (p *fakePage) SetEntity(_ context.Context, entity string) error {
	p.filterCalls = append(p.filterCalls, "entity:"+entity)
	return p.filterErr
}

func (p *fakePage) SetProcessType(_ context.Context, pt string) error {
	p.filterCalls = append(p.filterCalls, "ptype:"+pt)
	return p.filterErr
}

func (p *fakePage) Submit(context.Context) error {
	p.submitCalled = true
	return p.submitErr
}

func (p *fakePage) WaitResults(context.Context, time.Duration) error { return nil }

func (p *fakePage) Rows(context.Context) ([]seace.RawRow, error) {
	if p.rowsErr != nil {
		return nil, p.rowsErr
	}
	if p.current >= len(p.pages) {
		return nil, nil
	}
	return p.pages[p.current], nil
}

func (p *fakePage) Pagination(context.Context) (seace.PageInfo, error) {
	hasNext := p.current < len(p.pages)-1 || p.claimsMore
	total := len(p.pages)
	if p.claimsMore {
		total++
	}
	return seace.PageInfo{
		HasNext:      hasNext,
		Current:      p.current + 1,
		Total:        total,
		PositionText: fmt.Sprintf("%d / %d", p.current+1, total),
	}, nil
}

func (p *fakePage) Advance(context.Context) error {
	if p.advanceErr != nil {
		return p.advanceErr
	}
	p.current++
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	return fmt.Sprintf("https://portal.test/buscador?page=%d", p.current+1), nil
}

func (p *fakePage) Close() { p.closed = true }

func TestRunVisitsAllPagesInOrder(t *testing.T) {
	t.Parallel()

	page := &fakePage{pages: [][]seace.RawRow{
		{dataRow(1, "ENTIDAD A"), dataRow(2, "ENTIDAD B")},
		{dataRow(1, "ENTIDAD C")},
		{dataRow(1, "ENTIDAD D"), dataRow(2, "ENTIDAD E")},
	}}
	ext := New(page, Config{}, zap.NewNop())

	var visited []int
	var total int
	stats, err := ext.Run(context.Background(), func(pageNum int, rows []seace.RawRow) error {
		visited = append(visited, pageNum)
		total += len(rows)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, visited)
	require.Equal(t, 5, total)
	require.Equal(t, 3, stats.PagesVisited)
	require.Equal(t, 5, stats.RowsExtracted)
	require.Zero(t, stats.RowsDropped)
}

func TestRunDropsInvalidRowsSilently(t *testing.T) {
	t.Parallel()

	short := seace.RawRow{Cells: []string{"1", "ENTIDAD", "fecha"}}
	badOrdinal := dataRow(1, "ENTIDAD F")
	badOrdinal.Cells[seace.ColOrdinal] = "Nro"
	headerish := dataRow(2, "Nombre o Sigla de la Entidad")
	tinyDesc := dataRow(3, "ENTIDAD G")
	tinyDesc.Cells[seace.ColDescription] = "corto"

	page := &fakePage{pages: [][]seace.RawRow{
		{short, badOrdinal, headerish, tinyDesc, dataRow(4, "ENTIDAD H")},
	}}
	ext := New(page, Config{}, zap.NewNop())

	stats, err := ext.Run(context.Background(), func(_ int, rows []seace.RawRow) error {
		require.Len(t, rows, 1)
		require.Equal(t, "ENTIDAD H", rows[0].Cell(seace.ColEntity))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RowsExtracted)
	require.Equal(t, 4, stats.RowsDropped)
}

func TestRunHaltsOnZeroRowAnomaly(t *testing.T) {
	t.Parallel()

	// Page two is empty although the paginator claims more pages exist.
	page := &fakePage{
		pages:      [][]seace.RawRow{{dataRow(1, "ENTIDAD A")}, {}},
		claimsMore: true,
	}
	ext := New(page, Config{}, zap.NewNop())

	var calls int
	stats, err := ext.Run(context.Background(), func(int, []seace.RawRow) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 2, stats.PagesVisited)
	require.Equal(t, 1, stats.RowsExtracted)
}

func TestRunStopsAtPageGuard(t *testing.T) {
	t.Parallel()

	pages := make([][]seace.RawRow, 10)
	for i := range pages {
		pages[i] = []seace.RawRow{dataRow(1, "ENTIDAD X")}
	}
	page := &fakePage{pages: pages}
	ext := New(page, Config{MaxPages: 4}, zap.NewNop())

	stats, err := ext.Run(context.Background(), func(int, []seace.RawRow) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 4, stats.PagesVisited)
}

func TestRunHaltsWhenAdvanceStalls(t *testing.T) {
	t.Parallel()

	// Advance fails and the paginator position never moves: the walk must
	// terminate instead of re-extracting the stalled page forever.
	page := &fakePage{
		pages:      [][]seace.RawRow{{dataRow(1, "ENTIDAD A")}},
		claimsMore: true,
		advanceErr: errors.New("next control did not respond"),
	}
	ext := New(page, Config{}, zap.NewNop())

	var calls int
	stats, err := ext.Run(context.Background(), func(int, []seace.RawRow) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, stats.PagesVisited)
}

func TestRunPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	page := &fakePage{pages: [][]seace.RawRow{{dataRow(1, "ENTIDAD A")}}}
	ext := New(page, Config{}, zap.NewNop())

	_, err := ext.Run(context.Background(), func(int, []seace.RawRow) error {
		return errors.New("sink exploded")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "consume page 1")
}

func TestFormDriverSwallowsFilterFailures(t *testing.T) {
	t.Parallel()

	entity := "GOBIERNO REGIONAL DE CUSCO"
	ptype := "Adjudicacion Simplificada"
	max := 100
	page := &fakePage{filterErr: errors.New("control not found")}
	driver := NewFormDriver(page, zap.NewNop())

	driver.Configure(context.Background(), seace.ExtractionParams{
		Keywords:     []string{"mantenimiento", "vial"},
		ObjectType:   seace.ObjectServicio,
		Year:         2025,
		FromDate:     "01/01/2025",
		ToDate:       "31/12/2025",
		Entity:       &entity,
		ProcessType:  &ptype,
		MaxProcesses: &max,
	})

	// Every filter was attempted despite each one failing.
	require.Len(t, page.filterCalls, 7)
}

func TestFormDriverSubmitFailurePropagates(t *testing.T) {
	t.Parallel()

	page := &fakePage{submitErr: seace.ErrSubmitNotFound}
	driver := NewFormDriver(page, zap.NewNop())

	err := driver.Submit(context.Background())
	require.ErrorIs(t, err, seace.ErrSubmitNotFound)
}
