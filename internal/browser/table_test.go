package browser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

const sampleTable = `
<table id="tbBuscador:idFormBuscarProceso:dtProcesos" class="ui-datatable">
  <thead>
    <tr>
      <th>Nro</th><th>Nombre o Sigla de la Entidad</th><th>Fecha</th>
    </tr>
  </thead>
  <tbody>
    <tr class="ui-widget-content">
      <td>1</td>
      <td>  MUNICIPALIDAD
           DISTRITAL DE LA PUNTA </td>
      <td>09/10/2025 14:30</td>
      <td>AS-SM-12-2025-MDLP-1</td>
      <td></td>
      <td>Servicio</td>
      <td>Servicio de mantenimiento de parques y jardines</td>
      <td>1.234,56</td>
      <td>Soles</td>
      <td>CALLAO</td>
      <td><a href="#">Ficha</a></td>
    </tr>
    <tr>
      <td>2</td>
      <td>GOBIERNO REGIONAL DE CUSCO</td>
      <td>---</td>
      <td>LP-1-2025-GRC-1</td>
      <td></td>
      <td>Obra</td>
      <td>Mejoramiento de la carretera vecinal tramo A</td>
      <td>---</td>
      <td></td>
      <td>CUSCO</td>
      <td></td>
    </tr>
    <tr class="ui-datatable-empty-message">
      <th>sin celdas de datos</th>
    </tr>
  </tbody>
</table>`

func TestParseRows(t *testing.T) {
	t.Parallel()

	rows, err := ParseRows(sampleTable, "https://portal.test/buscador?page=1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Len(t, first.Cells, 11)
	require.Equal(t, "1", first.Cell(seace.ColOrdinal))
	// Internal whitespace runs collapse to single spaces.
	require.Equal(t, "MUNICIPALIDAD DISTRITAL DE LA PUNTA", first.Cell(seace.ColEntity))
	require.Equal(t, "09/10/2025 14:30", first.Cell(seace.ColPublished))
	require.Equal(t, "Soles", first.Cell(seace.ColCurrency))
	require.Equal(t, "https://portal.test/buscador?page=1", first.PageURL)

	second := rows[1]
	require.Equal(t, "---", second.Cell(seace.ColAmount))
	require.Equal(t, "", second.Cell(seace.ColCurrency))
}

func TestParseRowsEmptyTable(t *testing.T) {
	t.Parallel()

	rows, err := ParseRows(`<table><tbody></tbody></table>`, "u")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestParsePosition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in            string
		current, total int
	}{
		{"1 / 12", 1, 12},
		{"(Pagina 3 de 40)", 3, 40},
		{"7", 7, 7},
		{"sin resultados", 0, 0},
	}
	for _, tc := range cases {
		current, total := parsePosition(tc.in)
		require.Equal(t, tc.current, current, "input %q", tc.in)
		require.Equal(t, tc.total, total, "input %q", tc.in)
	}
}
