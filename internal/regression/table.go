package regression

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Header rows added above the parameters.
const (
	RowObservations = "Observations"
	RowAdjR2        = "R² ajusté"
)

const (
	coefSuffix   = "_coef"
	pvalueSuffix = "_pvalue"
)

// ResultTable is a variable-by-model grid. Columns holds the cell column
// names; every row has one cell per column.
type ResultTable struct {
	Columns []string
	Rows    []ResultRow
}

// ResultRow is one variable's cells.
type ResultRow struct {
	Variable string
	Cells    []string
}

// Cell returns a named cell of the row for variable.
func (t *ResultTable) Cell(variable, column string) (string, bool) {
	ci := -1
	for i, c := range t.Columns {
		if c == column {
			ci = i
			break
		}
	}
	if ci < 0 {
		return "", false
	}
	for _, r := range t.Rows {
		if r.Variable == variable {
			return r.Cells[ci], true
		}
	}
	return "", false
}

// Variables lists the row variables in order.
func (t *ResultTable) Variables() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Variable
	}
	return out
}

// Stars formats a p-value rounded to three decimals with significance
// stars: *** below 0.01, ** below 0.05, * below 0.1. Nil gives "".
func Stars(p *float64) string {
	if p == nil || math.IsNaN(*p) {
		return ""
	}
	r := math.Round(*p*1000) / 1000
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	switch {
	case *p < 0.01:
		return s + "***"
	case *p < 0.05:
		return s + "**"
	case *p < 0.1:
		return s + "*"
	default:
		return s
	}
}

// Extract builds a two-column table for one model, named "<id>_coef" and
// "<id>_pvalue": the observation count and adjusted R² first, then each
// parameter's coefficient and starred p-value.
func Extract(m *Model, id string) *ResultTable {
	t := &ResultTable{Columns: []string{id + coefSuffix, id + pvalueSuffix}}
	t.Rows = append(t.Rows,
		ResultRow{Variable: RowObservations, Cells: []string{strconv.Itoa(m.N), ""}},
		ResultRow{Variable: RowAdjR2, Cells: []string{fmt.Sprintf("%.4f", m.AdjR2), ""}},
	)
	for i, name := range m.Params {
		p := m.PValues[i]
		t.Rows = append(t.Rows, ResultRow{
			Variable: name,
			Cells:    []string{strconv.FormatFloat(m.Coef[i], 'f', 4, 64), Stars(&p)},
		})
	}
	return t
}

// Join outer-joins tables on variable name. Rows keep first-appearance
// order and cells a table has no row for are blank.
func Join(tables ...*ResultTable) *ResultTable {
	out := &ResultTable{}
	index := make(map[string]int)

	for _, t := range tables {
		if t == nil {
			continue
		}
		offset := len(out.Columns)
		out.Columns = append(out.Columns, t.Columns...)
		for i := range out.Rows {
			out.Rows[i].Cells = append(out.Rows[i].Cells, make([]string, len(t.Columns))...)
		}
		for _, r := range t.Rows {
			i, ok := index[r.Variable]
			if !ok {
				i = len(out.Rows)
				index[r.Variable] = i
				out.Rows = append(out.Rows, ResultRow{Variable: r.Variable, Cells: make([]string, len(out.Columns))})
			}
			copy(out.Rows[i].Cells[offset:], r.Cells)
		}
	}
	return out
}

// FilterPrefix drops rows whose variable starts with prefix. The models
// still contain those parameters; only the display loses them.
func FilterPrefix(t *ResultTable, prefix string) *ResultTable {
	out := &ResultTable{Columns: t.Columns}
	for _, r := range t.Rows {
		if !strings.HasPrefix(r.Variable, prefix) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Order keeps the rows named in order, in that order. Names absent from
// the table are skipped.
func Order(t *ResultTable, order []string) *ResultTable {
	byName := make(map[string]ResultRow, len(t.Rows))
	for _, r := range t.Rows {
		byName[r.Variable] = r
	}
	out := &ResultTable{Columns: t.Columns}
	for _, name := range order {
		if r, ok := byName[name]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Relabel renames each coefficient column "<prefix> - <variant>" from the
// variant id it was extracted under, so a variant that failed to fit leaves
// a gap instead of shifting later labels. P-value headers are blanked.
func Relabel(t *ResultTable, prefix string) *ResultTable {
	out := &ResultTable{Columns: make([]string, len(t.Columns)), Rows: t.Rows}
	for j, c := range t.Columns {
		switch {
		case strings.HasSuffix(c, coefSuffix):
			out.Columns[j] = prefix + " - " + strings.TrimSuffix(c, coefSuffix)
		case strings.HasSuffix(c, pvalueSuffix):
			out.Columns[j] = ""
		default:
			out.Columns[j] = c
		}
	}
	return out
}

// WriteCSV writes the table with a leading "variable" column.
func WriteCSV(w io.Writer, t *ResultTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"variable"}, t.Columns...)); err != nil {
		return eris.Wrap(err, "regression: write header")
	}
	for _, r := range t.Rows {
		if err := cw.Write(append([]string{r.Variable}, r.Cells...)); err != nil {
			return eris.Wrap(err, "regression: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "regression: flush table")
}
