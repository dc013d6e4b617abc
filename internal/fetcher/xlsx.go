package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	// HeaderMarker locates the header row: the first row with a cell equal
	// to it (case-insensitive). Rows above it are dropped. Empty means the
	// first row is the header.
	HeaderMarker string
}

// ReadXLSX reads a sheet and returns its header row and the data rows
// beneath it. Cell values are trimmed.
func ReadXLSX(path string, opts XLSXOptions) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}

	headerIdx := -1
	if opts.HeaderMarker == "" && len(sheet.Rows) > 0 {
		headerIdx = 0
	}
	for i, row := range sheet.Rows {
		if headerIdx >= 0 {
			break
		}
		for _, c := range rowToStrings(row) {
			if strings.EqualFold(c, opts.HeaderMarker) {
				headerIdx = i
				break
			}
		}
	}
	if headerIdx < 0 {
		return nil, nil, eris.Errorf("xlsx: header row with %q not found in %s", opts.HeaderMarker, path)
	}

	header := rowToStrings(sheet.Rows[headerIdx])
	var rows [][]string
	for _, row := range sheet.Rows[headerIdx+1:] {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
