package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_FirstRowHeader(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"CODGEO", "LIBGEO"},
			{"06088", " Nice "},
			{"", ""},
			{"06004", "Antibes"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CODGEO", "LIBGEO"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"06088", "Nice"}, rows[0])
}

func TestReadXLSX_HeaderMarker(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Communes": {
			{"Liste des communes littorales"},
			{"Source: loi littoral"},
			{"Code INSEE", "Commune", "Département"},
			{"06088", "Nice", "06"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Communes", HeaderMarker: "code insee"})
	require.NoError(t, err)
	assert.Equal(t, "Code INSEE", header[0])
	assert.Equal(t, [][]string{{"06088", "Nice", "06"}}, rows)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetName: "Communes", HeaderMarker: "absent"})
	assert.Error(t, err)
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, _, err := ReadXLSX(path, XLSXOptions{SheetName: "Nope"})
	assert.Error(t, err)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)

	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}
