package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_PrefixFlattens(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"tri_2020_sig_di_06/n_tri_nice/ISO_HT_03_01FOR_S_06.shp": "shp",
		"tri_2020_sig_di_06/n_tri_nice/iso_ht_03_01for_s_06.dbf": "dbf",
		"tri_2020_sig_di_06/n_tri_nice/iso_ht_02_02moy_s_06.shp": "other",
		"readme.txt": "x",
	})

	dest := t.TempDir()
	extracted, err := ExtractZIP(zipPath, "iso_ht_03_01for_s_", dest)
	require.NoError(t, err)
	require.Len(t, extracted, 2)

	sort.Strings(extracted)
	assert.Equal(t, filepath.Join(dest, "ISO_HT_03_01FOR_S_06.shp"), extracted[0])
	data, err := os.ReadFile(extracted[1])
	require.NoError(t, err)
	assert.Equal(t, "dbf", string(data))
}

func TestExtractZIP_EmptyPrefixTakesAll(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"a.txt": "1", "dir/b.txt": "2"})
	extracted, err := ExtractZIP(zipPath, "", t.TempDir())
	require.NoError(t, err)
	assert.Len(t, extracted, 2)
}

func TestExtractZIPFile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"communes/communes.geojson": "{}", "other": "x"})
	dest := t.TempDir()

	path, err := ExtractZIPFile(zipPath, "communes/communes.geojson", dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "communes", "communes.geojson"), path)

	_, err = ExtractZIPFile(zipPath, "missing", dest)
	assert.Error(t, err)
}

func TestExtractZIPFile_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"../evil.txt": "bad"})
	_, err := ExtractZIPFile(zipPath, "../evil.txt", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestExtractZIP_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, writeTestFile(p, "not a zip"))
	_, err := ExtractZIP(p, "", t.TempDir())
	assert.Error(t, err)
}
