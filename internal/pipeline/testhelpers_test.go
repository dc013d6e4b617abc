package pipeline

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/dvf-flood/internal/config"
	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/monitoring"
	"github.com/sells-group/dvf-flood/internal/resilience"
	"github.com/sells-group/dvf-flood/internal/store"
)

var testStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

const niceGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"code":"06088","nom":"Nice"},
  "geometry":{"type":"Polygon","coordinates":[[[7.1,43.6],[7.4,43.6],[7.4,43.8],[7.1,43.8],[7.1,43.6]]]}},
 {"type":"Feature","properties":{"code":"69123","nom":"Lyon"},
  "geometry":{"type":"Polygon","coordinates":[[[4.7,45.7],[4.9,45.7],[4.9,45.8],[4.7,45.8],[4.7,45.7]]]}}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	communes := filepath.Join(dir, "communes.geojson")
	require.NoError(t, os.WriteFile(communes, []byte(niceGeoJSON), 0o644))

	return &config.Config{
		Geocode:    config.GeocodeConfig{Concurrency: 2, Keywords: []string{"Hotel de Ville de", "Mairie de"}},
		Georisques: config.GeorisquesConfig{Concurrency: 2, MaxAttempts: 1, Mode: "api"},
		Data: config.DataConfig{
			Dir:              filepath.Join(dir, "data"),
			Years:            []int{2023},
			TRILayerPrefix:   "iso_ht_03_01for_s_",
			CommunesPath:     communes,
			EnrichedSalesCSV: filepath.Join(dir, "data", "sales_enriched.csv"),
		},
		Regression: config.RegressionConfig{OutputDir: filepath.Join(dir, "output")},
	}
}

type testEnv struct {
	p       *Pipeline
	store   *store.SQLiteStore
	clock   *clockwork.FakeClock
	metrics *monitoring.Metrics
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	retry := resilience.FixedRetryConfig(1, time.Millisecond)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RateLimiters: map[string]*rate.Limiter{}, Retry: &retry})

	metrics := monitoring.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(testStart)

	p := New(cfg, st, f, metrics)
	p.SetClock(clock)
	return &testEnv{p: p, store: st, clock: clock, metrics: metrics, cfg: cfg}
}

// serveFiles serves fixed bodies by URL path.
func serveFiles(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// zipBytes packs name -> content into an archive.
func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
