package floodzone

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/resilience"
)

func squareZone(id string, minLon, minLat, size float64) model.FloodZone {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minLon, minLat}, {minLon + size, minLat}, {minLon + size, minLat + size}, {minLon, minLat + size}, {minLon, minLat},
	}})
	mp := geom.NewMultiPolygon(geom.XY)
	if err := mp.Push(poly); err != nil {
		panic(err)
	}
	return model.FloodZone{ID: id, TRI: "FRD_TRI_" + id, Department: "06", Scenario: model.ScenarioStrong, FloodType: "Submersion marine", Geometry: mp}
}

func TestLocalClassifier_OneVersusTwoZones(t *testing.T) {
	lc := NewLocalClassifier([]model.FloodZone{
		squareZone("A", 7.0, 43.0, 1.0),
		squareZone("B", 7.5, 43.5, 1.0),
		{ID: "empty"},
	})
	require.Equal(t, 2, lc.Len())
	ctx := context.Background()

	one := lc.Classify(ctx, model.Coordinate{Lat: 43.2, Lon: 7.2})
	assert.Equal(t, model.FloodInZone, one.Status)
	assert.Equal(t, 1, one.ResultCount)
	require.NotNil(t, one.ZoneID)
	assert.Equal(t, "FRD_TRI_A", *one.ZoneID)
	assert.Equal(t, model.ScenarioStrong, one.ScenarioCode())

	two := lc.Classify(ctx, model.Coordinate{Lat: 43.7, Lon: 7.7})
	assert.Equal(t, model.FloodAmbiguous, two.Status)
	assert.Equal(t, 2, two.ResultCount)
	assert.Nil(t, two.ZoneID)

	none := lc.Classify(ctx, model.Coordinate{Lat: 45, Lon: 2})
	assert.Equal(t, model.FloodNoZone, none.Status)

	bad := lc.Classify(ctx, model.Coordinate{Lat: 200, Lon: 7})
	assert.Equal(t, model.FloodFailed, bad.Status)
}

type countingClassifier struct {
	calls atomic.Int32
	inner Classifier
}

func (c *countingClassifier) Classify(ctx context.Context, p model.Coordinate) model.FloodTag {
	c.calls.Add(1)
	return c.inner.Classify(ctx, p)
}

func TestBatch_MergesByKeyAndSkipsInvalid(t *testing.T) {
	cc := &countingClassifier{inner: NewLocalClassifier([]model.FloodZone{squareZone("A", 7.0, 43.0, 1.0)})}

	points := map[string]model.Coordinate{
		"m1/1": {Lat: 43.5, Lon: 7.5},
		"m2/1": {Lat: 48.8, Lon: 2.3},
		"m3/1": {Lat: 0, Lon: 1000},
	}
	var progressed atomic.Int32
	out := BatchWithProgress(context.Background(), cc, points, 2, func() { progressed.Add(1) })

	require.Len(t, out, 3)
	assert.Equal(t, model.FloodInZone, out["m1/1"].Status)
	assert.Equal(t, model.FloodNoZone, out["m2/1"].Status)
	assert.Equal(t, model.FloodFailed, out["m3/1"].Status)
	assert.Equal(t, int32(2), cc.calls.Load())
	assert.Equal(t, int32(3), progressed.Load())

	assert.Empty(t, Batch(context.Background(), cc, nil, 0))
}

func TestScenarioFromLayer(t *testing.T) {
	assert.Equal(t, "01For", ScenarioFromLayer("n_tri_nice/ISO_HT_03_01FOR_S_06.shp"))
	assert.Equal(t, "04Fai", ScenarioFromLayer("iso_ht_01_04fai_s_13.shp"))
	assert.Equal(t, "03Mcc", ScenarioFromLayer("iso_ht_02_03mcc_s_83"))
	assert.Equal(t, "", ScenarioFromLayer("zones_inondables.shp"))
}

func TestWriteReadLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones_inondables.shp")
	zones := []model.FloodZone{squareZone("A", 7.0, 43.0, 1.0), squareZone("B", 5.0, 43.0, 0.5)}
	zones[1].Department = "13"

	require.NoError(t, WriteLayer(path, zones))

	got, err := ReadLayer(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, "FRD_TRI_A", got[0].TRI)
	assert.Equal(t, "13", got[1].Department)
	assert.Equal(t, model.ScenarioStrong, got[1].Scenario)

	tag := NewLocalClassifier(got).Classify(context.Background(), model.Coordinate{Lat: 43.2, Lon: 5.2})
	assert.Equal(t, "FRD_TRI_B", *tag.ZoneID)
}

// zipLayer writes zones as a shapefile and packs it into a TRI-like archive.
func zipLayer(t *testing.T, layer string, zones []model.FloodZone) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, WriteLayer(filepath.Join(dir, layer+".shp"), zones))

	zipPath := filepath.Join(t.TempDir(), "tri_2020_sig_di_06.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		src, err := os.ReadFile(filepath.Join(dir, layer+ext))
		require.NoError(t, err)
		fw, err := w.Create("tri_2020_sig_di_06/n_tri_nice/" + layer + ext)
		require.NoError(t, err)
		_, err = fw.Write(src)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return zipPath
}

func TestLoadZip_PrefixAndScenario(t *testing.T) {
	z := squareZone("A", 7.0, 43.0, 1.0)
	z.Scenario, z.Department = "", ""
	zipPath := zipLayer(t, "iso_ht_03_01for_s_06", []model.FloodZone{z})

	zones, err := LoadZip(zipPath, "iso_ht_03_01for_s_", "06")
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "06", zones[0].Department)
	assert.Equal(t, "01For", zones[0].Scenario)

	none, err := LoadZip(zipPath, "iso_ht_01_04fai_s_", "06")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := LoadArchives(map[string]string{"06": zipPath}, "iso_ht_03")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDownloadDepartments_SkipsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "_06.zip") {
			_, _ = io.WriteString(w, "PK")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	retry := resilience.FixedRetryConfig(1, time.Millisecond)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RateLimiters: map[string]*rate.Limiter{}, Retry: &retry})

	dir := t.TempDir()
	got, err := DownloadDepartments(context.Background(), f, srv.URL+"/tri_2020_sig_di_%s.zip", dir, []string{"06", "2A"}, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"06": filepath.Join(dir, "tri_2020_sig_di_06.zip")}, got)
}

type memTagCache struct {
	tags map[model.Coordinate]model.FloodTag
}

func (m *memTagCache) GetFloodTag(_ context.Context, p model.Coordinate) (*model.FloodTag, error) {
	if t, ok := m.tags[p]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memTagCache) PutFloodTag(_ context.Context, p model.Coordinate, tag model.FloodTag) error {
	m.tags[p] = tag
	return nil
}

func TestCachedClassifier(t *testing.T) {
	cache := &memTagCache{tags: map[model.Coordinate]model.FloodTag{}}
	cc := &countingClassifier{inner: NewLocalClassifier([]model.FloodZone{squareZone("A", 7.0, 43.0, 1.0)})}
	c := NewCachedClassifier(cc, cache)
	ctx := context.Background()

	in := model.Coordinate{Lat: 43.5, Lon: 7.5}
	assert.Equal(t, model.FloodInZone, c.Classify(ctx, in).Status)
	assert.Equal(t, model.FloodInZone, c.Classify(ctx, in).Status)
	assert.Equal(t, int32(1), cc.calls.Load())

	bad := model.Coordinate{Lat: 300, Lon: 7}
	c.Classify(ctx, bad)
	c.Classify(ctx, bad)
	assert.Equal(t, int32(3), cc.calls.Load(), "failed tags are not cached")
}
