package spatial

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dvf-flood/internal/model"
)

// square returns a counter-clockwise lon/lat square polygon.
func square(minLon, minLat, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minLon, minLat}, {minLon + size, minLat}, {minLon + size, minLat + size}, {minLon, minLat + size}, {minLon, minLat},
	}})
}

func multi(polys ...*geom.Polygon) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			panic(err)
		}
	}
	return mp
}

func TestHaversineKm_ParisLyon(t *testing.T) {
	paris := model.Coordinate{Lat: 48.8566, Lon: 2.3522}
	lyon := model.Coordinate{Lat: 45.7640, Lon: 4.8357}
	assert.InDelta(t, 392.0, HaversineKm(paris, lyon), 2.0)
	assert.InDelta(t, 0.0, HaversineKm(paris, paris), 1e-9)
}

func TestNearestDistance_MinOverCandidates(t *testing.T) {
	p := model.Coordinate{Lat: 43.70, Lon: 7.26}
	cands := model.CoordinateList{
		{Lat: 43.71, Lon: 7.27},
		{Lat: 43.90, Lon: 7.50},
		{Lat: 43.50, Lon: 7.00},
	}

	d, ok := NearestDistance(p, cands)
	require.True(t, ok)

	matched := false
	for _, c := range cands {
		dc := HaversineKm(p, c)
		assert.LessOrEqual(t, d, dc+1e-12)
		if math.Abs(dc-d) < 1e-12 {
			matched = true
		}
	}
	assert.True(t, matched, "nearest distance must equal one candidate distance")
}

func TestNearestDistance_Undefined(t *testing.T) {
	p := model.Coordinate{Lat: 43.7, Lon: 7.26}

	_, ok := NearestDistance(p, nil)
	assert.False(t, ok)

	_, ok = NearestDistance(p, model.CoordinateList{})
	assert.False(t, ok)

	_, ok = NearestDistance(model.Coordinate{Lat: math.NaN(), Lon: 7}, model.CoordinateList{{Lat: 1, Lon: 1}})
	assert.False(t, ok)

	_, ok = NearestDistance(p, model.CoordinateList{{Lat: math.NaN(), Lon: 1}})
	assert.False(t, ok)
}

func TestContains(t *testing.T) {
	mp := multi(square(0, 0, 1), square(5, 5, 1))

	assert.True(t, Contains(mp, model.Coordinate{Lat: 0.5, Lon: 0.5}))
	assert.True(t, Contains(mp, model.Coordinate{Lat: 5.5, Lon: 5.5}))
	assert.False(t, Contains(mp, model.Coordinate{Lat: 3, Lon: 3}))
	assert.False(t, Contains(mp, model.Coordinate{Lat: math.NaN(), Lon: 0.5}))
	assert.False(t, Contains(nil, model.Coordinate{Lat: 0.5, Lon: 0.5}))
}

func TestContains_Hole(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}},
	})
	mp := multi(poly)

	assert.True(t, Contains(mp, model.Coordinate{Lat: 0.5, Lon: 0.5}))
	assert.False(t, Contains(mp, model.Coordinate{Lat: 2, Lon: 2}))
}

func TestContains_BoundingBoxIsOnlyAPrefilter(t *testing.T) {
	// Triangle: the bbox corner (0.9, 0.9) is outside the shape.
	tri := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {0, 1}, {0, 0}}})
	mp := multi(tri)
	assert.False(t, Contains(mp, model.Coordinate{Lat: 0.9, Lon: 0.9}))
	assert.True(t, Contains(mp, model.Coordinate{Lat: 0.1, Lon: 0.1}))
}

func TestCentroid(t *testing.T) {
	c, err := Centroid(multi(square(2, 40, 2)))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.Lon, 1e-9)
	assert.InDelta(t, 41.0, c.Lat, 1e-9)

	_, err = Centroid(nil)
	assert.Error(t, err)
}

func TestDecompose_TwoParts(t *testing.T) {
	f := Feature{
		Attributes: map[string]string{"id": "Z1", "id_tri": "FRD_TRI_NICE", "dept": "06"},
		Geometry:   multi(square(0, 0, 1), square(2, 2, 1)),
	}
	single := Feature{Attributes: map[string]string{"id": "Z2"}, Geometry: multi(square(9, 9, 1))}

	out := Decompose([]Feature{f, single})
	require.Len(t, out, 3)
	for _, part := range out[:2] {
		assert.Equal(t, f.Attributes, part.Attributes)
		assert.Equal(t, 1, part.Geometry.NumPolygons())
	}
	assert.Equal(t, "Z2", out[2].Attr("id"))

	// Attribute maps are independent copies.
	out[0].Attributes["id"] = "changed"
	assert.Equal(t, "Z1", out[1].Attr("id"))
}

func TestLambert93_Origin(t *testing.T) {
	x, y := ToLambert93(model.Coordinate{Lat: 46.5, Lon: 3})
	assert.InDelta(t, 700000.0, x, 1e-3)
	assert.InDelta(t, 6600000.0, y, 1e-3)
}

func TestLambert93_RoundTrip(t *testing.T) {
	for _, c := range []model.Coordinate{
		{Lat: 48.8566, Lon: 2.3522},
		{Lat: 43.2965, Lon: 5.3698},
		{Lat: 47.2184, Lon: -1.5536},
		{Lat: 50.6292, Lon: 3.0573},
	} {
		x, y := ToLambert93(c)
		back := FromLambert93(x, y)
		assert.InDelta(t, c.Lat, back.Lat, 1e-8)
		assert.InDelta(t, c.Lon, back.Lon, 1e-8)
	}
}

func TestLambert93_Paris(t *testing.T) {
	x, y := ToLambert93(model.Coordinate{Lat: 48.8566, Lon: 2.3522})
	assert.InDelta(t, 652400.0, x, 1500)
	assert.InDelta(t, 6862000.0, y, 1500)
}

func TestShapefileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.shp")

	holed := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}},
	})
	features := []Feature{
		{Attributes: map[string]string{"id": "A", "dept": "06"}, Geometry: multi(holed)},
		{Attributes: map[string]string{"id": "B", "dept": "13"}, Geometry: multi(square(10, 10, 1), square(20, 20, 1))},
	}
	require.NoError(t, WriteShapefile(path, features, []string{"id", "dept"}))

	loaded, err := LoadShapefile(path, CRSWGS84)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "A", loaded[0].Attr("id"))
	assert.Equal(t, "06", loaded[0].Attr("dept"))
	require.Equal(t, 1, loaded[0].Geometry.NumPolygons())
	assert.Equal(t, 2, loaded[0].Geometry.Polygon(0).NumLinearRings())
	assert.False(t, Contains(loaded[0].Geometry, model.Coordinate{Lat: 2, Lon: 2}))
	assert.True(t, Contains(loaded[0].Geometry, model.Coordinate{Lat: 0.5, Lon: 0.5}))

	assert.Equal(t, 2, loaded[1].Geometry.NumPolygons())
	assert.Len(t, Decompose(loaded[1:]), 2)
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"), CRSWGS84)
	assert.Error(t, err)
}

func TestCRSFromPRJ(t *testing.T) {
	assert.Equal(t, CRSLambert93, crsFromPRJ(`PROJCS["RGF93_Lambert_93",GEOGCS["GCS_RGF_1993"]]`))
	assert.Equal(t, CRSWGS84, crsFromPRJ(`GEOGCS["GCS_WGS_1984"]`))
	assert.Equal(t, CRSWGS84, crsFromPRJ(""))
}

func TestLoadGeoJSON(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"code":"06088","nom":"Nice"},
	   "geometry":{"type":"Polygon","coordinates":[[[7.2,43.6],[7.3,43.6],[7.3,43.8],[7.2,43.8],[7.2,43.6]]]}},
	  {"type":"Feature","properties":{"code":"06004","nom":"Antibes"},
	   "geometry":{"type":"MultiPolygon","coordinates":[[[[7.0,43.5],[7.1,43.5],[7.1,43.6],[7.0,43.5]]],[[[7.12,43.55],[7.15,43.55],[7.15,43.58],[7.12,43.55]]]]}},
	  {"type":"Feature","properties":{"name":"pt"},"geometry":{"type":"Point","coordinates":[7,43]}}
	]}`

	features, err := LoadGeoJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "Nice", features[0].Attr("nom"))
	assert.Equal(t, "06088", features[0].Attr("code"))
	assert.True(t, Contains(features[0].Geometry, model.Coordinate{Lat: 43.7, Lon: 7.25}))
	assert.Equal(t, 2, features[1].Geometry.NumPolygons())
}

func TestLoadGeoJSON_Invalid(t *testing.T) {
	_, err := LoadGeoJSON(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestFilterAndBounds(t *testing.T) {
	mp := multi(square(0, 0, 1))
	in := Filter(model.CoordinateList{{Lat: 0.5, Lon: 0.5}, {Lat: 2, Lon: 2}}, mp)
	assert.Equal(t, model.CoordinateList{{Lat: 0.5, Lon: 0.5}}, in)

	b := Bounds(mp)
	assert.Equal(t, BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, b)
}
