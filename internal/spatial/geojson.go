package spatial

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadGeoJSON reads the Polygon and MultiPolygon features of a GeoJSON
// FeatureCollection in WGS84. Property values are stringified.
func LoadGeoJSON(r io.Reader) ([]Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: read geojson")
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode geojson")
	}

	features := make([]Feature, 0, len(fc.Features))
	var skipped int
	for _, f := range fc.Features {
		mp := orbToMultiPolygon(f.Geometry)
		if mp == nil {
			skipped++
			continue
		}
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			attrs[k] = fmt.Sprint(v)
		}
		features = append(features, Feature{Attributes: attrs, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Debug("spatial: skipped non-polygon geojson features", zap.Int("skipped", skipped))
	}
	return features, nil
}

func orbToMultiPolygon(g orb.Geometry) *geom.MultiPolygon {
	var polys []orb.Polygon
	switch t := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{t}
	case orb.MultiPolygon:
		polys = t
	default:
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, p := range polys {
		poly := geom.NewPolygon(geom.XY)
		for _, ring := range p {
			if len(ring) < 4 {
				continue
			}
			flat := make([]float64, 0, len(ring)*2)
			for _, pt := range ring {
				flat = append(flat, pt.Lon(), pt.Lat())
			}
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				continue
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
