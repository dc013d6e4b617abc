package spatial

import (
	"maps"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is a polygonal record with string attributes, as read from a
// shapefile or GeoJSON layer.
type Feature struct {
	Attributes map[string]string
	Geometry   *geom.MultiPolygon
}

// Attr returns an attribute value, or "" when absent.
func (f Feature) Attr(name string) string {
	return f.Attributes[name]
}

// Decompose splits every multipolygon feature into one feature per
// component polygon. Each part carries a copy of its parent's attributes.
func Decompose(features []Feature) []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		n := f.Geometry.NumPolygons()
		if n <= 1 {
			out = append(out, f)
			continue
		}
		for i := 0; i < n; i++ {
			mp := geom.NewMultiPolygon(geom.XY).SetSRID(f.Geometry.SRID())
			if err := mp.Push(f.Geometry.Polygon(i)); err != nil {
				zap.L().Debug("spatial: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
				continue
			}
			out = append(out, Feature{Attributes: maps.Clone(f.Attributes), Geometry: mp})
		}
	}
	return out
}
