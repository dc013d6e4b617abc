package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/dvf-flood/internal/model"
)

// Contains reports whether c lies inside mp. Points on a ring boundary
// count as inside; points inside a hole do not. The bounding box is only a
// pre-filter.
func Contains(mp *geom.MultiPolygon, c model.Coordinate) bool {
	if mp == nil || mp.Empty() || !c.Valid() {
		return false
	}
	pt := geom.Coord{c.Lon, c.Lat}
	if !mp.Bounds().OverlapsPoint(geom.XY, pt) {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		if polygonContains(mp.Polygon(i), pt) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for j := 1; j < p.NumLinearRings(); j++ {
		hole := p.LinearRing(j).FlatCoords()
		if xy.IsPointInRing(geom.XY, pt, hole) && !onRingBoundary(pt, hole) {
			return false
		}
	}
	return true
}

func onRingBoundary(pt geom.Coord, ring []float64) bool {
	if len(ring) < 4 {
		return false
	}
	return xy.IsOnLine(geom.XY, pt, ring)
}

// Centroid returns the area-weighted centroid of mp.
func Centroid(mp *geom.MultiPolygon) (model.Coordinate, error) {
	if mp == nil || mp.Empty() {
		return model.Coordinate{}, eris.New("spatial: centroid of empty geometry")
	}
	c, err := xy.Centroid(mp)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "spatial: centroid")
	}
	out := model.Coordinate{Lat: c.Y(), Lon: c.X()}
	if !out.Valid() {
		return model.Coordinate{}, eris.New("spatial: degenerate centroid")
	}
	return out, nil
}

// BBox is a lon/lat bounding box.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Bounds returns the bounding box of mp.
func Bounds(mp *geom.MultiPolygon) BBox {
	b := mp.Bounds()
	return BBox{MinLon: b.Min(0), MinLat: b.Min(1), MaxLon: b.Max(0), MaxLat: b.Max(1)}
}

// Has reports whether c lies inside or on the edge of b.
func (b BBox) Has(c model.Coordinate) bool {
	return c.Lon >= b.MinLon && c.Lon <= b.MaxLon && c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// Filter keeps the points of l that fall inside mp.
func Filter(l model.CoordinateList, mp *geom.MultiPolygon) model.CoordinateList {
	out := make(model.CoordinateList, 0, len(l))
	for _, c := range l {
		if Contains(mp, c) {
			out = append(out, c)
		}
	}
	return out
}
