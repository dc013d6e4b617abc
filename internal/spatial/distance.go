// Package spatial holds the geometry primitives behind the distance and
// zone-membership features: haversine distances, point-in-polygon tests,
// centroids, multipolygon decomposition, and loaders for commune and
// flood-zone layers.
package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/sells-group/dvf-flood/internal/model"
)

// HaversineKm returns the great-circle distance between a and b in km.
func HaversineKm(a, b model.Coordinate) float64 {
	return geo.DistanceHaversine(toOrb(a), toOrb(b)) / 1000
}

// NearestDistance returns the smallest haversine distance in km from point
// to any valid candidate. ok is false when the point is invalid or no
// candidate is usable; zero is never used as a sentinel.
func NearestDistance(point model.Coordinate, candidates model.CoordinateList) (km float64, ok bool) {
	if !point.Valid() {
		return 0, false
	}
	best := math.Inf(1)
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		if d := HaversineKm(point, c); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

func toOrb(c model.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}
