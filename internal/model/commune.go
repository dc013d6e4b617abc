package model

import (
	"github.com/twpayne/go-geom"
)

// POIKind names a class of point of interest used for distance features.
type POIKind string

const (
	POITownhall POIKind = "townhall"
	POIBeach    POIKind = "beach"
	POIStation  POIKind = "station"
	POIHarbor   POIKind = "harbor"
)

// AllPOIKinds lists every kind in query order.
var AllPOIKinds = []POIKind{POITownhall, POIBeach, POIStation, POIHarbor}

// Commune is a French municipality with its boundary and reference points.
type Commune struct {
	Code       string                     `json:"code"`
	Name       string                     `json:"nom"`
	Department string                     `json:"dept"`
	Population *int                       `json:"population,omitempty"`
	Coastal    bool                       `json:"coastal"`
	Geometry   *geom.MultiPolygon         `json:"-"`
	Centroid   *Coordinate                `json:"centroid,omitempty"`
	POIs       map[POIKind]CoordinateList `json:"pois,omitempty"`
}

// Center returns the town-centre reference point: the first town hall when
// one is known, otherwise the centroid.
func (c *Commune) Center() (Coordinate, bool) {
	if th := c.POIs[POITownhall]; len(th) > 0 {
		return th[0], true
	}
	if c.Centroid != nil {
		return *c.Centroid, true
	}
	return Coordinate{}, false
}
