package model

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformedCoordinates is returned when a serialized coordinate list
// cannot be decoded.
var ErrMalformedCoordinates = eris.New("model: malformed coordinate list")

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// CoordinateList is an ordered set of points, serialized as a JSON array of
// [lat, lon] pairs.
type CoordinateList []Coordinate

// MarshalJSON encodes the list as [[lat, lon], ...].
func (l CoordinateList) MarshalJSON() ([]byte, error) {
	pairs := make([][2]float64, len(l))
	for i, c := range l {
		pairs[i] = [2]float64{c.Lat, c.Lon}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [[lat, lon], ...]. Pairs of the wrong arity fail.
func (l *CoordinateList) UnmarshalJSON(b []byte) error {
	var raw [][]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(ErrMalformedCoordinates, err.Error())
	}
	out := make(CoordinateList, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return eris.Wrapf(ErrMalformedCoordinates, "pair %d has %d values", i, len(p))
		}
		out = append(out, Coordinate{Lat: p[0], Lon: p[1]})
	}
	*l = out
	return nil
}

// String returns the JSON form, used when writing list columns to CSV.
func (l CoordinateList) String() string {
	b, err := l.MarshalJSON()
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseCoordinateList decodes a serialized list. Blank input is an empty list.
func ParseCoordinateList(s string) (CoordinateList, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return CoordinateList{}, nil
	}
	var l CoordinateList
	if err := l.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return l, nil
}
