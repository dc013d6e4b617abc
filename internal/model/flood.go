package model

import (
	"strings"

	"github.com/twpayne/go-geom"
)

// FloodStatus is the outcome of a flood-zone lookup.
type FloodStatus string

const (
	FloodInZone    FloodStatus = "in_zone"
	FloodNoZone    FloodStatus = "no_zone"
	FloodAmbiguous FloodStatus = "ambiguous"
	FloodFailed    FloodStatus = "failed"
)

// Scenario codes used by the TRI mapping.
const (
	ScenarioStrong  = "01For"
	ScenarioMedium  = "02Moy"
	ScenarioClimate = "03Mcc"
	ScenarioWeak    = "04Fai"
)

const floodTypeOverflow = "débordement"

// FloodTag is the per-transaction flood classification. Zone fields are
// set only when Status is FloodInZone.
type FloodTag struct {
	Status      FloodStatus `json:"status"`
	ResultCount int         `json:"results"`
	ZoneID      *string     `json:"identifiant_tri,omitempty"`
	FloodType   *string     `json:"type_inondation,omitempty"`
	Scenario    *string     `json:"scenario,omitempty"`
}

// InZone reports whether the point lies in exactly one flood zone.
func (f *FloodTag) InZone() bool {
	return f != nil && f.Status == FloodInZone
}

// Overflow reports whether the zone's flood type is river overflow.
func (f *FloodTag) Overflow() bool {
	if !f.InZone() || f.FloodType == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*f.FloodType), floodTypeOverflow)
}

// ScenarioCode returns the zone scenario code, or "" outside a zone.
func (f *FloodTag) ScenarioCode() string {
	if !f.InZone() || f.Scenario == nil {
		return ""
	}
	return *f.Scenario
}

// NewFloodTag builds a tag from a raw result count and the first zone's
// attributes, which are kept only when count is exactly 1.
func NewFloodTag(count int, zoneID, floodType, scenario string) FloodTag {
	switch {
	case count == 1:
		return FloodTag{
			Status:      FloodInZone,
			ResultCount: 1,
			ZoneID:      strPtr(zoneID),
			FloodType:   strPtr(floodType),
			Scenario:    strPtr(scenario),
		}
	case count > 1:
		return FloodTag{Status: FloodAmbiguous, ResultCount: count}
	default:
		return FloodTag{Status: FloodNoZone}
	}
}

// FailedFloodTag is the tag recorded after a lookup gave up.
func FailedFloodTag() FloodTag {
	return FloodTag{Status: FloodFailed}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloodZone is one flood-risk polygon of a TRI (territoire à risque
// important d'inondation).
type FloodZone struct {
	ID         string             `json:"id"`
	TRI        string             `json:"id_tri"`
	Department string             `json:"dept"`
	Scenario   string             `json:"scenario,omitempty"`
	FloodType  string             `json:"type_inondation,omitempty"`
	Geometry   *geom.MultiPolygon `json:"-"`
}
