package floodzone

import (
	"context"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/spatial"
)

// LocalClassifier evaluates points against an in-memory zone layer with the
// same 0 / 1 / many semantics as the remote API. The layer is read-only after
// construction and safe for concurrent use.
type LocalClassifier struct {
	zones  []model.FloodZone
	bounds []spatial.BBox
}

// NewLocalClassifier indexes zones. Zones without geometry are dropped.
func NewLocalClassifier(zones []model.FloodZone) *LocalClassifier {
	lc := &LocalClassifier{}
	for _, z := range zones {
		if z.Geometry == nil || z.Geometry.Empty() {
			continue
		}
		lc.zones = append(lc.zones, z)
		lc.bounds = append(lc.bounds, spatial.Bounds(z.Geometry))
	}
	return lc
}

// Len returns the number of indexed zones.
func (lc *LocalClassifier) Len() int { return len(lc.zones) }

// Classify counts the zones containing p.
func (lc *LocalClassifier) Classify(_ context.Context, p model.Coordinate) model.FloodTag {
	if !p.Valid() {
		return model.FailedFloodTag()
	}

	var count int
	var match *model.FloodZone
	for i := range lc.zones {
		if !lc.bounds[i].Has(p) {
			continue
		}
		if spatial.Contains(lc.zones[i].Geometry, p) {
			count++
			if match == nil {
				match = &lc.zones[i]
			}
		}
	}

	if count == 1 {
		return model.NewFloodTag(1, match.TRI, match.FloodType, match.Scenario)
	}
	return model.NewFloodTag(count, "", "", "")
}
