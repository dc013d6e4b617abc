package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/floodzone"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/spatial"
	"github.com/sells-group/dvf-flood/pkg/geocode"
)

// EnrichStats counts the outcomes of one enrich stage.
type EnrichStats struct {
	Geocoded      int
	GeocodeMissed int
	Fallback      int
	NoCoordinate  int
	InZone        int
	NoZone        int
	Ambiguous     int
	Failed        int
}

func (s EnrichStats) asMap() map[string]int {
	return map[string]int{
		"geocoded":       s.Geocoded,
		"geocode_missed": s.GeocodeMissed,
		"fallback":       s.Fallback,
		"no_coordinate":  s.NoCoordinate,
		"in_zone":        s.InZone,
		"no_zone":        s.NoZone,
		"ambiguous":      s.Ambiguous,
		"flood_failed":   s.Failed,
	}
}

// Enrich resolves missing coordinates, derives distance features and tags
// flood-zone membership. The sales are updated in place, saved under the
// stage's run id and written to the enriched CSV.
func (p *Pipeline) Enrich(ctx context.Context, txs []model.Transaction) (EnrichStats, error) {
	var stats EnrichStats
	err := p.trackStage(ctx, StageEnrich, func(ctx context.Context, runID string) (map[string]int, error) {
		communes, err := p.Communes(ctx, txs)
		if err != nil {
			return nil, err
		}

		stats.Geocoded, stats.GeocodeMissed = p.geocodeAddresses(ctx, txs)
		stats.Fallback, stats.NoCoordinate = p.fallbackCoordinates(ctx, txs, communes)
		AddDistances(txs, communes)
		p.classify(ctx, txs, &stats)

		if err := p.store.SaveTransactions(ctx, runID, txs); err != nil {
			return nil, eris.Wrap(err, "pipeline: save enriched sales")
		}
		if err := p.writeEnriched(txs); err != nil {
			return nil, err
		}
		p.metrics.TransactionsProcessed.WithLabelValues(StageEnrich).Add(float64(len(txs)))
		return stats.asMap(), nil
	})
	return stats, err
}

// geocodeAddresses resolves the built address of every sale without a
// coordinate.
func (p *Pipeline) geocodeAddresses(ctx context.Context, txs []model.Transaction) (found, missed int) {
	if p.geocoder == nil {
		return 0, 0
	}

	queries := make(map[string]string)
	index := make(map[string]int)
	for i := range txs {
		if txs[i].Coord != nil || txs[i].Address == "" {
			continue
		}
		key := txs[i].Key()
		queries[key] = txs[i].Address
		index[key] = i
	}
	if len(queries) == 0 {
		return 0, 0
	}

	bar := p.newBar(len(queries), "geocoding addresses")
	results := geocode.BatchResolve(ctx, p.geocoder, queries, p.cfg.Geocode.Concurrency, tick(bar))

	for key, res := range results {
		p.metrics.GeocodeRequests.WithLabelValues(res.Status.String()).Inc()
		if !res.Found() {
			missed++
			zap.L().Debug("pipeline: address not geocoded",
				zap.String("sale", key),
				zap.String("status", res.Status.String()),
				zap.Error(res.Err),
			)
			continue
		}
		tx := &txs[index[key]]
		coord := res.Coord
		tx.Coord = &coord
		tx.CoordSource = model.CoordSourceAddress
		found++
	}
	return found, missed
}

// fallbackCoordinates gives the sales still without a coordinate their
// commune's reference point: a keyword search ("Mairie de <commune>")
// accepted only inside the commune boundary, else the commune centre.
func (p *Pipeline) fallbackCoordinates(ctx context.Context, txs []model.Transaction, communes map[string]*model.Commune) (filled, missing int) {
	points := make(map[string]*model.Coordinate)

	for i := range txs {
		tx := &txs[i]
		if tx.Coord != nil {
			continue
		}
		pt, seen := points[tx.CommuneCode]
		if !seen {
			pt = p.communePoint(ctx, communes[tx.CommuneCode], tx.CommuneName)
			points[tx.CommuneCode] = pt
		}
		if pt == nil {
			missing++
			continue
		}
		coord := *pt
		tx.Coord = &coord
		tx.CoordSource = model.CoordSourceFallback
		filled++
	}
	return filled, missing
}

func (p *Pipeline) communePoint(ctx context.Context, c *model.Commune, name string) *model.Coordinate {
	if c != nil && c.Name != "" {
		name = c.Name
	}
	if p.geocoder != nil && name != "" {
		var within geocode.Containment
		if c != nil && c.Geometry != nil {
			within = geocode.ContainmentFunc(func(pt model.Coordinate) bool {
				return spatial.Contains(c.Geometry, pt)
			})
		}
		res := geocode.ResolveWithFallback(ctx, p.geocoder, name, p.cfg.Geocode.Keywords, within)
		if res.Found() {
			p.metrics.GeocodeFallback.WithLabelValues("found").Inc()
			return &res.Coord
		}
	}
	if c != nil {
		if center, ok := c.Center(); ok {
			p.metrics.GeocodeFallback.WithLabelValues("centroid").Inc()
			return &center
		}
	}
	p.metrics.GeocodeFallback.WithLabelValues("missing").Inc()
	zap.L().Warn("pipeline: no reference point for commune", zap.String("commune", name))
	return nil
}

// AddDistances sets the town-centre, beach, station and harbor distances
// of every located sale. A feature is left unset when its reference set is
// empty.
func AddDistances(txs []model.Transaction, communes map[string]*model.Commune) {
	nearest := []struct {
		kind    model.POIKind
		feature string
	}{
		{model.POIBeach, model.FeatureDistanceBeach},
		{model.POIStation, model.FeatureDistanceStation},
		{model.POIHarbor, model.FeatureDistanceHarbor},
	}

	for i := range txs {
		tx := &txs[i]
		c := communes[tx.CommuneCode]
		if tx.Coord == nil || c == nil {
			continue
		}
		if center, ok := c.Center(); ok {
			tx.SetDistance(model.FeatureDistanceCenter, spatial.HaversineKm(*tx.Coord, center))
		}
		for _, n := range nearest {
			if km, ok := spatial.NearestDistance(*tx.Coord, c.POIs[n.kind]); ok {
				tx.SetDistance(n.feature, km)
			}
		}
	}
}

// classify tags every sale. Sales without a coordinate get a Failed tag.
func (p *Pipeline) classify(ctx context.Context, txs []model.Transaction, stats *EnrichStats) {
	points := make(map[string]model.Coordinate)
	index := make(map[string]int, len(txs))
	for i := range txs {
		index[txs[i].Key()] = i
		if txs[i].Coord != nil {
			points[txs[i].Key()] = *txs[i].Coord
		}
	}

	var tags map[string]model.FloodTag
	if p.classifier != nil && len(points) > 0 {
		bar := p.newBar(len(points), "flood zones")
		tags = floodzone.BatchWithProgress(ctx, p.classifier, points, p.cfg.Georisques.Concurrency, tick(bar))
	}

	for key, i := range index {
		tag, ok := tags[key]
		if !ok {
			tag = model.FailedFloodTag()
		}
		txs[i].Flood = &tag
		p.metrics.FloodLookups.WithLabelValues(string(tag.Status)).Inc()
		switch tag.Status {
		case model.FloodInZone:
			stats.InZone++
		case model.FloodNoZone:
			stats.NoZone++
		case model.FloodAmbiguous:
			stats.Ambiguous++
		default:
			stats.Failed++
		}
	}
}

func (p *Pipeline) writeEnriched(txs []model.Transaction) error {
	path := p.cfg.Data.EnrichedSalesCSV
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create output dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "pipeline: create enriched csv")
	}
	if err := dvf.WriteEnriched(f, txs); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return eris.Wrap(f.Close(), "pipeline: close enriched csv")
}
