package pipeline

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/spatial"
)

// GeoJSON property names of the commune boundary file.
const (
	communeAttrCode = "code"
	communeAttrName = "nom"
)

// Communes returns the communes of txs keyed by INSEE code, with boundary,
// centroid and POI sets. Communes already in the store are reused; the
// others are read from the boundary file, filled with POIs and saved.
func (p *Pipeline) Communes(ctx context.Context, txs []model.Transaction) (map[string]*model.Commune, error) {
	wanted := make(map[string]*model.Commune)
	for _, tx := range txs {
		if tx.CommuneCode == "" {
			continue
		}
		if _, ok := wanted[tx.CommuneCode]; ok {
			continue
		}
		wanted[tx.CommuneCode] = &model.Commune{
			Code:       tx.CommuneCode,
			Name:       tx.CommuneName,
			Department: tx.DepartmentCode,
			Population: tx.Population,
			Coastal:    true,
		}
	}

	out := make(map[string]*model.Commune, len(wanted))
	missing := make(map[string]*model.Commune)
	for code, c := range wanted {
		cached, err := p.store.GetCommune(ctx, code)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: get commune %s", code)
		}
		if cached != nil && cached.POIs != nil {
			out[code] = cached
			continue
		}
		missing[code] = c
	}
	if len(missing) == 0 {
		return out, nil
	}

	if err := p.loadBoundaries(missing); err != nil {
		return nil, err
	}

	fresh := make([]model.Commune, 0, len(missing))
	for code, c := range missing {
		if p.pois != nil {
			p.pois.ForCommune(ctx, c)
			for kind, pts := range c.POIs {
				p.metrics.POIPoints.WithLabelValues(string(kind)).Add(float64(len(pts)))
			}
		}
		out[code] = c
		fresh = append(fresh, *c)
	}
	if p.pois == nil {
		// Without POIs the communes are not cached, so a later run with an
		// Overpass endpoint fills them.
		return out, nil
	}
	if err := p.store.SaveCommunes(ctx, fresh); err != nil {
		return nil, eris.Wrap(err, "pipeline: save communes")
	}
	return out, nil
}

// loadBoundaries sets geometry and centroid on communes found in the
// configured GeoJSON file.
func (p *Pipeline) loadBoundaries(communes map[string]*model.Commune) error {
	path := p.cfg.Data.CommunesPath
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: open commune boundaries %s", path)
	}
	defer f.Close() //nolint:errcheck

	features, err := spatial.LoadGeoJSON(f)
	if err != nil {
		return err
	}

	found := 0
	for _, feat := range features {
		code := dvf.PadCode(feat.Attr(communeAttrCode), 5)
		c, ok := communes[code]
		if !ok || c.Geometry != nil {
			continue
		}
		c.Geometry = feat.Geometry
		if c.Name == "" {
			c.Name = feat.Attr(communeAttrName)
		}
		centroid, err := spatial.Centroid(feat.Geometry)
		if err != nil {
			zap.L().Debug("pipeline: commune centroid undefined", zap.String("commune", code), zap.Error(err))
		} else {
			c.Centroid = &centroid
		}
		found++
	}
	if found < len(communes) {
		zap.L().Warn("pipeline: communes without boundary",
			zap.Int("wanted", len(communes)),
			zap.Int("found", found),
		)
	}
	return nil
}
