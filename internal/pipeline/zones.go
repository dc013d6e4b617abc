package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/floodzone"
	"github.com/sells-group/dvf-flood/internal/model"
)

// ZoneLayerFile is the merged TRI layer written under the data dir.
const ZoneLayerFile = "tri_zones.shp"

// Departments returns the distinct department codes of txs, sorted.
func Departments(txs []model.Transaction) []string {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		if tx.DepartmentCode != "" {
			seen[tx.DepartmentCode] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ZoneLayerPath is where Zones writes the merged layer.
func (p *Pipeline) ZoneLayerPath() string {
	return filepath.Join(p.cfg.Data.Dir, ZoneLayerFile)
}

// Zones downloads the TRI archive of each department, keeps the layers
// named by the configured prefix and writes them as one shapefile. It
// returns the zones written.
func (p *Pipeline) Zones(ctx context.Context, depts []string) ([]model.FloodZone, error) {
	var zones []model.FloodZone
	err := p.trackStage(ctx, StageZones, func(ctx context.Context, _ string) (map[string]int, error) {
		dir := filepath.Join(p.cfg.Data.Dir, "tri")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "pipeline: create TRI dir")
		}

		archives, err := floodzone.DownloadDepartments(ctx, p.fetcher, p.cfg.Data.TRIURLTemplate, dir, depts, p.cfg.Georisques.Concurrency)
		if err != nil {
			return nil, err
		}
		zones, err = floodzone.LoadArchives(archives, p.cfg.Data.TRILayerPrefix)
		if err != nil {
			return nil, err
		}
		if len(zones) == 0 {
			return nil, eris.Errorf("pipeline: no %s layer in %d department archives", p.cfg.Data.TRILayerPrefix, len(archives))
		}
		if err := floodzone.WriteLayer(p.ZoneLayerPath(), zones); err != nil {
			return nil, err
		}
		return map[string]int{
			"departments": len(depts),
			"archives":    len(archives),
			"zones":       len(zones),
		}, nil
	})
	return zones, err
}
