package floodzone

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/spatial"
)

// Attribute names of a zone layer.
const (
	attrID        = "id"
	attrTRI       = "id_tri"
	attrDept      = "dept"
	attrScenario  = "scenario"
	attrFloodType = "typ_inond"
)

var layerFields = []string{attrID, attrTRI, attrDept, attrScenario, attrFloodType}

// iso_ht_03_01for_s_06 -> 01for
var scenarioPattern = regexp.MustCompile(`(?i)_(0[1-4])(for|moy|mcc|fai)_`)

// ScenarioFromLayer derives the scenario code from a TRI layer file name,
// e.g. "iso_ht_03_01for_s_06.shp" gives "01For". Unknown names give "".
func ScenarioFromLayer(name string) string {
	m := scenarioPattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return ""
	}
	s := strings.ToLower(m[2])
	return m[1] + strings.ToUpper(s[:1]) + s[1:]
}

// ZonesFromFeatures converts layer features into zones, one per component
// polygon. dept and scenario fill attributes the layer lacks.
func ZonesFromFeatures(features []spatial.Feature, dept, scenario string) []model.FloodZone {
	parts := spatial.Decompose(features)
	zones := make([]model.FloodZone, 0, len(parts))
	for _, f := range parts {
		z := model.FloodZone{
			ID:         f.Attr(attrID),
			TRI:        f.Attr(attrTRI),
			Department: f.Attr(attrDept),
			Scenario:   f.Attr(attrScenario),
			FloodType:  f.Attr(attrFloodType),
			Geometry:   f.Geometry,
		}
		if z.Department == "" {
			z.Department = dept
		}
		if z.Scenario == "" {
			z.Scenario = scenario
		}
		zones = append(zones, z)
	}
	return zones
}

// LoadZip reads every layer of a department TRI archive whose name starts
// with prefix.
func LoadZip(zipPath, prefix, dept string) ([]model.FloodZone, error) {
	names, err := spatial.ShapesInZip(zipPath, prefix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		zap.L().Warn("floodzone: no matching layer in archive",
			zap.String("zip", zipPath),
			zap.String("prefix", prefix),
		)
		return nil, nil
	}

	var zones []model.FloodZone
	for _, name := range names {
		features, err := spatial.LoadShapefileFromZip(zipPath, name, spatial.CRSAuto)
		if err != nil {
			return nil, err
		}
		zones = append(zones, ZonesFromFeatures(features, dept, ScenarioFromLayer(name))...)
	}
	return zones, nil
}

// DownloadDepartments fetches the TRI archive of each department into dir.
// Departments without a published archive are logged and skipped. It
// returns department -> archive path.
func DownloadDepartments(ctx context.Context, f fetcher.Fetcher, urlTemplate, dir string, depts []string, concurrency int) (map[string]string, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	out := make(map[string]string, len(depts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, dept := range depts {
		g.Go(func() error {
			url := fmt.Sprintf(urlTemplate, strings.ToLower(dept))
			dest := filepath.Join(dir, path.Base(url))

			changed, err := f.DownloadIfChanged(gctx, url, dest)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("floodzone: TRI archive unavailable",
					zap.String("dept", dept),
					zap.String("url", url),
					zap.Error(err),
				)
				return nil
			}
			zap.L().Debug("floodzone: TRI archive ready", zap.String("dept", dept), zap.Bool("downloaded", changed))

			mu.Lock()
			out[dept] = dest
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, eris.Wrap(err, "floodzone: download TRI archives")
	}
	return out, nil
}

// LoadArchives loads the prefixed layers of each department archive.
func LoadArchives(archives map[string]string, prefix string) ([]model.FloodZone, error) {
	depts := make([]string, 0, len(archives))
	for d := range archives {
		depts = append(depts, d)
	}
	sort.Strings(depts)

	var zones []model.FloodZone
	for _, d := range depts {
		z, err := LoadZip(archives[d], prefix, d)
		if err != nil {
			return nil, eris.Wrapf(err, "floodzone: load department %s", d)
		}
		zones = append(zones, z...)
	}
	return zones, nil
}

// WriteLayer saves zones as a single WGS84 shapefile.
func WriteLayer(shpPath string, zones []model.FloodZone) error {
	features := make([]spatial.Feature, 0, len(zones))
	for _, z := range zones {
		features = append(features, spatial.Feature{
			Attributes: map[string]string{
				attrID:        z.ID,
				attrTRI:       z.TRI,
				attrDept:      z.Department,
				attrScenario:  z.Scenario,
				attrFloodType: z.FloodType,
			},
			Geometry: z.Geometry,
		})
	}
	return spatial.WriteShapefile(shpPath, features, layerFields)
}

// ReadLayer loads a merged zone layer written by WriteLayer, or any
// shapefile with the same attributes.
func ReadLayer(shpPath string) ([]model.FloodZone, error) {
	features, err := spatial.LoadShapefile(shpPath, spatial.CRSAuto)
	if err != nil {
		return nil, err
	}
	return ZonesFromFeatures(features, "", ScenarioFromLayer(shpPath)), nil
}
