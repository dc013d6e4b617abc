package spatial

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// CRS identifies the coordinate system of a layer on disk.
type CRS int

const (
	// CRSAuto reads the sidecar .prj to decide.
	CRSAuto CRS = iota
	CRSWGS84
	CRSLambert93
)

// shapeReader is satisfied by both shp.Reader and shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
}

// LoadShapefile reads the polygon records of a shapefile. Attribute names
// are lowercased. Records without a usable polygon are skipped.
func LoadShapefile(shpPath string, crs CRS) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	if crs == CRSAuto {
		crs = crsFromPRJ(readFileOrEmpty(strings.TrimSuffix(shpPath, path.Ext(shpPath)) + ".prj"))
	}
	return readFeatures(reader, shpPath, crs)
}

// ShapesInZip lists the .shp entries of a zip archive whose base name
// starts with prefix. An empty prefix matches everything.
func ShapesInZip(zipPath, prefix string) ([]string, error) {
	names, err := shp.ShapesInZip(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: list shapes in %s", zipPath)
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(strings.ToLower(path.Base(n)), strings.ToLower(prefix)) {
			out = append(out, n)
		}
	}
	return out, nil
}

// LoadShapefileFromZip reads one shapefile entry of a zip archive.
func LoadShapefileFromZip(zipPath, name string, crs CRS) ([]Feature, error) {
	reader, err := shp.OpenShapeFromZip(zipPath, name)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open %s in %s", name, zipPath)
	}
	defer func() { _ = reader.Close() }()

	if crs == CRSAuto {
		crs = crsFromPRJ(readZipEntryOrEmpty(zipPath, strings.TrimSuffix(name, path.Ext(name))+".prj"))
	}
	return readFeatures(reader, zipPath+"!"+name, crs)
}

func readFeatures(reader shapeReader, source string, crs CRS) ([]Feature, error) {
	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var features []Feature
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			skipped++
			continue
		}
		if crs == CRSLambert93 {
			mp = reprojectLambert93(mp)
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}
		features = append(features, Feature{Attributes: attrs, Geometry: mp})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "spatial: read %s", source)
	}

	if skipped > 0 {
		zap.L().Debug("spatial: skipped shapefile records",
			zap.String("source", source),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// shapeToMultiPolygon groups shapefile parts into polygons: clockwise rings
// are shells, counter-clockwise rings are holes of the shell containing
// them.
func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells []*geom.Polygon
	var holes []*geom.LinearRing

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, ring)
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("spatial: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		shells = append(shells, poly)
	}

	// A layer written with the opposite winding has only "holes".
	if len(shells) == 0 {
		for _, h := range holes {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(h); err == nil {
				shells = append(shells, poly)
			}
		}
		holes = nil
	}

	for _, h := range holes {
		first := geom.Coord{h.FlatCoords()[0], h.FlatCoords()[1]}
		owner := shells[len(shells)-1]
		for _, s := range shells {
			if xy.IsPointInRing(geom.XY, first, s.LinearRing(0).FlatCoords()) {
				owner = s
				break
			}
		}
		if err := owner.Push(h); err != nil {
			zap.L().Debug("spatial: skipping malformed hole", zap.Error(err))
		}
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, s := range shells {
		if err := mp.Push(s); err != nil {
			zap.L().Debug("spatial: skipping malformed polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func crsFromPRJ(wkt string) CRS {
	w := strings.ToLower(wkt)
	if strings.Contains(w, "lambert") || strings.Contains(w, "rgf93") || strings.Contains(w, "2154") {
		return CRSLambert93
	}
	return CRSWGS84
}

func readFileOrEmpty(p string) string {
	b, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return string(b)
}

func readZipEntryOrEmpty(zipPath, name string) string {
	z, err := zip.OpenReader(zipPath)
	if err != nil {
		return ""
	}
	defer func() { _ = z.Close() }()

	f, err := z.Open(name)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	b, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(b)
}

// WriteShapefile writes polygon features with the named string attributes.
func WriteShapefile(shpPath string, features []Feature, fields []string) error {
	w, err := shp.Create(shpPath, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "spatial: create shapefile %s", shpPath)
	}
	defer w.Close()

	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shp.StringField(f, 80)
	}
	if err := w.SetFields(shpFields); err != nil {
		return eris.Wrap(err, "spatial: set shapefile fields")
	}

	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		var parts [][]shp.Point
		for i := 0; i < f.Geometry.NumPolygons(); i++ {
			poly := f.Geometry.Polygon(i)
			for r := 0; r < poly.NumLinearRings(); r++ {
				flat := poly.LinearRing(r).FlatCoords()
				// Shells are written clockwise and holes counter-clockwise.
				reverse := xy.IsRingCounterClockwise(geom.XY, flat) == (r == 0)
				pts := make([]shp.Point, 0, len(flat)/2)
				for k := 0; k+1 < len(flat); k += 2 {
					pts = append(pts, shp.Point{X: flat[k], Y: flat[k+1]})
				}
				if reverse {
					slices.Reverse(pts)
				}
				parts = append(parts, pts)
			}
		}
		polygon := shp.Polygon(*shp.NewPolyLine(parts))
		row := w.Write(&polygon)
		for i, name := range fields {
			if err := w.WriteAttribute(int(row), i, f.Attr(name)); err != nil {
				return eris.Wrapf(err, "spatial: write attribute %s", name)
			}
		}
	}
	return nil
}
