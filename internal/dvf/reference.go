package dvf

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/dvf-flood/internal/fetcher"
)

// Coastal workbook columns.
const (
	coastalName       = "Nom commune"
	coastalMotif      = "Motif du classement"
	coastalRegion     = "Région"
	coastalPopulation = "Population"

	// MotifSeaside selects communes bordering the sea or an ocean, as
	// opposed to estuary and lake communes.
	MotifSeaside = "Commune riveraine de la mer ou d'un océan"
)

// CoastalCommune is one row of the littoral communes workbook.
type CoastalCommune struct {
	Name       string
	Region     string
	Motif      string
	Population *int
}

// CoastalSet answers "is this commune name on the coastal list".
type CoastalSet map[string]CoastalCommune

// Has reports whether name matches a listed commune after NormalizeName.
func (s CoastalSet) Has(name string) bool {
	_, ok := s[NormalizeName(name)]
	return ok
}

// Get returns the listed commune for name.
func (s CoastalSet) Get(name string) (CoastalCommune, bool) {
	c, ok := s[NormalizeName(name)]
	return c, ok
}

// LoadCoastal reads the littoral workbook and keeps the communes whose
// classification motif equals motif. An empty motif keeps every row.
func LoadCoastal(path, motif string) (CoastalSet, error) {
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{HeaderMarker: coastalName})
	if err != nil {
		return nil, eris.Wrap(err, "dvf: read coastal communes")
	}
	h := fetcher.NewHeader(header)
	if missing := h.Require(coastalName, coastalMotif); len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "coastal communes: %s", strings.Join(missing, ", "))
	}

	set := make(CoastalSet)
	for _, row := range rows {
		c := CoastalCommune{
			Name:   h.Get(row, coastalName),
			Region: h.Get(row, coastalRegion),
			Motif:  h.Get(row, coastalMotif),
		}
		if c.Name == "" || (motif != "" && c.Motif != motif) {
			continue
		}
		if p := parseInt(strings.ReplaceAll(h.Get(row, coastalPopulation), " ", "")); p != nil {
			c.Population = p
		}
		set[NormalizeName(c.Name)] = c
	}
	zap.L().Info("dvf: coastal communes loaded", zap.Int("communes", len(set)), zap.String("motif", motif))
	return set, nil
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds a commune name for matching across sources: accents
// removed, upper case, hyphens and apostrophes as spaces, "ST" expanded.
// "Saint-Jean-de-Luz", "ST JEAN DE LUZ" and "Saint Jean de Luz" agree.
func NormalizeName(name string) string {
	s, _, err := transform.String(foldAccents, name)
	if err != nil {
		s = name
	}
	s = strings.ToUpper(s)
	s = strings.NewReplacer("-", " ", "'", " ", "’", " ").Replace(s)

	fields := strings.Fields(s)
	for i, f := range fields {
		switch f {
		case "ST":
			fields[i] = "SAINT"
		case "STE":
			fields[i] = "SAINTE"
		}
	}
	return strings.Join(fields, " ")
}

// Population maps INSEE commune codes to municipal population.
type Population map[string]int

// PopulationFile is the data file inside the INSEE population archive.
const PopulationFile = "donnees_communes"

// LoadPopulationZip extracts the INSEE archive into a temporary directory
// under workDir and reads its commune table.
func LoadPopulationZip(ctx context.Context, zipPath, workDir string) (Population, error) {
	tmp, err := os.MkdirTemp(workDir, "population-")
	if err != nil {
		return nil, eris.Wrap(err, "dvf: population temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	files, err := fetcher.ExtractZIP(zipPath, PopulationFile, tmp)
	if err != nil {
		return nil, eris.Wrap(err, "dvf: extract population archive")
	}
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".csv") {
			return LoadPopulation(ctx, f)
		}
	}
	return nil, eris.Errorf("dvf: no %s.csv in %s", PopulationFile, zipPath)
}

// LoadPopulation reads a ';'-separated INSEE table with COM and PMUN columns.
func LoadPopulation(ctx context.Context, path string) (Population, error) {
	rc, err := fetcher.OpenMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, rc, fetcher.CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	pop := make(Population)
	var h fetcher.Header
	var headerErr error
	for rec := range rowCh {
		if h == nil {
			h = fetcher.NewHeader(<-headerCh)
			if missing := h.Require("COM", "PMUN"); len(missing) > 0 {
				headerErr = eris.Wrapf(ErrMissingColumn, "population: %s", strings.Join(missing, ", "))
			}
		}
		if headerErr != nil {
			continue
		}
		code := PadCode(h.Get(rec, "COM"), 5)
		n, err := strconv.Atoi(strings.ReplaceAll(h.Get(rec, "PMUN"), " ", ""))
		if code == "" || err != nil {
			continue
		}
		pop[code] = n
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "dvf: read population")
	}
	if headerErr != nil {
		return nil, headerErr
	}
	return pop, nil
}

// Population band labels used as regression dummies; under 10 000 is the
// reference level.
const (
	BandSmall  = "moins_10000"
	BandMedium = "10000-20000"
	BandLarge  = "plus_20000"
)

// PopulationBand buckets a commune population.
func PopulationBand(n int) string {
	switch {
	case n < 10000:
		return BandSmall
	case n <= 20000:
		return BandMedium
	default:
		return BandLarge
	}
}
