// Package dvf reads the geolocated DVF (demandes de valeurs foncières) sales
// files and turns their per-lot rows into one record per sale.
package dvf

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/model"
)

// ErrMissingColumn is returned when the input lacks a required column.
var ErrMissingColumn = eris.New("dvf: missing required column")

// geo-dvf column names.
const (
	ColMutationID    = "id_mutation"
	ColDate          = "date_mutation"
	ColDisposition   = "numero_disposition"
	ColNature        = "nature_mutation"
	ColValue         = "valeur_fonciere"
	ColNumber        = "adresse_numero"
	ColSuffix        = "adresse_suffixe"
	ColStreetName    = "adresse_nom_voie"
	ColPostalCode    = "code_postal"
	ColCommuneCode   = "code_commune"
	ColCommuneName   = "nom_commune"
	ColDepartment    = "code_departement"
	ColPropertyType  = "type_local"
	ColBuiltArea     = "surface_reelle_bati"
	ColRooms         = "nombre_pieces_principales"
	ColNatureCulture = "nature_culture"
	ColLandArea      = "surface_terrain"
	ColLongitude     = "longitude"
	ColLatitude      = "latitude"
)

var requiredColumns = []string{
	ColMutationID, ColDisposition, ColNature, ColValue,
	ColNumber, ColStreetName, ColPostalCode, ColCommuneCode, ColCommuneName, ColDepartment,
	ColPropertyType, ColBuiltArea, ColRooms, ColNatureCulture, ColLandArea,
	ColLongitude, ColLatitude,
}

// RawRow is one lot line of a DVF file. Nil pointers are blank cells.
type RawRow struct {
	MutationID    string
	Disposition   string
	Date          string
	Nature        string
	Value         *float64
	PropertyType  model.PropertyType
	BuiltArea     *float64
	LandArea      *float64
	Rooms         *int
	Number        string
	Suffix        string
	StreetName    string
	PostalCode    string
	CommuneCode   string
	CommuneName   string
	Department    string
	NatureCulture string
	Lat           *float64
	Lon           *float64
	Extra         map[string]string
}

// ReadOptions tunes ReadRows.
type ReadOptions struct {
	// ExtraColumns are copied verbatim into RawRow.Extra when present.
	ExtraColumns []string
	// Keep drops rows early when it returns false.
	Keep func(RawRow) bool
}

// ReadFile opens a DVF CSV, gzipped or not, and reads its rows.
func ReadFile(ctx context.Context, path string, opts ReadOptions) ([]RawRow, error) {
	rc, err := fetcher.OpenMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	rows, err := ReadRows(ctx, rc, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "dvf: read %s", path)
	}
	return rows, nil
}

// ReadRows parses a comma-separated geo-dvf stream. Columns are matched by
// name; a missing required column fails with ErrMissingColumn.
func ReadRows(ctx context.Context, r io.Reader, opts ReadOptions) ([]RawRow, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	var h fetcher.Header
	var rows []RawRow
	var headerErr error

	for rec := range rowCh {
		if h == nil {
			select {
			case hdr := <-headerCh:
				h = fetcher.NewHeader(hdr)
				if missing := h.Require(requiredColumns...); len(missing) > 0 {
					headerErr = eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
				}
			default:
			}
		}
		if headerErr != nil {
			continue // drain
		}

		row := parseRow(h, rec, opts.ExtraColumns)
		if opts.Keep != nil && !opts.Keep(row) {
			continue
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	// A file with a header and no data rows still needs its header checked.
	if h == nil {
		select {
		case hdr := <-headerCh:
			h = fetcher.NewHeader(hdr)
			if missing := h.Require(requiredColumns...); len(missing) > 0 {
				headerErr = eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
			}
		default:
			return nil, eris.Wrap(ErrMissingColumn, "empty input")
		}
	}
	if headerErr != nil {
		return nil, headerErr
	}
	return rows, nil
}

func parseRow(h fetcher.Header, rec []string, extra []string) RawRow {
	get := func(name string) string { return strings.TrimSpace(h.Get(rec, name)) }

	row := RawRow{
		MutationID:    get(ColMutationID),
		Disposition:   normalizeDisposition(get(ColDisposition)),
		Date:          get(ColDate),
		Nature:        get(ColNature),
		Value:         parseFloat(get(ColValue)),
		PropertyType:  model.PropertyType(get(ColPropertyType)),
		BuiltArea:     parseFloat(get(ColBuiltArea)),
		LandArea:      parseFloat(get(ColLandArea)),
		Rooms:         parseInt(get(ColRooms)),
		Number:        normalizeNumber(get(ColNumber)),
		Suffix:        get(ColSuffix),
		StreetName:    get(ColStreetName),
		PostalCode:    PadCode(get(ColPostalCode), 5),
		CommuneCode:   PadCode(get(ColCommuneCode), 5),
		CommuneName:   get(ColCommuneName),
		Department:    PadCode(get(ColDepartment), 2),
		NatureCulture: get(ColNatureCulture),
		Lat:           parseFloat(get(ColLatitude)),
		Lon:           parseFloat(get(ColLongitude)),
	}
	if len(extra) > 0 {
		row.Extra = make(map[string]string, len(extra))
		for _, name := range extra {
			if v := get(name); v != "" {
				row.Extra[name] = v
			}
		}
	}
	return row
}

// PadCode left-pads numeric codes that lost their leading zeros, e.g. a
// commune code read as 6088 becomes 06088.
func PadCode(s string, width int) string {
	if s == "" || len(s) >= width {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	f := parseFloat(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// "1.0" and "000001" both mean disposition 1.
func normalizeDisposition(s string) string {
	if f := parseFloat(s); f != nil {
		return strconv.Itoa(int(*f))
	}
	return s
}

func normalizeNumber(s string) string {
	if f := parseFloat(s); f != nil && *f == float64(int(*f)) {
		return strconv.Itoa(int(*f))
	}
	return s
}
