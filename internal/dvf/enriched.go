package dvf

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/model"
)

// Enriched table columns beyond the geo-dvf ones.
const (
	ColLotCount     = "nombre_locaux"
	ColHasHouse     = "maison_present"
	ColHasApartment = "appart_present"
	ColHasDep       = "dependance"
	ColAddress      = "adresse"
	ColCoordSource  = "coord_source"
	ColFloodStatus  = "flood_status"
	ColFloodResults = "flood_results"
	ColZoneID       = "identifiant_tri"
	ColFloodType    = "type_inondation"
	ColScenario     = "scenario"
	ColPopulation   = "population"
	ColPricePerArea = "prix_m2"
)

var distanceColumns = []string{
	model.FeatureDistanceCenter,
	model.FeatureDistanceBeach,
	model.FeatureDistanceStation,
	model.FeatureDistanceHarbor,
}

var enrichedColumns = []string{
	ColMutationID, ColDisposition, ColDate, ColNature, ColValue, ColPropertyType,
	ColBuiltArea, ColLandArea, ColRooms, ColLotCount, ColHasHouse, ColHasApartment, ColHasDep,
	ColNumber, ColSuffix, ColStreetName, ColPostalCode, ColCommuneCode, ColCommuneName, ColDepartment,
	ColNatureCulture, ColAddress, ColLatitude, ColLongitude, ColCoordSource,
}

var floodColumns = []string{
	ColFloodStatus, ColFloodResults, ColZoneID, ColFloodType, ColScenario, ColPopulation, ColPricePerArea,
}

// WriteEnriched writes transactions as the enriched sales CSV. Extra
// columns follow the fixed ones in name order.
func WriteEnriched(w io.Writer, txs []model.Transaction) error {
	extraSet := make(map[string]struct{})
	for i := range txs {
		for k := range txs[i].Extra {
			extraSet[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	header := append(append(append(append([]string{}, enrichedColumns...), distanceColumns...), floodColumns...), extras...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "dvf: write enriched header")
	}
	for i := range txs {
		if err := cw.Write(enrichedRecord(&txs[i], extras)); err != nil {
			return eris.Wrap(err, "dvf: write enriched row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "dvf: flush enriched")
}

func enrichedRecord(tx *model.Transaction, extras []string) []string {
	rec := []string{
		tx.MutationID, tx.Disposition, tx.MutationDate, tx.Nature,
		fmtFloatPtr(tx.DeclaredValue), string(tx.PropertyType),
		fmtFloat(tx.BuiltArea), fmtFloat(tx.LandArea), fmtIntPtr(tx.RoomCount),
		strconv.Itoa(tx.LotCount), fmtBool(tx.HasHouse), fmtBool(tx.HasApartment), fmtBool(tx.HasDependency),
		tx.AddressNumber, tx.AddressSuffix, tx.StreetName, tx.PostalCode,
		tx.CommuneCode, tx.CommuneName, tx.DepartmentCode, tx.NatureCulture, tx.Address,
	}
	if tx.Coord != nil {
		rec = append(rec, fmtFloat(tx.Coord.Lat), fmtFloat(tx.Coord.Lon))
	} else {
		rec = append(rec, "", "")
	}
	rec = append(rec, string(tx.CoordSource))

	for _, name := range distanceColumns {
		if d, ok := tx.Distance(name); ok {
			rec = append(rec, fmtFloat(d))
		} else {
			rec = append(rec, "")
		}
	}

	if tx.Flood != nil {
		rec = append(rec,
			string(tx.Flood.Status),
			strconv.Itoa(tx.Flood.ResultCount),
			deref(tx.Flood.ZoneID),
			deref(tx.Flood.FloodType),
			deref(tx.Flood.Scenario),
		)
	} else {
		rec = append(rec, "", "", "", "", "")
	}
	rec = append(rec, fmtIntPtr(tx.Population))
	if p, ok := tx.PricePerArea(); ok {
		rec = append(rec, fmtFloat(p))
	} else {
		rec = append(rec, "")
	}

	for _, name := range extras {
		rec = append(rec, tx.Extra[name])
	}
	return rec
}

// ReadEnriched parses a table written by WriteEnriched. Unknown columns are
// carried in Extra.
func ReadEnriched(ctx context.Context, r io.Reader) ([]model.Transaction, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{HasHeader: true, HeaderCh: headerCh})

	known := make(map[string]struct{})
	for _, set := range [][]string{enrichedColumns, distanceColumns, floodColumns} {
		for _, c := range set {
			known[c] = struct{}{}
		}
	}

	var h fetcher.Header
	var extras []string
	var headerErr error
	var txs []model.Transaction

	for rec := range rowCh {
		if h == nil {
			hdr := <-headerCh
			h = fetcher.NewHeader(hdr)
			if missing := h.Require(ColMutationID, ColDisposition, ColValue, ColBuiltArea, ColCommuneCode); len(missing) > 0 {
				headerErr = eris.Wrapf(ErrMissingColumn, "enriched: %s", strings.Join(missing, ", "))
			}
			for _, name := range hdr {
				if _, ok := known[name]; !ok {
					extras = append(extras, name)
				}
			}
		}
		if headerErr != nil {
			continue
		}
		txs = append(txs, parseEnriched(h, rec, extras))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if headerErr != nil {
		return nil, headerErr
	}
	return txs, nil
}

func parseEnriched(h fetcher.Header, rec []string, extras []string) model.Transaction {
	get := func(name string) string { return h.Get(rec, name) }

	tx := model.Transaction{
		MutationID:     get(ColMutationID),
		Disposition:    get(ColDisposition),
		MutationDate:   get(ColDate),
		Nature:         get(ColNature),
		DeclaredValue:  parseFloat(get(ColValue)),
		PropertyType:   model.PropertyType(get(ColPropertyType)),
		RoomCount:      parseInt(get(ColRooms)),
		HasHouse:       get(ColHasHouse) == "1",
		HasApartment:   get(ColHasApartment) == "1",
		HasDependency:  get(ColHasDep) == "1",
		AddressNumber:  get(ColNumber),
		AddressSuffix:  get(ColSuffix),
		StreetName:     get(ColStreetName),
		PostalCode:     get(ColPostalCode),
		CommuneCode:    get(ColCommuneCode),
		CommuneName:    get(ColCommuneName),
		DepartmentCode: get(ColDepartment),
		NatureCulture:  get(ColNatureCulture),
		Address:        get(ColAddress),
		CoordSource:    model.CoordSource(get(ColCoordSource)),
		Population:     parseInt(get(ColPopulation)),
	}
	if v := parseFloat(get(ColBuiltArea)); v != nil {
		tx.BuiltArea = *v
	}
	if v := parseFloat(get(ColLandArea)); v != nil {
		tx.LandArea = *v
	}
	if n := parseInt(get(ColLotCount)); n != nil {
		tx.LotCount = *n
	}
	lat, lon := parseFloat(get(ColLatitude)), parseFloat(get(ColLongitude))
	if lat != nil && lon != nil {
		tx.Coord = &model.Coordinate{Lat: *lat, Lon: *lon}
	}
	for _, name := range distanceColumns {
		if d := parseFloat(get(name)); d != nil {
			tx.SetDistance(name, *d)
		}
	}
	if status := get(ColFloodStatus); status != "" {
		tag := model.FloodTag{Status: model.FloodStatus(status)}
		if n := parseInt(get(ColFloodResults)); n != nil {
			tag.ResultCount = *n
		}
		tag.ZoneID = optional(get(ColZoneID))
		tag.FloodType = optional(get(ColFloodType))
		tag.Scenario = optional(get(ColScenario))
		tx.Flood = &tag
	}
	for _, name := range extras {
		if v := get(name); v != "" {
			if tx.Extra == nil {
				tx.Extra = make(map[string]string)
			}
			tx.Extra[name] = v
		}
	}
	return tx
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func fmtFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmtFloat(*f)
}

func fmtIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func fmtBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
