package dvf

import (
	"github.com/sells-group/dvf-flood/internal/model"
)

// Aggregate collapses the lot rows of one sale into a Transaction.
//
// Built area sums the House and Apartment rows, land area sums every row
// (blank cells count as 0), the room count is the group maximum, and the
// declared value and remaining scalars, the property type included, come
// from the first row: a sale listed dependency-first keeps the dependency
// type and is dropped by Filter. The
// nature_culture kept is the first one found on a residential row, since a
// culture on an attached garden lot says nothing about the building.
func Aggregate(rows []RawRow) model.Transaction {
	if len(rows) == 0 {
		return model.Transaction{}
	}
	first := rows[0]

	tx := model.Transaction{
		MutationID:     first.MutationID,
		Disposition:    first.Disposition,
		MutationDate:   first.Date,
		Nature:         first.Nature,
		DeclaredValue:  first.Value,
		PropertyType:   first.PropertyType,
		LotCount:       len(rows),
		AddressNumber:  first.Number,
		AddressSuffix:  first.Suffix,
		StreetName:     first.StreetName,
		PostalCode:     first.PostalCode,
		CommuneCode:    first.CommuneCode,
		CommuneName:    first.CommuneName,
		DepartmentCode: first.Department,
		Extra:          first.Extra,
	}

	for _, r := range rows {
		switch r.PropertyType {
		case model.PropertyHouse:
			tx.HasHouse = true
		case model.PropertyApartment:
			tx.HasApartment = true
		case model.PropertyDependency:
			tx.HasDependency = true
		}

		if r.PropertyType.Residential() {
			if r.BuiltArea != nil {
				tx.BuiltArea += *r.BuiltArea
			}
			if tx.NatureCulture == "" {
				tx.NatureCulture = r.NatureCulture
			}
		}
		if r.LandArea != nil {
			tx.LandArea += *r.LandArea
		}
		if r.Rooms != nil && (tx.RoomCount == nil || *r.Rooms > *tx.RoomCount) {
			n := *r.Rooms
			tx.RoomCount = &n
		}
		if tx.Coord == nil && r.Lat != nil && r.Lon != nil {
			c := model.Coordinate{Lat: *r.Lat, Lon: *r.Lon}
			if c.Valid() {
				tx.Coord = &c
				tx.CoordSource = model.CoordSourceDVF
			}
		}
	}

	return tx
}

// AggregateAll groups rows by (mutation id, disposition) and aggregates each
// group. Output follows the order in which groups first appear.
func AggregateAll(rows []RawRow) []model.Transaction {
	index := make(map[string]int)
	var groups [][]RawRow

	for _, r := range rows {
		key := r.MutationID + "/" + r.Disposition
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	out := make([]model.Transaction, 0, len(groups))
	for _, g := range groups {
		out = append(out, Aggregate(g))
	}
	return out
}
