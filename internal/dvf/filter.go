package dvf

import (
	"strconv"

	"github.com/sells-group/dvf-flood/internal/model"
)

// NatureSale is the nature_mutation of an ordinary sale.
const NatureSale = "Vente"

// KeepRow is the row-level filter applied while reading: sales only, and no
// overseas departments (971 to 976).
func KeepRow(r RawRow) bool {
	return r.Nature == NatureSale && !Overseas(r.Department)
}

// Overseas reports whether a department code is one of the DROM (971-976).
func Overseas(dept string) bool {
	n, err := strconv.Atoi(dept)
	if err != nil {
		return false
	}
	return n >= 971 && n <= 976
}

// FilterStats counts what Filter dropped, by reason.
type FilterStats struct {
	In            int
	NotSale       int
	NoValue       int
	Overseas      int
	NatureCulture int
	NotResidence  int
	Out           int
}

// Filter keeps the aggregated sales usable for a price regression: a sale
// with a declared value, in metropolitan France, typed as a house or an
// apartment, whose residential lots carry no nature_culture.
func Filter(txs []model.Transaction) ([]model.Transaction, FilterStats) {
	st := FilterStats{In: len(txs)}
	out := make([]model.Transaction, 0, len(txs))

	for _, tx := range txs {
		switch {
		case tx.Nature != NatureSale:
			st.NotSale++
		case tx.DeclaredValue == nil:
			st.NoValue++
		case Overseas(tx.DepartmentCode):
			st.Overseas++
		case !tx.PropertyType.Residential():
			st.NotResidence++
		case tx.NatureCulture != "":
			st.NatureCulture++
		default:
			out = append(out, tx)
		}
	}
	st.Out = len(out)
	return out, st
}

type dedupKey struct {
	street string
	postal string
	built  float64
	value  float64
}

// Deduplicate drops repeated sales of the same street, postal code, built
// area and declared value, keeping the first. It runs on aggregated sales,
// so the unit of deduplication is the sale, not the lot.
func Deduplicate(txs []model.Transaction) []model.Transaction {
	seen := make(map[dedupKey]struct{}, len(txs))
	out := make([]model.Transaction, 0, len(txs))

	for _, tx := range txs {
		k := dedupKey{street: tx.StreetName, postal: tx.PostalCode, built: tx.BuiltArea}
		if tx.DeclaredValue != nil {
			k.value = *tx.DeclaredValue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, tx)
	}
	return out
}
