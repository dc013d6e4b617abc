package dvf

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/model"
)

// StreetTypes maps DVF street-type abbreviations (AV, BD, RTE) to their
// full names.
type StreetTypes map[string]string

// LoadStreetTypes reads a ';'-separated table with "abreviation" and
// "type_voie_complet" columns.
func LoadStreetTypes(ctx context.Context, r io.Reader) (StreetTypes, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	types := make(StreetTypes)
	var h fetcher.Header
	for rec := range rowCh {
		if h == nil {
			h = fetcher.NewHeader(<-headerCh)
		}
		abbr := strings.ToUpper(h.Get(rec, "abreviation"))
		full := h.Get(rec, "type_voie_complet")
		if abbr != "" && full != "" {
			types[abbr] = full
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "dvf: read street types")
	}
	if h == nil {
		select {
		case hdr := <-headerCh:
			h = fetcher.NewHeader(hdr)
		default:
			return types, nil
		}
	}
	if missing := h.Require("abreviation", "type_voie_complet"); len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "street types: %s", strings.Join(missing, ", "))
	}
	return types, nil
}

// Split separates a leading abbreviation from a DVF street name:
// "AV DES FLEURS" gives ("AVENUE", "DES FLEURS"). Names without a known
// abbreviation come back whole with an empty type.
func (s StreetTypes) Split(street string) (streetType, name string) {
	street = strings.TrimSpace(street)
	head, rest, found := strings.Cut(street, " ")
	if !found {
		return "", street
	}
	if full, ok := s[strings.ToUpper(head)]; ok {
		return full, strings.TrimSpace(rest)
	}
	return "", street
}

// BuildAddress formats a geocodable address: number, street type, street
// name, postal code, commune. Empty parts are skipped.
func BuildAddress(tx *model.Transaction, types StreetTypes) string {
	streetType, name := types.Split(tx.StreetName)
	parts := []string{
		tx.AddressNumber + strings.ToLower(tx.AddressSuffix),
		streetType,
		name,
		tx.PostalCode,
		tx.CommuneName,
	}
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// FillAddresses sets Address on every transaction that has a street name.
func FillAddresses(txs []model.Transaction, types StreetTypes) {
	for i := range txs {
		if txs[i].StreetName == "" {
			continue
		}
		txs[i].Address = BuildAddress(&txs[i], types)
	}
}
