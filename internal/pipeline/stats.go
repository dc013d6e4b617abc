package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/model"
)

// CommuneStatsFile is the commune comparison table in the output dir.
const CommuneStatsFile = "stats_communes.csv"

// TopCommunes is how many communes, by population, the table keeps.
const TopCommunes = 10

// CommuneStat compares flood-zone and other sales of one commune.
type CommuneStat struct {
	Commune    string
	Population int
	// MeanOutside and MeanInside are mean price per m²; 0 when the commune
	// has no such sale.
	MeanOutside float64
	MeanInside  float64
	// Gap is (MeanInside - MeanOutside) / MeanOutside in percent; 0 unless
	// the commune has sales on both sides.
	Gap          float64
	Transactions int
	// FloodShare is the percentage of sales inside a flood zone.
	FloodShare float64
}

// ComputeCommuneStats groups priced sales with a flood outcome by commune
// name and returns the most populated communes first, at most limit.
func ComputeCommuneStats(txs []model.Transaction, limit int) []CommuneStat {
	type acc struct {
		pop           int
		sumIn, sumOut float64
		nIn, nOut     int
	}
	byName := make(map[string]*acc)
	var names []string

	for i := range txs {
		tx := &txs[i]
		ppa, ok := tx.PricePerArea()
		if !ok || tx.Flood == nil {
			continue
		}
		if tx.Flood.Status != model.FloodInZone && tx.Flood.Status != model.FloodNoZone {
			continue
		}
		a, ok := byName[tx.CommuneName]
		if !ok {
			a = &acc{}
			byName[tx.CommuneName] = a
			names = append(names, tx.CommuneName)
		}
		if tx.Population != nil && *tx.Population > a.pop {
			a.pop = *tx.Population
		}
		if tx.Flood.InZone() {
			a.sumIn += ppa
			a.nIn++
		} else {
			a.sumOut += ppa
			a.nOut++
		}
	}

	out := make([]CommuneStat, 0, len(names))
	for _, name := range names {
		a := byName[name]
		s := CommuneStat{Commune: name, Population: a.pop, Transactions: a.nIn + a.nOut}
		if a.nIn > 0 {
			s.MeanInside = a.sumIn / float64(a.nIn)
		}
		if a.nOut > 0 {
			s.MeanOutside = a.sumOut / float64(a.nOut)
		}
		if a.nIn > 0 && s.MeanOutside > 0 {
			s.Gap = (s.MeanInside - s.MeanOutside) / s.MeanOutside * 100
		}
		s.FloodShare = float64(a.nIn) / float64(s.Transactions) * 100
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Population != out[j].Population {
			return out[i].Population > out[j].Population
		}
		return out[i].Commune < out[j].Commune
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var statsHeader = []string{
	"nom_commune", "population", "prix_moyen_non_inondable", "prix_moyen_inondable",
	"ecart", "nb_transactions", "part_inondable",
}

// WriteCommuneStats writes stats as a ';'-separated CSV with decimal commas.
func WriteCommuneStats(w io.Writer, stats []CommuneStat) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(statsHeader); err != nil {
		return eris.Wrap(err, "pipeline: write stats header")
	}
	for _, s := range stats {
		rec := []string{
			s.Commune,
			strconv.Itoa(s.Population),
			decimalComma(s.MeanOutside, 0),
			decimalComma(s.MeanInside, 0),
			decimalComma(s.Gap, 1),
			strconv.Itoa(s.Transactions),
			decimalComma(s.FloodShare, 1),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "pipeline: write stats row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "pipeline: flush stats")
}

func decimalComma(v float64, prec int) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', prec, 64), ".", ",", 1)
}

// Stats computes the commune comparison table and writes it to the output
// dir.
func (p *Pipeline) Stats(ctx context.Context, txs []model.Transaction) ([]CommuneStat, error) {
	var stats []CommuneStat
	err := p.trackStage(ctx, StageStats, func(_ context.Context, _ string) (map[string]int, error) {
		stats = ComputeCommuneStats(txs, TopCommunes)

		outDir := p.cfg.Regression.OutputDir
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "pipeline: create output dir")
		}
		path := filepath.Join(outDir, CommuneStatsFile)
		f, err := os.Create(path)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: create %s", path)
		}
		if err := WriteCommuneStats(f, stats); err != nil {
			f.Close() //nolint:errcheck,gosec
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, eris.Wrapf(err, "pipeline: close %s", path)
		}
		return map[string]int{"communes": len(stats)}, nil
	})
	return stats, err
}
