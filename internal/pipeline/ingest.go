package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/model"
)

// Pass-through columns used as categorical covariates when present.
const (
	ExtraDPE         = "dpe"
	ExtraBuildPeriod = "periode_construction_dpe"
)

// Local file names of the downloaded inputs.
const (
	coastalFile    = "communes_littorales.xlsx"
	populationFile = "population.zip"
)

// IngestResult is the cleaned sale table with the reference data joined to
// it.
type IngestResult struct {
	Transactions []model.Transaction
	Filter       dvf.FilterStats
	Coastal      dvf.CoastalSet
	Population   dvf.Population
}

// Ingest downloads the DVF years and reference files, then reads,
// aggregates, filters and deduplicates sales, keeps coastal communes,
// builds geocodable addresses and joins commune population. The result is
// saved under the stage's run id.
func (p *Pipeline) Ingest(ctx context.Context) (*IngestResult, error) {
	var res *IngestResult
	err := p.trackStage(ctx, StageIngest, func(ctx context.Context, runID string) (map[string]int, error) {
		var err error
		res, err = p.ingest(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.store.SaveTransactions(ctx, runID, res.Transactions); err != nil {
			return nil, eris.Wrap(err, "pipeline: save ingested sales")
		}
		p.metrics.TransactionsProcessed.WithLabelValues(StageIngest).Add(float64(len(res.Transactions)))
		return map[string]int{
			"aggregated":     res.Filter.In,
			"not_sale":       res.Filter.NotSale,
			"no_value":       res.Filter.NoValue,
			"overseas":       res.Filter.Overseas,
			"nature_culture": res.Filter.NatureCulture,
			"not_residence":  res.Filter.NotResidence,
			"kept":           len(res.Transactions),
		}, nil
	})
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context) (*IngestResult, error) {
	dc := p.cfg.Data
	if err := os.MkdirAll(dc.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "pipeline: create data dir")
	}

	var rows []dvf.RawRow
	for _, year := range dc.Years {
		path, err := p.download(ctx, fmt.Sprintf(dc.DVFURLTemplate, year), fmt.Sprintf("dvf_%d.csv.gz", year))
		if err != nil {
			return nil, err
		}
		yr, err := dvf.ReadFile(ctx, path, dvf.ReadOptions{
			ExtraColumns: []string{ExtraDPE, ExtraBuildPeriod},
			Keep:         dvf.KeepRow,
		})
		if err != nil {
			return nil, err
		}
		zap.L().Info("pipeline: DVF year read", zap.Int("year", year), zap.Int("rows", len(yr)))
		rows = append(rows, yr...)
	}

	txs, fstats := dvf.Filter(dvf.AggregateAll(rows))
	before := len(txs)
	txs = dvf.Deduplicate(txs)
	zap.L().Info("pipeline: sales deduplicated", zap.Int("before", before), zap.Int("after", len(txs)))

	res := &IngestResult{Filter: fstats}

	if dc.CoastalURL != "" {
		path, err := p.download(ctx, dc.CoastalURL, coastalFile)
		if err != nil {
			return nil, err
		}
		res.Coastal, err = dvf.LoadCoastal(path, dvf.MotifSeaside)
		if err != nil {
			return nil, err
		}
		txs = KeepCoastal(txs, res.Coastal)
	}

	types, err := p.streetTypes(ctx)
	if err != nil {
		return nil, err
	}
	dvf.FillAddresses(txs, types)

	if dc.PopulationURL != "" {
		path, err := p.download(ctx, dc.PopulationURL, populationFile)
		if err != nil {
			return nil, err
		}
		res.Population, err = dvf.LoadPopulationZip(ctx, path, dc.Dir)
		if err != nil {
			return nil, err
		}
		JoinPopulation(txs, res.Population)
	}

	res.Transactions = txs
	return res, nil
}

// KeepCoastal keeps the sales of communes in the coastal set. Names are
// compared after accent and case folding.
func KeepCoastal(txs []model.Transaction, coastal dvf.CoastalSet) []model.Transaction {
	out := txs[:0]
	for _, tx := range txs {
		if coastal.Has(tx.CommuneName) {
			out = append(out, tx)
		}
	}
	zap.L().Info("pipeline: coastal communes kept", zap.Int("before", len(txs)), zap.Int("after", len(out)))
	return out
}

// JoinPopulation sets each sale's commune population when known.
func JoinPopulation(txs []model.Transaction, pop dvf.Population) {
	for i := range txs {
		if n, ok := pop[txs[i].CommuneCode]; ok {
			txs[i].Population = &n
		}
	}
}

func (p *Pipeline) streetTypes(ctx context.Context) (dvf.StreetTypes, error) {
	path := p.cfg.Data.StreetTypesPath
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		zap.L().Warn("pipeline: no street-type table, addresses keep abbreviations", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open street types")
	}
	defer f.Close() //nolint:errcheck
	return dvf.LoadStreetTypes(ctx, f)
}

// download refreshes url into the data dir under name and returns its path.
func (p *Pipeline) download(ctx context.Context, url, name string) (string, error) {
	dest := filepath.Join(p.cfg.Data.Dir, name)
	changed, err := p.fetcher.DownloadIfChanged(ctx, url, dest)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: download %s", url)
	}
	zap.L().Debug("pipeline: input ready", zap.String("path", dest), zap.Bool("downloaded", changed))
	return dest, nil
}
