package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/floodzone"
	"github.com/sells-group/dvf-flood/internal/regression"
)

// RunResult collects the outputs of a full run.
type RunResult struct {
	Ingest  *IngestResult
	Enrich  EnrichStats
	Reports []PropertyReport
	Stats   []CommuneStat
}

// Run executes every stage in order. In local flood mode the TRI layer of
// the ingested departments is rebuilt and used as the classifier.
func (p *Pipeline) Run(ctx context.Context, spec regression.Spec) (*RunResult, error) {
	res := &RunResult{}

	ing, err := p.Ingest(ctx)
	if err != nil {
		return res, err
	}
	res.Ingest = ing
	txs := ing.Transactions

	if p.cfg.Georisques.Mode == "local" {
		zones, err := p.Zones(ctx, Departments(txs))
		if err != nil {
			return res, err
		}
		p.SetClassifier(floodzone.NewLocalClassifier(zones))
	}

	res.Enrich, err = p.Enrich(ctx, txs)
	if err != nil {
		return res, err
	}

	res.Reports, err = p.Regress(ctx, txs, spec)
	if err != nil {
		return res, err
	}

	res.Stats, err = p.Stats(ctx, txs)
	if err != nil {
		return res, err
	}

	zap.L().Info("pipeline: run complete",
		zap.Int("sales", len(txs)),
		zap.Int("in_zone", res.Enrich.InZone),
		zap.Int("reports", len(res.Reports)),
	)
	return res, nil
}
