package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/regression"
)

// PropertyReport is the result table of one property type.
type PropertyReport struct {
	PropertyType model.PropertyType
	Label        string
	Fitted       int
	Table        *regression.ResultTable
	Path         string
}

var reportTypes = []model.PropertyType{model.PropertyApartment, model.PropertyHouse}

// Regress fits every model variant on the apartment and house subsets and
// writes one result CSV per property type into the output dir. It fails
// only when no variant could be fit for any subset.
func (p *Pipeline) Regress(ctx context.Context, txs []model.Transaction, spec regression.Spec) ([]PropertyReport, error) {
	var reports []PropertyReport
	err := p.trackStage(ctx, StageRegress, func(_ context.Context, _ string) (map[string]int, error) {
		outDir := p.cfg.Regression.OutputDir
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "pipeline: create output dir")
		}

		subsets := ByPropertyType(txs)
		stats := map[string]int{}
		total := 0
		for _, pt := range reportTypes {
			label := spec.Labels[string(pt)]
			if label == "" {
				label = string(pt)
			}

			frame, err := BuildFrame(subsets[pt])
			if err != nil {
				return nil, err
			}
			fitted := regression.FitAllObserved(frame, spec, label, func(variant string, err error) {
				p.metrics.FitResult(string(pt), variant, err)
			})
			table := regression.Report(fitted, spec, label)

			path := filepath.Join(outDir, "resultats_"+strings.ToLower(label)+".csv")
			if err := writeTable(path, table); err != nil {
				return nil, err
			}
			if len(fitted) == 0 {
				zap.L().Warn("pipeline: no model fitted", zap.String("property_type", string(pt)), zap.Int("sales", len(subsets[pt])))
			}

			reports = append(reports, PropertyReport{
				PropertyType: pt,
				Label:        label,
				Fitted:       len(fitted),
				Table:        table,
				Path:         path,
			})
			stats[strings.ToLower(label)+"_sales"] = len(subsets[pt])
			stats[strings.ToLower(label)+"_fitted"] = len(fitted)
			total += len(fitted)
		}
		if total == 0 {
			return stats, eris.Wrap(regression.ErrInsufficientData, "pipeline: no model could be fit")
		}
		return stats, nil
	})
	return reports, err
}

func writeTable(path string, t *regression.ResultTable) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	if err := regression.WriteCSV(f, t); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}
