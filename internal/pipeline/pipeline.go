// Package pipeline runs the stages of the flood-zone price study: ingest of
// DVF sales, TRI zone download, enrichment, regression and commune
// statistics.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/config"
	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/floodzone"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/monitoring"
	"github.com/sells-group/dvf-flood/internal/store"
	"github.com/sells-group/dvf-flood/pkg/geocode"
)

// Stage names, as recorded in the run log and metrics.
const (
	StageIngest  = "ingest"
	StageZones   = "zones"
	StageEnrich  = "enrich"
	StageRegress = "regress"
	StageStats   = "stats"
)

// POIFetcher fills the point-of-interest sets of a commune.
type POIFetcher interface {
	ForCommune(ctx context.Context, c *model.Commune)
}

// Pipeline wires the stage dependencies together.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	fetcher    fetcher.Fetcher
	geocoder   geocode.Resolver
	classifier floodzone.Classifier
	pois       POIFetcher
	metrics    *monitoring.Metrics
	clock      clockwork.Clock
	progress   io.Writer
}

// New creates a Pipeline. Geocoder, classifier and POI fetcher are optional
// and set separately; a stage skips the steps whose client is missing.
func New(cfg *config.Config, st store.Store, f fetcher.Fetcher, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		fetcher:  f,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		progress: io.Discard,
	}
}

// SetGeocoder sets the address resolver used by the enrich stage.
func (p *Pipeline) SetGeocoder(r geocode.Resolver) {
	p.geocoder = r
}

// SetClassifier sets the flood-zone classifier used by the enrich stage.
func (p *Pipeline) SetClassifier(c floodzone.Classifier) {
	p.classifier = c
}

// SetPOIFetcher sets the source of town halls, beaches, stations and harbors.
func (p *Pipeline) SetPOIFetcher(f POIFetcher) {
	p.pois = f
}

// SetClock swaps the time source. Pass nil to reset to real time.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	if c == nil {
		p.clock = clockwork.NewRealClock()
		return
	}
	p.clock = c
}

// SetProgressWriter sets where batch progress bars are drawn.
func (p *Pipeline) SetProgressWriter(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	p.progress = w
}

// Metrics returns the run metrics.
func (p *Pipeline) Metrics() *monitoring.Metrics {
	return p.metrics
}

// trackStage records a run for stage around fn, with its duration and
// the stats fn returns.
func (p *Pipeline) trackStage(ctx context.Context, stage string, fn func(ctx context.Context, runID string) (map[string]int, error)) error {
	log := zap.L().With(zap.String("stage", stage))

	start := p.clock.Now()
	run, err := p.store.CreateRun(ctx, stage, start)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s run", stage)
	}

	stats, fnErr := fn(ctx, run.ID)
	end := p.clock.Now()
	p.metrics.ObserveStage(stage, start, end)

	status := store.RunStatusComplete
	if fnErr != nil {
		status = store.RunStatusFailed
	}
	if err := p.store.FinishRun(ctx, run.ID, status, stats, fnErr, end); err != nil {
		log.Warn("pipeline: failed to finish run", zap.String("run_id", run.ID), zap.Error(err))
	}

	if fnErr != nil {
		log.Error("pipeline: stage failed",
			zap.String("run_id", run.ID),
			zap.Duration("duration", end.Sub(start)),
			zap.Error(fnErr),
		)
		return fnErr
	}

	fields := []zap.Field{zap.String("run_id", run.ID), zap.Duration("duration", end.Sub(start))}
	for k, v := range stats {
		fields = append(fields, zap.Int(k, v))
	}
	log.Info("pipeline: stage complete", fields...)
	return nil
}

// LatestTransactions loads the sales saved by the last completed run of
// stage.
func (p *Pipeline) LatestTransactions(ctx context.Context, stage string) ([]model.Transaction, error) {
	runs, err := p.store.ListRuns(ctx, store.RunFilter{Stage: stage, Status: store.RunStatusComplete, Limit: 1})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list runs")
	}
	if len(runs) == 0 {
		return nil, eris.Errorf("pipeline: no completed %s run", stage)
	}
	return p.store.LoadTransactions(ctx, runs[0].ID)
}

func (p *Pipeline) newBar(n int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(p.progress)
		}),
	)
}

func tick(bar *progressbar.ProgressBar) func() {
	return func() {
		if err := bar.Add(1); err != nil {
			zap.L().Debug("pipeline: progress bar update failed", zap.Error(err))
		}
	}
}
