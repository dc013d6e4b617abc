package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/fetcher"
	"github.com/sells-group/dvf-flood/internal/floodzone"
	"github.com/sells-group/dvf-flood/internal/monitoring"
	"github.com/sells-group/dvf-flood/internal/pipeline"
	"github.com/sells-group/dvf-flood/internal/poi"
	"github.com/sells-group/dvf-flood/internal/regression"
	"github.com/sells-group/dvf-flood/internal/resilience"
	"github.com/sells-group/dvf-flood/internal/store"
	"github.com/sells-group/dvf-flood/pkg/geocode"
	"github.com/sells-group/dvf-flood/pkg/georisques"
)

// pipelineEnv holds the store, metrics and pipeline shared by the stage
// commands.
type pipelineEnv struct {
	Store    store.Store
	Metrics  *monitoring.Metrics
	Pipeline *pipeline.Pipeline
}

// Close writes the metrics textfile and releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Metrics != nil {
		if err := pe.Metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			zap.L().Warn("metrics textfile not written", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// envOptions selects the clients a command needs.
type envOptions struct {
	geocoder   bool
	classifier bool
	pois       bool
}

// initPipeline opens the store and builds the Pipeline with the requested
// clients. Callers should defer env.Close().
func initPipeline(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Data.UserAgent,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	p := pipeline.New(cfg, st, f, metrics)
	p.SetProgressWriter(os.Stderr)
	env := &pipelineEnv{Store: st, Metrics: metrics, Pipeline: p}

	if opts.geocoder {
		p.SetGeocoder(initGeocoder(st))
	}
	if opts.classifier {
		c, err := initClassifier(st)
		if err != nil {
			env.Close()
			return nil, err
		}
		p.SetClassifier(c)
	}
	if opts.pois {
		p.SetPOIFetcher(poi.NewFetcher(cfg.Overpass.Endpoint, cfg.Overpass.MaxParallel, cfg.Overpass.Timeout()))
	}
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	path := cfg.Store.SQLitePath
	if path == "" {
		path = "dvf-flood.db"
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initGeocoder(st store.Store) geocode.Resolver {
	opts := []geocode.Option{
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithConcurrency(cfg.Geocode.Concurrency),
		geocode.WithKeywords(cfg.Geocode.Keywords...),
	}
	if cfg.Geocode.CacheEnabled {
		opts = append(opts, geocode.WithCache(st))
	}
	return geocode.NewClient(opts...)
}

// initClassifier builds the flood-zone classifier for the configured mode:
// the remote zoning API behind the store cache, or the merged TRI layer
// written by the zones command.
func initClassifier(st store.Store) (floodzone.Classifier, error) {
	switch cfg.Georisques.Mode {
	case "local":
		path := pipelineLayerPath()
		zones, err := floodzone.ReadLayer(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read TRI layer %s (run the zones command first)", path)
		}
		return floodzone.NewLocalClassifier(zones), nil
	default:
		client := georisques.NewClient(
			georisques.WithBaseURL(cfg.Georisques.BaseURL),
			georisques.WithTimeout(cfg.Georisques.Timeout()),
			georisques.WithRetry(resilience.FromSettings(cfg.Georisques.MaxAttempts, cfg.Georisques.BackoffMs)),
			georisques.WithRateLimit(cfg.Georisques.RateLimit),
		)
		return floodzone.NewCachedClassifier(client, st), nil
	}
}

func pipelineLayerPath() string {
	return filepath.Join(cfg.Data.Dir, pipeline.ZoneLayerFile)
}

// loadSpec reads the configured model specification, or the default one.
func loadSpec() (regression.Spec, error) {
	if cfg.Regression.SpecPath == "" {
		return regression.DefaultSpec(), nil
	}
	return regression.LoadSpec(cfg.Regression.SpecPath)
}
