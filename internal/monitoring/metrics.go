package monitoring

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "dvf_flood"

// Metrics holds the Prometheus counters and histograms of a pipeline run.
type Metrics struct {
	TransactionsProcessed *prometheus.CounterVec // labels: stage

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={found,not_found,transient}
	GeocodeFallback *prometheus.CounterVec // labels: result={found,centroid,missing}

	// Flood classification metrics.
	FloodLookups *prometheus.CounterVec // labels: status={in_zone,no_zone,ambiguous,failed}

	// POI metrics.
	POIPoints *prometheus.CounterVec // labels: kind

	// Regression metrics.
	FitOutcomes *prometheus.CounterVec // labels: property_type, variant, result={ok,error}

	StageDuration *prometheus.HistogramVec // labels: stage

	gatherer prometheus.Gatherer
}

func newMetrics() *Metrics {
	return &Metrics{
		TransactionsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_processed_total",
			Help:      "Sales leaving each pipeline stage.",
		}, []string{"stage"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Address geocoding lookups by outcome.",
		}, []string{"outcome"}),
		GeocodeFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_fallback_total",
			Help:      "Sales that needed the commune fallback point, by result.",
		}, []string{"result"}),
		FloodLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flood_lookups_total",
			Help:      "Flood-zone classifications by status.",
		}, []string{"status"}),
		POIPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poi_points_total",
			Help:      "Points of interest kept inside commune boundaries, by kind.",
		}, []string{"kind"}),
		FitOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fits_total",
			Help:      "Regression variant fits by property type and result.",
		}, []string{"property_type", "variant", "result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TransactionsProcessed,
		m.GeocodeRequests,
		m.GeocodeFallback,
		m.FloodLookups,
		m.POIPoints,
		m.FitOutcomes,
		m.StageDuration,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	m.gatherer = prometheus.DefaultGatherer
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	m.gatherer = reg
	return m
}

// ObserveStage records the duration of stage between start and end.
func (m *Metrics) ObserveStage(stage string, start, end time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(end.Sub(start).Seconds())
}

// FitResult counts one variant fit.
func (m *Metrics) FitResult(propertyType, variant string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FitOutcomes.WithLabelValues(propertyType, variant, result).Inc()
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format, for pickup by a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "monitoring: create textfile dir")
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return eris.Wrap(err, "monitoring: write textfile")
	}
	return nil
}
