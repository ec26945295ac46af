package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the catalog's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	reloadDuration prometheus.Histogram
	catalogSize    prometheus.Gauge
	indexesLoaded  prometheus.Counter
	indexesSkipped *prometheus.CounterVec
	events         *prometheus.CounterVec
}

// New creates and registers the catalog collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pkgcatalog",
			Name:      "reload_duration_seconds",
			Help:      "Time spent rebuilding the package catalog.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pkgcatalog",
			Name:      "packages",
			Help:      "Number of distinct package names in the catalog.",
		}),
		indexesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pkgcatalog",
			Name:      "index_files_loaded_total",
			Help:      "Repository index files parsed.",
		}),
		indexesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkgcatalog",
			Name:      "index_files_skipped_total",
			Help:      "Repository index files skipped, by reason.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkgcatalog",
			Name:      "package_events_total",
			Help:      "Package state changes applied to the catalog, by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.reloadDuration,
		m.catalogSize,
		m.indexesLoaded,
		m.indexesSkipped,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReload records one catalog rebuild
func (m *Metrics) ObserveReload(elapsed time.Duration, packages int) {
	if m == nil {
		return
	}
	m.reloadDuration.Observe(elapsed.Seconds())
	m.catalogSize.Set(float64(packages))
}

// SetCatalogSize records the current number of packages
func (m *Metrics) SetCatalogSize(packages int) {
	if m == nil {
		return
	}
	m.catalogSize.Set(float64(packages))
}

// IndexLoaded counts a parsed index file
func (m *Metrics) IndexLoaded() {
	if m == nil {
		return
	}
	m.indexesLoaded.Inc()
}

// IndexSkipped counts a skipped index file
func (m *Metrics) IndexSkipped(reason string) {
	if m == nil {
		return
	}
	m.indexesSkipped.WithLabelValues(reason).Inc()
}

// PackageEvent counts an applied package event
func (m *Metrics) PackageEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}
