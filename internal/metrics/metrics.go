// Package metrics exposes pipeline and cache counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/points"
)

const namespace = "esvd"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeNoPoints = "no_points"
	OutcomeError    = "error"
	ResultHit       = "hit"
	ResultMiss      = "miss"
	CacheQuery      = "query"
	CacheFile       = "file"
)

// Metrics holds the collectors registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	resolutions *prometheus.CounterVec
	mapBuilds   *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	sessions    prometheus.Gauge
}

// New creates the collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Cascade filter resolutions by outcome.",
		}, []string{"dataset", "outcome"}),
		mapBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_builds_total",
			Help:      "Study point builds by outcome.",
		}, []string{"dataset", "outcome"}),
		cacheLookup: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of pipeline operations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"dataset", "operation"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Selection sessions currently held in memory.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry, DisableCompression: true})
}

// Outcome classifies a pipeline error into an outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, points.ErrNoMapPoints):
		return OutcomeNoPoints
	case filter.IsFatal(err):
		return OutcomeEmpty
	default:
		return OutcomeError
	}
}

// ObserveResolution counts one cascade resolution.
func (m *Metrics) ObserveResolution(dataset string, err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(dataset, Outcome(err)).Inc()
}

// ObserveMapBuild counts one study point build.
func (m *Metrics) ObserveMapBuild(dataset string, err error) {
	if m == nil {
		return
	}
	m.mapBuilds.WithLabelValues(dataset, Outcome(err)).Inc()
}

// ObserveCache counts one cache lookup.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheLookup.WithLabelValues(cache, result).Inc()
}

// ObserveDuration records the latency of an operation started at start.
func (m *Metrics) ObserveDuration(dataset, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(dataset, operation).Observe(time.Since(start).Seconds())
}

// SetSessions records the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
