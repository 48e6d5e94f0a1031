// Package metrics exposes Prometheus collectors for feed refreshes and
// filter compilation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service, bound to one registry.
type Metrics struct {
	registry *prometheus.Registry

	FeedFetchesTotal    *prometheus.CounterVec // label: result = ok|cached|error
	RefreshDuration     prometheus.Histogram
	EventsLoaded        prometheus.Gauge
	CategoriesLoaded    prometheus.Gauge
	DegradedEvents      prometheus.Gauge
	CompilationsTotal   *prometheus.CounterVec // label: mode
	CompiledEvents      prometheus.Histogram
	RuleAssignments     prometheus.Counter
	GroupMutationsTotal *prometheus.CounterVec // label: op
}

// New registers a fresh set of collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calfilter",
			Name:      "feed_fetches_total",
			Help:      "Feed downloads by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calfilter",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a full fetch, parse and recompute cycle.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		EventsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "calfilter",
			Name:      "events_loaded",
			Help:      "Normalized events currently loaded.",
		}),
		CategoriesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "calfilter",
			Name:      "categories_loaded",
			Help:      "Categories derived from the current events.",
		}),
		DegradedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "calfilter",
			Name:      "degraded_fields",
			Help:      "Fields that could not be normalized in the current events.",
		}),
		CompilationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calfilter",
			Name:      "compilations_total",
			Help:      "Selections compiled, by mode.",
		}, []string{"mode"}),
		CompiledEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calfilter",
			Name:      "compiled_events",
			Help:      "Size of compiled event sets.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RuleAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calfilter",
			Name:      "rule_assignments_total",
			Help:      "Categories newly assigned by rules.",
		}),
		GroupMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calfilter",
			Name:      "group_mutations_total",
			Help:      "Successful group store mutations, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.FeedFetchesTotal,
		m.RefreshDuration,
		m.EventsLoaded,
		m.CategoriesLoaded,
		m.DegradedEvents,
		m.CompilationsTotal,
		m.CompiledEvents,
		m.RuleAssignments,
		m.GroupMutationsTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
