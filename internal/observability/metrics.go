package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lead_finder"

// Metrics holds the Prometheus counters and histograms for the lead search service.
type Metrics struct {
	Searches       *prometheus.CounterVec // labels: outcome={success,error}
	SearchDuration prometheus.Histogram
	POIsFetched    prometheus.Counter
	Rejections     *prometheus.CounterVec // labels: reason={website,contact,date,unparseable_date,duplicate}
	LeadsReturned  prometheus.Histogram
	LeadsStored    prometheus.Counter
	LeadsPublished prometheus.Counter
	CallOutcomes   *prometheus.CounterVec // labels: outcome

	// Cache and upstream metrics.
	CacheLookups     *prometheus.CounterVec   // labels: kind={geocode,poi}, result={hit,miss}
	UpstreamRequests *prometheus.CounterVec   // labels: service={nominatim,overpass}, outcome={success,error,empty,retry}
	UpstreamDuration *prometheus.HistogramVec // labels: service
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Searches,
		m.SearchDuration,
		m.POIsFetched,
		m.Rejections,
		m.LeadsReturned,
		m.LeadsStored,
		m.LeadsPublished,
		m.CallOutcomes,
		m.CacheLookups,
		m.UpstreamRequests,
		m.UpstreamDuration,
	)
	return m
}

// NewLocalMetrics creates unregistered Metrics for processes that never serve
// /metrics, such as the CLI.
func NewLocalMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Lead searches by outcome.",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of a complete geocode, fetch, rank and persist cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		POIsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pois_fetched_total",
			Help:      "Raw points of interest returned by the mapping service.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poi_rejections_total",
			Help:      "Points of interest discarded during extraction, by reason.",
		}, []string{"reason"}),
		LeadsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leads_returned",
			Help:      "Number of ranked leads returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40, 50, 100},
		}),
		LeadsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_stored_total",
			Help:      "Leads handed to the lead store (insert-if-absent).",
		}),
		LeadsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_published_total",
			Help:      "Ranked leads written to the lead sink.",
		}),
		CallOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_outcomes_total",
			Help:      "Recorded call outcomes.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Query cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to external services by outcome.",
		}, []string{"service", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "External service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
	}
}
