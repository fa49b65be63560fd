// Package metrics provides Prometheus collectors for indexing, search,
// generation, the citation ledger and the HTTP API.
//
// All methods are safe to call on a nil *Metrics, so components can take an
// optional collector without guarding every call site.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scholar"

// Search outcomes.
const (
	SearchOK          = "ok"
	SearchFallback    = "lexical_fallback"
	SearchUnavailable = "unavailable"
	SearchError       = "error"
)

// Generation kinds.
const (
	GenerationAnswer  = "answer"
	GenerationRelated = "related"
)

// Metrics holds all Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Indexing
	DocumentsIndexed *prometheus.CounterVec
	IndexDuration    prometheus.Histogram
	IndexUnavailable prometheus.Counter

	// Search
	SearchQueries  *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	SearchResults  prometheus.Counter

	// Generation
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Ledger
	CitationsRecorded *prometheus.CounterVec
	LedgerWriteErrors prometheus.Counter

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.DocumentsIndexed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents processed by the indexer, by outcome",
		},
		[]string{"status"},
	)
	m.IndexDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_duration_seconds",
			Help:      "Duration of index operations in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	m.IndexUnavailable = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_backend_unavailable_total",
			Help:      "Index operations aborted because the backend was unavailable",
		},
	)

	m.SearchQueries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search queries, by outcome",
		},
		[]string{"outcome"},
	)
	m.SearchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of search queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
	m.SearchResults = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_results_total",
			Help:      "Total number of search results returned",
		},
	)

	m.Generations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Text generation calls, by kind and status",
		},
		[]string{"kind", "status"},
	)
	m.GenerationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of text generation calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	m.CitationsRecorded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_recorded_total",
			Help:      "Citation usages recorded in the ledger, by content type",
		},
		[]string{"content_type"},
	)
	m.LedgerWriteErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_errors_total",
			Help:      "Failed ledger persistence attempts",
		},
	)

	m.HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code",
		},
		[]string{"route", "code"},
	)
	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIndex records the outcome of one index operation.
func (m *Metrics) RecordIndex(succeeded, failed int, unavailable bool, duration time.Duration) {
	if m == nil {
		return
	}
	if unavailable {
		m.IndexUnavailable.Inc()
	}
	m.DocumentsIndexed.WithLabelValues("succeeded").Add(float64(succeeded))
	m.DocumentsIndexed.WithLabelValues("failed").Add(float64(failed))
	m.IndexDuration.Observe(duration.Seconds())
}

// RecordSearch records a search query with its outcome and result count.
func (m *Metrics) RecordSearch(outcome string, results int, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueries.WithLabelValues(outcome).Inc()
	m.SearchResults.Add(float64(results))
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordGeneration records a generation call of the given kind.
func (m *Metrics) RecordGeneration(kind string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Generations.WithLabelValues(kind, status).Inc()
	m.GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCitation records one ledger usage, or a failed write when err is set.
func (m *Metrics) RecordCitation(contentType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LedgerWriteErrors.Inc()
		return
	}
	m.CitationsRecorded.WithLabelValues(contentType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
