package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsPrefix is the prefix used for all metrics
const MetricsPrefix = "stumart_query_"

// Lookup statuses
const (
	LookupHit    = "hit"
	LookupStale  = "stale"
	LookupMiss   = "miss"
	LookupShared = "shared"
)

var (
	// Cache lookups by namespace and outcome
	// Cardinality: ~28 (7 namespaces × 4 statuses)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "cache_lookups_total",
			Help: "Cache lookups performed by the request coordinator",
		},
		[]string{"namespace", "status"},
	)

	// Fetches dispatched to the backend
	// Cardinality: ~14 (7 namespaces × success/error)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "fetches_total",
			Help: "Fetches dispatched to the REST backend",
		},
		[]string{"namespace", "result"},
	)

	// Fetch latency per namespace
	FetchLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricsPrefix + "fetch_latency_seconds",
			Help: "Latency of backend fetches",
		},
		[]string{"namespace"},
	)

	// Debounced calls replaced by a newer call in the same group
	DebounceSupersededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "debounce_superseded_total",
			Help: "Debounced queries skipped because a newer call arrived",
		},
		[]string{"namespace"},
	)

	// Fetch results not written because an optimistic write landed first
	SupersededWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "superseded_writes_total",
			Help: "Fetch results discarded because the entry changed after dispatch",
		},
		[]string{"namespace"},
	)

	// Cache entries per namespace
	CacheEntriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "cache_entries",
			Help: "Number of entries held per namespace",
		},
		[]string{"namespace"},
	)

	// Mutation outcomes
	// Cardinality: ~12 (6 mutations × confirmed/rolled_back)
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "mutations_total",
			Help: "Optimistic mutations by outcome",
		},
		[]string{"mutation", "outcome"},
	)

	// Backend HTTP requests by status class
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "api_requests_total",
			Help: "HTTP requests sent to the REST backend",
		},
		[]string{"status"},
	)

	// Backend HTTP retries
	APIRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "api_retry_attempts_total",
			Help: "Retry attempts made by the REST client",
		},
	)
)

// MetricsWriter records coordinator metrics for one namespace
type MetricsWriter struct {
	namespace string
}

// NewMetricsWriter creates a new MetricsWriter for the specified namespace
func NewMetricsWriter(namespace string) *MetricsWriter {
	return &MetricsWriter{namespace: namespace}
}

// Namespace returns the namespace label
func (mw *MetricsWriter) Namespace() string {
	return mw.namespace
}

// RecordLookup records a cache lookup with its status
func (mw *MetricsWriter) RecordLookup(status string) {
	CacheLookupsTotal.WithLabelValues(mw.namespace, status).Inc()
}

// RecordFetch records a finished backend fetch
func (mw *MetricsWriter) RecordFetch(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	FetchesTotal.WithLabelValues(mw.namespace, result).Inc()
	FetchLatencyHistogram.WithLabelValues(mw.namespace).Observe(duration.Seconds())
}

// RecordDebounceSuperseded records a skipped debounced call
func (mw *MetricsWriter) RecordDebounceSuperseded() {
	DebounceSupersededTotal.WithLabelValues(mw.namespace).Inc()
}

// RecordSupersededWrite records a fetch result that was not stored
func (mw *MetricsWriter) RecordSupersededWrite() {
	SupersededWritesTotal.WithLabelValues(mw.namespace).Inc()
}

// RecordCacheSize records the number of entries in the namespace
func (mw *MetricsWriter) RecordCacheSize(size int) {
	CacheEntriesGauge.WithLabelValues(mw.namespace).Set(float64(size))
}

// RecordMutation records the outcome of an optimistic mutation
func RecordMutation(name, outcome string) {
	MutationsTotal.WithLabelValues(name, outcome).Inc()
}

// APIStatusHandler counts backend HTTP requests and retries
type APIStatusHandler struct{}

// OnRequest records an HTTP request with its status
func (APIStatusHandler) OnRequest(status string) {
	APIRequestsTotal.WithLabelValues(status).Inc()
}

// OnRetry records an HTTP retry attempt
func (APIStatusHandler) OnRetry() {
	APIRetriesTotal.Inc()
}
