// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Range cache metrics
	RangeRequests     *prometheus.CounterVec
	RangeDuration     *prometheus.HistogramVec
	GapFetches        *prometheus.CounterVec
	GapSkips          *prometheus.CounterVec
	RecordsFetched    *prometheus.CounterVec
	HistoryExhausted  *prometheus.CounterVec
	CoalescedRequests *prometheus.CounterVec

	// Catalog metrics
	CatalogLookups *prometheus.CounterVec
	CatalogSize    *prometheus.GaugeVec

	// Remote source metrics
	RemoteRequests *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	RemoteRetries  *prometheus.CounterVec

	// Store metrics
	StoreOperations *prometheus.HistogramVec
	StoreErrors     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "cot_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RangeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "requests_total",
			Help:      "Total number of range requests by report type and outcome",
		}, []string{"report_type", "outcome"}),
		RangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "request_duration_seconds",
			Help:      "Range request duration including gap fills",
			Buckets:   prometheus.DefBuckets,
		}, []string{"report_type"}),
		GapFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "gap_fetches_total",
			Help:      "Remote fetches issued to fill a gap (full, left, right)",
		}, []string{"gap"}),
		GapSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "gap_skips_total",
			Help:      "Gaps left unfetched by reason",
		}, []string{"gap", "reason"}),
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "records_fetched_total",
			Help:      "Observations received from the remote source",
		}, []string{"report_type"}),
		HistoryExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "history_exhausted_marks_total",
			Help:      "Oldest observations marked as the start of upstream history",
		}, []string{"report_type"}),
		CoalescedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rangecache",
			Name:      "coalesced_requests_total",
			Help:      "Requests that shared an in-flight identical request",
		}, []string{"cache"}),

		CatalogLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Catalog lookups by report type and result (hit, miss, refresh)",
		}, []string{"report_type", "result"}),
		CatalogSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "contracts",
			Help:      "Number of contracts in the cached catalog",
		}, []string{"report_type"}),

		RemoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Remote page requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_latency_seconds",
			Help:      "Remote page request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RemoteRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Remote request retries by endpoint",
		}, []string{"endpoint"}),

		StoreOperations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Local store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Local store operation errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordRangeRequest records a completed range request.
func RecordRangeRequest(reportType string, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	DefaultMetrics.RangeRequests.WithLabelValues(reportType, outcome).Inc()
	DefaultMetrics.RangeDuration.WithLabelValues(reportType).Observe(seconds)
}

// RecordGapFetch records a gap-fill fetch and the number of rows it returned.
func RecordGapFetch(gap, reportType string, records int) {
	DefaultMetrics.GapFetches.WithLabelValues(gap).Inc()
	DefaultMetrics.RecordsFetched.WithLabelValues(reportType).Add(float64(records))
}

// RecordGapSkip records a gap that was not fetched.
func RecordGapSkip(gap, reason string) {
	DefaultMetrics.GapSkips.WithLabelValues(gap, reason).Inc()
}

// RecordHistoryExhausted records a history-exhausted marker write.
func RecordHistoryExhausted(reportType string) {
	DefaultMetrics.HistoryExhausted.WithLabelValues(reportType).Inc()
}

// RecordCoalesced records a request served by another in-flight call.
func RecordCoalesced(cache string) {
	DefaultMetrics.CoalescedRequests.WithLabelValues(cache).Inc()
}

// RecordCatalogLookup records a catalog lookup result and the catalog size.
func RecordCatalogLookup(reportType, result string, size int) {
	DefaultMetrics.CatalogLookups.WithLabelValues(reportType, result).Inc()
	DefaultMetrics.CatalogSize.WithLabelValues(reportType).Set(float64(size))
}

// RecordRemoteRequest records one remote page request.
func RecordRemoteRequest(endpoint, status string, seconds float64) {
	DefaultMetrics.RemoteRequests.WithLabelValues(endpoint, status).Inc()
	DefaultMetrics.RemoteLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordRemoteRetry records a remote request retry.
func RecordRemoteRetry(endpoint string) {
	DefaultMetrics.RemoteRetries.WithLabelValues(endpoint).Inc()
}

// RecordStoreOperation records local store operation metrics.
func RecordStoreOperation(operation string, seconds float64, err error) {
	DefaultMetrics.StoreOperations.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.StoreErrors.WithLabelValues(operation).Inc()
	}
}
