// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LockAcquireTotal tracks acquire attempts by resource type and outcome.
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_acquire_total",
			Help: "Total lock acquire attempts by resource type and outcome (acquired/denied/error)",
		},
		[]string{"resource_type", "outcome"},
	)

	// LockReleaseTotal tracks release attempts by resource type and outcome.
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_release_total",
			Help: "Total lock release attempts by resource type and outcome (released/not_held/error)",
		},
		[]string{"resource_type", "outcome"},
	)

	// LockChecksTotal tracks check reads by resource type and result.
	LockChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_checks_total",
			Help: "Total lock status checks by resource type and result (locked/unlocked)",
		},
		[]string{"resource_type", "result"},
	)

	// LocksPurged tracks expired lock records removed by the purge job.
	LocksPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "locks_purged_total",
			Help: "Total expired lock records removed by the hygiene purge",
		},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StoreQueryDuration tracks lock store operation duration.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lock_store_query_duration_seconds",
			Help:    "Lock store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RecordLockAcquire records a lock acquire attempt.
func RecordLockAcquire(resourceType, outcome string) {
	LockAcquireTotal.WithLabelValues(resourceType, outcome).Inc()
}

// RecordLockRelease records a lock release attempt.
func RecordLockRelease(resourceType, outcome string) {
	LockReleaseTotal.WithLabelValues(resourceType, outcome).Inc()
}

// RecordLockCheck records a lock status check.
func RecordLockCheck(resourceType, result string) {
	LockChecksTotal.WithLabelValues(resourceType, result).Inc()
}

// RecordLocksPurged records expired records removed by the purge job.
func RecordLocksPurged(count int64) {
	LocksPurged.Add(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(method, path string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordStoreQuery records a lock store operation duration.
func RecordStoreQuery(operation string, seconds float64) {
	StoreQueryDuration.WithLabelValues(operation).Observe(seconds)
}
