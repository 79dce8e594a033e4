// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	RegisterMetricsEndpoint(router)

	// Test that /metrics endpoint works
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestRecordLockAcquire(t *testing.T) {
	// This should not panic
	RecordLockAcquire("FORM_SUBMISSION", "acquired")
	RecordLockAcquire("FORM_SUBMISSION", "denied")
	RecordLockAcquire("CLIENT", "error")
}

func TestRecordLockRelease(t *testing.T) {
	// This should not panic
	RecordLockRelease("FORM_SUBMISSION", "released")
	RecordLockRelease("CALL", "not_held")
}

func TestRecordLockCheck(t *testing.T) {
	// This should not panic
	RecordLockCheck("FORM", "locked")
	RecordLockCheck("FORM", "unlocked")
}

func TestRecordLocksPurged(t *testing.T) {
	// This should not panic
	RecordLocksPurged(0)
	RecordLocksPurged(12)
}

func TestRecordHTTPRequest(t *testing.T) {
	// This should not panic
	RecordHTTPRequest("POST", "/api/v1/locks", "200")
	RecordHTTPRequest("GET", "/api/v1/locks", "404")
}

func TestRecordHTTPRequestDuration(t *testing.T) {
	// This should not panic
	RecordHTTPRequestDuration("GET", "/api/v1/locks", 0.05)
	RecordHTTPRequestDuration("POST", "/api/v1/locks", 0.2)
}

func TestRecordStoreQuery(t *testing.T) {
	// This should not panic
	RecordStoreQuery("acquire", 0.005)
	RecordStoreQuery("release", 0.01)
	RecordStoreQuery("purge", 0.02)
}

func TestMetricsAreRegistered(t *testing.T) {
	// Verify all metrics are registered with Prometheus
	metrics := []prometheus.Collector{
		LockAcquireTotal,
		LockReleaseTotal,
		LockChecksTotal,
		LocksPurged,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StoreQueryDuration,
	}

	for _, metric := range metrics {
		assert.NotNil(t, metric)
	}
}
