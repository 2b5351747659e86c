package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// histogramCount returns the sample count of one HistogramVec series.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var m dto.Metric
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func serveMetrics(status int, target string) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/v1/admin/audit-logs/:id", func(c *gin.Context) { c.Status(status) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_CountsByRouteTemplate(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/admin/audit-logs/:id", "200")
	before := testutil.ToFloat64(counter)

	serveMetrics(http.StatusOK, "/api/v1/admin/audit-logs/42")
	serveMetrics(http.StatusOK, "/api/v1/admin/audit-logs/43")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("http_requests_total delta = %v, want 2", got)
	}
}

func TestMetricsMiddleware_ObservesDuration(t *testing.T) {
	before := histogramCount(t, telemetry.HTTPRequestDuration, "GET", "/api/v1/admin/audit-logs/:id")

	serveMetrics(http.StatusOK, "/api/v1/admin/audit-logs/7")

	if after := histogramCount(t, telemetry.HTTPRequestDuration, "GET", "/api/v1/admin/audit-logs/:id"); after != before+1 {
		t.Errorf("sample count = %d, want %d", after, before+1)
	}
}

func TestMetricsMiddleware_ErrorStatus(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/admin/audit-logs/:id", "500")
	before := testutil.ToFloat64(counter)

	serveMetrics(http.StatusInternalServerError, "/api/v1/admin/audit-logs/err")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("status=500 delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", noRoute, "404")
	before := testutil.ToFloat64(counter)

	serveMetrics(http.StatusOK, "/does-not-exist")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("unmatched request delta = %v, want 1", got)
	}
}
