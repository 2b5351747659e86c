// Package telemetry provides application-level observability for the admin auth service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<STH_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint is NOT served by the Gin router, so it is never
// reachable through the public listener.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Admin login, lockout, session verification and permission denial counters
//   - Audit pipeline drop and write error counters
//   - Session cleanup counter
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template) rather than the raw request URL.
// Auth metrics are labelled by error kind, never by email or admin id.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stagehand/adminauth/internal/safego"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/admin/auth/login),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Admin authentication metrics, recorded by internal/auth.
//
// AdminLoginAttemptsTotal is a CounterVec with label {result}: "success" or the failure
// kind (invalid_credentials, account_locked, totp_required, ...). A sudden rise in
// invalid_credentials is the usual signature of a credential-stuffing run.
//
// Example PromQL queries:
//   - Failure ratio:            sum(rate(admin_login_attempts_total{result!="success"}[5m])) / sum(rate(admin_login_attempts_total[5m]))
//   - Alert on stuffing:        sum(rate(admin_login_attempts_total{result="invalid_credentials"}[5m])) > 1
//
// AdminLockoutsTotal is a plain Counter incremented each time a failure crosses the
// lockout threshold.
//
// AdminSessionVerificationsTotal is a CounterVec with label {result}: "ok" or the session
// failure kind. Expired and idle results are expected background noise; a burst of
// session_invalid means tokens are being guessed or replayed after logout.
//
// AdminPermissionDenialsTotal is a CounterVec with label {resource}.
var (
	AdminLoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_login_attempts_total",
			Help: "Total number of admin login attempts, by result.",
		},
		[]string{"result"},
	)

	AdminLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admin_lockouts_total",
			Help: "Total number of admin accounts locked after repeated failed logins.",
		},
	)

	AdminSessionVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_session_verifications_total",
			Help: "Total number of admin session verifications, by result.",
		},
		[]string{"result"},
	)

	AdminPermissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_permission_denials_total",
			Help: "Total number of denied admin permission checks, by resource.",
		},
		[]string{"resource"},
	)
)

// Audit pipeline metrics, recorded by internal/audit.
//
// AuditEntriesDroppedTotal counts entries discarded before reaching a sink: the
// in-memory queue was full, the logger was already closed, or the archive buffer
// overflowed while its backend was unreachable. A sustained rate usually means
// audit.queue_size or audit.workers is too small for the current load.
//
// AuditWriteErrorsTotal is a CounterVec with label {sink}: "database", "webhook" or "archive".
//
// Example PromQL queries:
//   - Alert on drops:  increase(audit_entries_dropped_total[10m]) > 0
var (
	AuditEntriesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_dropped_total",
			Help: "Total number of audit entries dropped before reaching a sink.",
		},
	)

	AuditWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Total number of failed audit writes, by sink.",
		},
		[]string{"sink"},
	)
)

// RateLimitRejectionsTotal is a CounterVec with label {scope}: "login" or "api".
// RateLimitFallbacksTotal counts requests decided by the in-process limiter because
// Redis was unreachable.
//
// Example PromQL queries:
//   - Login throttling:  rate(rate_limit_rejections_total{scope="login"}[5m])
//   - Redis degraded:    increase(rate_limit_fallbacks_total[5m]) > 0
var (
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected with 429, by scope.",
		},
		[]string{"scope"},
	)

	RateLimitFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_fallbacks_total",
			Help: "Total number of rate limit decisions made locally because Redis failed.",
		},
	)
)

// AdminSessionsPurgedTotal is a plain Counter incremented by the number of rows removed
// by each run of the session cleanup job.
//
// Example PromQL queries:
//   - Purge rate:  rate(admin_sessions_purged_total[1h])
var AdminSessionsPurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "admin_sessions_purged_total",
		Help: "Total number of expired or idle admin sessions removed by the cleanup job.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <STH_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples the pool's open connection count every 30 seconds into
// DBOpenConnections. It stops once the database stops answering pings, which happens
// after main closes the pool on shutdown.
func StartDBStatsCollector(db *sql.DB) {
	safego.Go(func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !sampleDBStats(db) {
				return
			}
		}
	})
}

const dbStatsInterval = 30 * time.Second

func sampleDBStats(db *sql.DB) bool {
	if err := db.Ping(); err != nil {
		slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
		return false
	}
	DBOpenConnections.Set(float64(db.Stats().OpenConnections))
	return true
}
