package telemetry

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// family gathers name from the default registry.
func family(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelNames(m *dto.Metric) []string {
	var names []string
	for _, lp := range m.GetLabel() {
		names = append(names, lp.GetName())
	}
	return names
}

// ---------------------------------------------------------------------------
// Registration and label sets
// ---------------------------------------------------------------------------

func TestMetrics_RegisteredWithExpectedLabels(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/admin/auth/login", "200").Add(0)
	HTTPRequestDuration.WithLabelValues("POST", "/api/v1/admin/auth/login").Observe(0.01)
	AdminLoginAttemptsTotal.WithLabelValues("success").Add(0)
	AdminSessionVerificationsTotal.WithLabelValues("ok").Add(0)
	AdminPermissionDenialsTotal.WithLabelValues("audit_logs").Add(0)
	AuditWriteErrorsTotal.WithLabelValues("database").Add(0)
	RateLimitRejectionsTotal.WithLabelValues("login").Add(0)

	tests := []struct {
		name   string
		labels []string
	}{
		{"http_requests_total", []string{"method", "path", "status"}},
		{"http_request_duration_seconds", []string{"method", "path"}},
		{"admin_login_attempts_total", []string{"result"}},
		{"admin_session_verifications_total", []string{"result"}},
		{"admin_permission_denials_total", []string{"resource"}},
		{"audit_write_errors_total", []string{"sink"}},
		{"rate_limit_rejections_total", []string{"scope"}},
		{"admin_lockouts_total", nil},
		{"audit_entries_dropped_total", nil},
		{"admin_sessions_purged_total", nil},
		{"rate_limit_fallbacks_total", nil},
		{"db_open_connections", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mf := family(t, tt.name)
			require.NotNil(t, mf, "metric not registered")
			require.NotEmpty(t, mf.GetMetric())
			assert.ElementsMatch(t, tt.labels, labelNames(mf.GetMetric()[0]))
		})
	}
}

// ---------------------------------------------------------------------------
// Counters move by exactly what is recorded
// ---------------------------------------------------------------------------

func TestMetrics_CountersAccumulate(t *testing.T) {
	login := AdminLoginAttemptsTotal.WithLabelValues("invalid_credentials")
	before := testutil.ToFloat64(login)
	login.Inc()
	login.Inc()
	assert.Equal(t, before+2, testutil.ToFloat64(login))

	lockouts := testutil.ToFloat64(AdminLockoutsTotal)
	AdminLockoutsTotal.Inc()
	assert.Equal(t, lockouts+1, testutil.ToFloat64(AdminLockoutsTotal))

	purged := testutil.ToFloat64(AdminSessionsPurgedTotal)
	AdminSessionsPurgedTotal.Add(4)
	assert.Equal(t, purged+4, testutil.ToFloat64(AdminSessionsPurgedTotal))
}

func TestMetrics_LintClean(t *testing.T) {
	for _, c := range []prometheus.Collector{AdminLockoutsTotal, AuditEntriesDroppedTotal, AdminSessionsPurgedTotal, DBOpenConnections} {
		problems, err := testutil.CollectAndLint(c)
		require.NoError(t, err)
		assert.Empty(t, problems)
	}
}

// ---------------------------------------------------------------------------
// DB stats sampling
// ---------------------------------------------------------------------------

func TestSampleDBStats(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.True(t, sampleDBStats(db))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.False(t, sampleDBStats(db), "collector stops when the database is gone")

	assert.NoError(t, mock.ExpectationsWereMet())
}
