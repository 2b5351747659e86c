package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/db/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditCols = []string{
	"id", "admin_id", "session_id", "action_type", "resource_type", "resource_id",
	"ip_address", "user_agent", "details", "success", "error_message", "created_at",
}

func newAuditLogRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewAuditLogHandlers(repositories.NewAuditRepository(sqlx.NewDb(db, "sqlmock")))
	r := gin.New()
	r.GET("/audit-logs", h.ListAuditLogs)
	r.GET("/audit-logs/:id", h.GetAuditLog)
	return mock, r
}

func auditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-1", "admin-1", "sess-1", models.AuditLoginFailure, nil, nil,
			"192.0.2.1", "curl/8", []byte(`{"email":"ops@example.com"}`), false, "invalid_credentials", time.Now())
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ---------------------------------------------------------------------------
// ListAuditLogs
// ---------------------------------------------------------------------------

func TestListAuditLogs_DefaultPagination(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, admin_id").
		WithArgs(50, 0).
		WillReturnRows(auditRow())

	w := get(r, "/audit-logs")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	logs, _ := body["logs"].([]interface{})
	require.Len(t, logs, 1)
	pagination, _ := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(50), pagination["per_page"])
	assert.Equal(t, float64(1), pagination["total"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogs_FiltersAndPage(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("SELECT COUNT.*action_type = \\$1.*success = \\$2").
		WithArgs(models.AuditLoginFailure, false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery("LIMIT \\$3 OFFSET \\$4").
		WithArgs(models.AuditLoginFailure, false, 10, 10).
		WillReturnRows(sqlmock.NewRows(auditCols))

	w := get(r, "/audit-logs?action_type=admin.login.failure&success=false&page=2&per_page=10")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	logs, ok := decodeBody(t, w)["logs"].([]interface{})
	assert.True(t, ok, "an empty page is an empty array, not null")
	assert.Empty(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogs_OversizedPageFallsBack(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, admin_id").
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(auditCols))

	w := get(r, "/audit-logs?per_page=5000&page=-3")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogs_InvalidFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"success not bool", "success=maybe"},
		{"start not rfc3339", "start_date=yesterday"},
		{"end not rfc3339", "end_date=2026-13-01"},
		{"end before start", "start_date=2026-03-02T00:00:00Z&end_date=2026-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newAuditLogRouter(t)
			w := get(r, "/audit-logs?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NoError(t, mock.ExpectationsWereMet(), "no query should run")
		})
	}
}

func TestListAuditLogs_DBError(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	w := get(r, "/audit-logs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---------------------------------------------------------------------------
// GetAuditLog
// ---------------------------------------------------------------------------

func TestGetAuditLog(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("FROM admin_audit_logs WHERE id = \\$1").
		WithArgs("log-1").
		WillReturnRows(auditRow())

	w := get(r, "/audit-logs/log-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry, _ := decodeBody(t, w)["log"].(map[string]interface{})
	assert.Equal(t, models.AuditLoginFailure, entry["action_type"])
}

func TestGetAuditLog_NotFound(t *testing.T) {
	mock, r := newAuditLogRouter(t)
	mock.ExpectQuery("FROM admin_audit_logs").WillReturnRows(sqlmock.NewRows(auditCols))

	w := get(r, "/audit-logs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
