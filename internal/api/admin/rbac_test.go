package admin

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/auth/authtest"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/db/repositories"
	"github.com/stagehand/adminauth/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDB = errors.New("db error")

var roleCols = []string{"id", "name", "display_name", "description", "default_permissions", "is_system", "created_at", "updated_at"}

// withAdmin stands in for RequireAdminSession.
func withAdmin(admin *models.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		if admin != nil {
			c.Set(middleware.AdminKey, admin)
			c.Set(middleware.AdminIDKey, admin.ID)
		}
		c.Next()
	}
}

type rbacFixture struct {
	mock   sqlmock.Sqlmock
	router *gin.Engine
	store  *authtest.Store
	audit  *authtest.AuditSink
}

func newRBACFixture(t *testing.T, admin *models.Admin) *rbacFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := authtest.NewStore()
	sink := &authtest.AuditSink{}
	h := NewRBACHandlers(repositories.NewRoleRepository(sqlx.NewDb(db, "sqlmock")), auth.NewPermissionEvaluator(store, sink))
	r := gin.New()
	r.Use(withAdmin(admin))
	r.POST("/permissions/check", h.CheckPermission)
	r.GET("/roles", h.ListRoles)
	return &rbacFixture{mock: mock, router: r, store: store, audit: sink}
}

func newRBACRouter(t *testing.T, admin *models.Admin) (sqlmock.Sqlmock, *gin.Engine) {
	f := newRBACFixture(t, admin)
	return f.mock, f.router
}

func (f *rbacFixture) check(body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func supportAdmin() *models.Admin {
	return &models.Admin{
		ID:       "admin-1",
		IsActive: true,
		Role: &models.AdminRole{
			Name: "support",
			DefaultPermissions: models.Permissions{
				models.ResourceApplications: {models.ActionView},
				models.ResourceUsers:        {models.ActionView},
			},
		},
		CustomPermissions: models.Permissions{
			models.ResourceUsers: {},
		},
	}
}

// ---------------------------------------------------------------------------
// CheckPermission
// ---------------------------------------------------------------------------

func TestCheckPermission(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		allowed bool
	}{
		{"role default", `{"resource":"applications","action":"view"}`, true},
		{"action outside role", `{"resource":"applications","action":"delete"}`, false},
		{"empty override wins", `{"resource":"users","action":"view"}`, false},
		{"unknown resource", `{"resource":"billing","action":"view"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newRBACRouter(t, supportAdmin())
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.allowed, decodeBody(t, w)["allowed"])
		})
	}
}

func TestCheckPermission_BadRequest(t *testing.T) {
	_, r := newRBACRouter(t, supportAdmin())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(`{"resource":"applications"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckPermission_NoSession(t *testing.T) {
	_, r := newRBACRouter(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(`{"resource":"applications","action":"view"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckPermission_OtherAdminByID(t *testing.T) {
	caller := supportAdmin()
	caller.Role.DefaultPermissions[models.ResourceAdmins] = models.ActionSet{models.ActionView}
	f := newRBACFixture(t, caller)
	targetID := f.store.AddAdmin(&models.Admin{
		Email:    "mod@example.com",
		IsActive: true,
		Role: &models.AdminRole{Name: "moderator", DefaultPermissions: models.Permissions{
			models.ResourceApplications: {models.ActionView, models.ActionApprove},
		}},
	})

	w := f.check(`{"resource":"applications","action":"approve","adminId":"` + targetID + `"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeBody(t, w)["allowed"])
	assert.Empty(t, f.audit.Entries())

	w = f.check(`{"resource":"applications","action":"delete","adminId":"` + targetID + `"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["allowed"])
	require.Equal(t, 1, f.audit.Count(models.AuditPermissionDenied))
	assert.Equal(t, targetID, *f.audit.Last().AdminID)

	w = f.check(`{"resource":"applications","action":"view","adminId":"no-such-admin"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["allowed"])
}

func TestCheckPermission_OtherAdminRequiresAdminsView(t *testing.T) {
	f := newRBACFixture(t, supportAdmin())
	targetID := f.store.AddAdmin(&models.Admin{Email: "x@example.com", IsActive: true})

	w := f.check(`{"resource":"applications","action":"view","adminId":"` + targetID + `"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, 1, f.audit.Count(models.AuditPermissionDenied))
	assert.Equal(t, "admin-1", *f.audit.Last().AdminID)
}

func TestCheckPermission_OwnIDUsesSession(t *testing.T) {
	f := newRBACFixture(t, supportAdmin())

	w := f.check(`{"resource":"applications","action":"delete","adminId":"admin-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["allowed"])
	assert.Empty(t, f.audit.Entries(), "a self check is never audited")
}

func TestCheckPermission_StoreFailure(t *testing.T) {
	caller := supportAdmin()
	caller.Role.DefaultPermissions[models.ResourceAdmins] = models.ActionSet{models.ActionView}
	f := newRBACFixture(t, caller)
	f.store.FailOn("CheckPermission", errDB)

	w := f.check(`{"resource":"applications","action":"view","adminId":"someone"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---------------------------------------------------------------------------
// ListRoles
// ---------------------------------------------------------------------------

func TestListRolesHandler(t *testing.T) {
	mock, r := newRBACRouter(t, supportAdmin())
	now := time.Now()
	mock.ExpectQuery("FROM admin_roles ORDER BY name").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("r1", "moderator", "Moderator", nil, []byte(`{"applications":["view","approve"]}`), true, now, now).
			AddRow("r2", "viewer", "Viewer", nil, []byte(`{}`), true, now, now))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/roles", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	roles, _ := decodeBody(t, w)["roles"].([]interface{})
	require.Len(t, roles, 2)
	first, _ := roles[0].(map[string]interface{})
	assert.Equal(t, "moderator", first["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRolesHandler_DBError(t *testing.T) {
	mock, r := newRBACRouter(t, supportAdmin())
	mock.ExpectQuery("FROM admin_roles").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/roles", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
