package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
)

var roleCols = []string{"id", "name", "display_name", "description", "default_permissions", "is_system", "created_at", "updated_at"}

func newRoleRepo(t *testing.T) (*RoleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRoleRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestListRoles(t *testing.T) {
	repo, mock := newRoleRepo(t)
	now := time.Now()
	mock.ExpectQuery("FROM admin_roles ORDER BY name").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("r1", "moderator", "Moderator", nil, []byte(`{"applications":["view","approve"]}`), true, now, now).
			AddRow("r2", "support", "Support", nil, []byte(`{"applications":["view"]}`), true, now, now))

	roles, err := repo.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("len = %d, want 2", len(roles))
	}
	set, _ := roles[0].DefaultPermissions.Actions(models.ResourceApplications)
	if !set.Contains(models.ActionApprove) {
		t.Error("moderator should approve applications")
	}
}

func TestListRoles_DBError(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("FROM admin_roles").WillReturnError(errDB)

	if _, err := repo.ListRoles(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestGetRoleByName_NotFound(t *testing.T) {
	repo, mock := newRoleRepo(t)
	mock.ExpectQuery("FROM admin_roles WHERE name = \\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(roleCols))

	role, err := repo.GetRoleByName(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != nil {
		t.Errorf("expected nil, got %+v", role)
	}
}
