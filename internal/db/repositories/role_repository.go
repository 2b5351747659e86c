// role_repository.go implements RoleRepository, a read-only view of admin roles and
// their default permissions.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
)

// RoleRepository handles admin role queries
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleColumns = `id, name, display_name, description, default_permissions, is_system, created_at, updated_at`

func scanRole(row interface{ Scan(...interface{}) error }) (*models.AdminRole, error) {
	var role models.AdminRole
	var permsJSON []byte
	if err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &permsJSON,
		&role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	perms, err := models.ParsePermissions(permsJSON)
	if err != nil {
		return nil, err
	}
	role.DefaultPermissions = perms
	return &role, nil
}

// ListRoles returns all roles ordered by name
func (r *RoleRepository) ListRoles(ctx context.Context) ([]*models.AdminRole, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+roleColumns+` FROM admin_roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*models.AdminRole, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRoleByName retrieves a role by name. Returns nil, nil when absent.
func (r *RoleRepository) GetRoleByName(ctx context.Context, name string) (*models.AdminRole, error) {
	role, err := scanRole(r.db.QueryRowxContext(ctx, `SELECT `+roleColumns+` FROM admin_roles WHERE name = $1`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}
