// admin_repository.go implements AdminRepository: admin lookups joined with their role,
// the atomic lockout counter update, last-login bookkeeping, and the single-statement
// permission check.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
)

// AdminRepository handles admin database operations
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminSelect = `
	SELECT a.id, a.email, a.full_name, a.password_hash, a.totp_secret, a.totp_enabled,
	       a.failed_login_attempts, a.locked_until, a.is_active, a.role_id, a.custom_permissions,
	       a.last_login_at, a.last_login_ip, a.created_at, a.updated_at,
	       r.id, r.name, r.display_name, r.description, r.default_permissions, r.is_system,
	       r.created_at, r.updated_at
	FROM admins a
	JOIN admin_roles r ON r.id = a.role_id
`

func scanAdmin(row interface{ Scan(...interface{}) error }) (*models.Admin, error) {
	var a models.Admin
	var role models.AdminRole
	var customJSON, defaultJSON []byte

	err := row.Scan(
		&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &a.TOTPSecret, &a.TOTPEnabled,
		&a.FailedLoginAttempts, &a.LockedUntil, &a.IsActive, &a.RoleID, &customJSON,
		&a.LastLoginAt, &a.LastLoginIP, &a.CreatedAt, &a.UpdatedAt,
		&role.ID, &role.Name, &role.DisplayName, &role.Description, &defaultJSON, &role.IsSystem,
		&role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.CustomPermissions, err = models.ParsePermissions(customJSON); err != nil {
		return nil, fmt.Errorf("invalid custom_permissions for admin %s: %w", a.ID, err)
	}
	if role.DefaultPermissions, err = models.ParsePermissions(defaultJSON); err != nil {
		return nil, fmt.Errorf("invalid default_permissions for role %s: %w", role.Name, err)
	}
	a.Role = &role
	return &a, nil
}

// GetAdminByEmail retrieves an admin by email, case-insensitively. Returns nil, nil when
// no admin matches.
func (r *AdminRepository) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	query := adminSelect + ` WHERE LOWER(a.email) = LOWER($1)`

	admin, err := scanAdmin(r.db.QueryRowxContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// GetAdminByID retrieves an admin by ID. Returns nil, nil when no admin matches.
func (r *AdminRepository) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	query := adminSelect + ` WHERE a.id = $1`

	admin, err := scanAdmin(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// RecordLoginFailure increments the failed-login counter in one statement and locks the
// account until lockUntil once the counter reaches threshold. Postgres evaluates every
// SET expression against the pre-update row, so the counter expression is repeated in
// the lock expression. A lock that has already elapsed restarts the count at 1.
func (r *AdminRepository) RecordLoginFailure(ctx context.Context, adminID string, threshold int, lockUntil, now time.Time) (int, *time.Time, error) {
	query := `
		UPDATE admins SET
			failed_login_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= $4 THEN 1
				ELSE failed_login_attempts + 1
			END,
			locked_until = CASE
				WHEN (CASE
					WHEN locked_until IS NOT NULL AND locked_until <= $4 THEN 1
					ELSE failed_login_attempts + 1
				END) >= $2 THEN $3
				WHEN locked_until IS NOT NULL AND locked_until <= $4 THEN NULL
				ELSE locked_until
			END,
			updated_at = $4
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	err := r.db.QueryRowxContext(ctx, query, adminID, threshold, lockUntil, now).Scan(&attempts, &lockedUntil)
	if err == sql.ErrNoRows {
		return 0, nil, fmt.Errorf("admin %s not found", adminID)
	}
	if err != nil {
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

// ResetLoginFailures clears the failed-login counter and any lock
func (r *AdminRepository) ResetLoginFailures(ctx context.Context, adminID string, now time.Time) error {
	query := `
		UPDATE admins
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, adminID, now)
	return err
}

// UpdateLastLogin records last-login metadata after a successful login
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, adminID, ip string, at time.Time) error {
	query := `
		UPDATE admins
		SET last_login_at = $2, last_login_ip = NULLIF($3, ''), updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, adminID, at, ip)
	return err
}

// CheckPermission evaluates the permission precedence in one statement: an override
// entry for the resource is authoritative, otherwise the role default applies, and a
// missing or inactive admin is denied.
func (r *AdminRepository) CheckPermission(ctx context.Context, adminID string, resource models.Resource, action models.Action) (bool, error) {
	query := `
		SELECT CASE
			WHEN a.custom_permissions IS NOT NULL AND jsonb_exists(a.custom_permissions, $2)
				THEN jsonb_exists(COALESCE(a.custom_permissions -> $2, '[]'::jsonb), $3)
			ELSE jsonb_exists(COALESCE(r.default_permissions -> $2, '[]'::jsonb), $3)
		END
		FROM admins a
		JOIN admin_roles r ON r.id = a.role_id
		WHERE a.id = $1 AND a.is_active
	`

	var allowed bool
	err := r.db.QueryRowxContext(ctx, query, adminID, string(resource), string(action)).Scan(&allowed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return allowed, nil
}
