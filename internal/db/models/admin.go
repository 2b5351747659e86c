// Package models - admin.go defines the Admin principal: credentials, second factor,
// lockout counters and role linkage.
package models

import "time"

// Admin represents an administrator account
type Admin struct {
	ID                  string
	Email               string
	FullName            string
	PasswordHash        string  `json:"-"`
	TOTPSecret          *string `json:"-"` // encrypted at rest
	TOTPEnabled         bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	IsActive            bool
	RoleID              string
	Role                *AdminRole
	CustomPermissions   Permissions // nil when the admin has no overrides
	LastLoginAt         *time.Time
	LastLoginIP         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is locked at now.
func (a *Admin) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// RoleName returns the role name or an empty string when the role is not loaded.
func (a *Admin) RoleName() string {
	if a.Role == nil {
		return ""
	}
	return a.Role.Name
}
