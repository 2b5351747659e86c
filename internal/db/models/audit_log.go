// Package models - audit_log.go defines the append-only AdminAuditLog entry recording
// logins, logouts, permission denials and privileged actions.
package models

import "time"

// Audit action types
const (
	AuditLoginSuccess     = "admin.login.success"
	AuditLoginFailure     = "admin.login.failure"
	AuditLogout           = "admin.logout"
	AuditLogoutAll        = "admin.logout_all"
	AuditPermissionDenied = "admin.permission.denied"
	AuditAction           = "admin.action"
)

// AdminAuditLog represents an audit log entry
type AdminAuditLog struct {
	ID           string                 `json:"id"`
	AdminID      *string                `json:"admin_id,omitempty"` // nil when the login email matched no admin
	SessionID    *string                `json:"session_id,omitempty"`
	ActionType   string                 `json:"action_type"`
	ResourceType *string                `json:"resource_type,omitempty"`
	ResourceID   *string                `json:"resource_id,omitempty"`
	IPAddress    *string                `json:"ip_address,omitempty"`
	UserAgent    *string                `json:"user_agent,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
