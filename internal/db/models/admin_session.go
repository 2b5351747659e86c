// Package models - admin_session.go defines AdminSession. Only the SHA-256 hash of the
// session token is persisted.
package models

import "time"

// AdminSession represents an issued admin session
type AdminSession struct {
	ID               string    `json:"id"`
	AdminID          string    `json:"admin_id"`
	SessionTokenHash string    `json:"-"`
	IPAddress        *string   `json:"ip_address,omitempty"`
	UserAgent        *string   `json:"user_agent,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsExpired reports whether the absolute expiry has passed.
func (s *AdminSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsIdle reports whether the session has been inactive for longer than timeout.
func (s *AdminSession) IsIdle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}
