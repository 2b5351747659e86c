package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/telemetry"
)

const (
	// DefaultSessionTTL is the absolute lifetime of a session.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultIdleTimeout is the maximum gap between requests on one session.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultTouchTimeout bounds the asynchronous activity refresh.
	DefaultTouchTimeout = 5 * time.Second
)

// IssuedSession is returned once, at login. Token is the only copy of the raw secret.
type IssuedSession struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// VerifiedSession is the result of a successful verification.
type VerifiedSession struct {
	Admin   *models.Admin
	Session *models.AdminSession
}

// SessionConfig configures a SessionManager. Zero durations select the defaults.
type SessionConfig struct {
	TTL          time.Duration
	IdleTimeout  time.Duration
	TouchTimeout time.Duration
	Clock        clock.Clock
	// Async runs the activity refresh. Defaults to safego.Go.
	Async func(func())
}

// SessionManager issues, verifies and revokes opaque admin sessions.
//
// A session is usable while now <= expires_at and now - last_activity_at <= idle
// timeout. Both limits are checked on every verification; a session failing either is
// deleted and the caller gets the matching error. Verification refreshes
// last_activity_at only; expires_at never moves.
type SessionManager struct {
	sessions     SessionStore
	admins       AdminStore
	clock        clock.Clock
	ttl          time.Duration
	idleTimeout  time.Duration
	touchTimeout time.Duration
	async        func(func())
}

// NewSessionManager creates a session manager.
func NewSessionManager(sessions SessionStore, admins AdminStore, cfg SessionConfig) *SessionManager {
	m := &SessionManager{
		sessions:     sessions,
		admins:       admins,
		clock:        cfg.Clock,
		ttl:          cfg.TTL,
		idleTimeout:  cfg.IdleTimeout,
		touchTimeout: cfg.TouchTimeout,
		async:        cfg.Async,
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.ttl <= 0 {
		m.ttl = DefaultSessionTTL
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	if m.touchTimeout <= 0 {
		m.touchTimeout = DefaultTouchTimeout
	}
	if m.async == nil {
		m.async = safego.Go
	}
	return m
}

// Issue creates a session for adminID and returns the raw token.
func (m *SessionManager) Issue(ctx context.Context, adminID, ip, userAgent string) (*IssuedSession, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, internalError("generate session token", err)
	}

	now := m.clock.Now()
	session := &models.AdminSession{
		AdminID:          adminID,
		SessionTokenHash: HashToken(token),
		IPAddress:        optionalString(ip),
		UserAgent:        optionalString(userAgent),
		ExpiresAt:        now.Add(m.ttl),
		LastActivityAt:   now,
		CreatedAt:        now,
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		// A failed commit may still have reached the store. The token is never returned,
		// so remove any row that carries its hash.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.touchTimeout)
		defer cancel()
		if delErr := m.sessions.DeleteSessionByTokenHash(cleanupCtx, session.SessionTokenHash); delErr != nil {
			slog.Warn("failed to clean up partially issued session", "admin_id", adminID, "error", delErr)
		}
		return nil, internalError("create session", err)
	}

	return &IssuedSession{Token: token, SessionID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// Verify resolves token to its session and owning admin.
func (m *SessionManager) Verify(ctx context.Context, token string) (*VerifiedSession, error) {
	vs, err := m.verify(ctx, token)
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	telemetry.AdminSessionVerificationsTotal.WithLabelValues(result).Inc()
	return vs, err
}

func (m *SessionManager) verify(ctx context.Context, token string) (*VerifiedSession, error) {
	token = ExtractSessionToken(token)
	if token == "" {
		return nil, ErrSessionMissing
	}

	session, err := m.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, internalError("lookup session", err)
	}
	if session == nil {
		return nil, ErrSessionInvalid
	}

	now := m.clock.Now()
	if session.IsExpired(now) {
		m.discard(ctx, session, "expired")
		return nil, ErrSessionExpired
	}
	if session.IsIdle(now, m.idleTimeout) {
		m.discard(ctx, session, "idle")
		return nil, ErrSessionInactiveTimeout
	}

	admin, err := m.admins.GetAdminByID(ctx, session.AdminID)
	if err != nil {
		return nil, internalError("lookup session admin", err)
	}
	if admin == nil {
		return nil, ErrSessionInvalid
	}
	if !admin.IsActive {
		return nil, ErrAccountInactive
	}
	if admin.IsLocked(now) {
		return nil, lockedError(admin.LockedUntil.Sub(now))
	}

	m.touch(session.ID, now)
	session.LastActivityAt = now

	return &VerifiedSession{Admin: admin, Session: session}, nil
}

// discard deletes a session found unusable during verification. Concurrent verifiers
// may both get here; the delete is idempotent and its failure does not change the
// outcome.
func (m *SessionManager) discard(ctx context.Context, session *models.AdminSession, reason string) {
	if err := m.sessions.DeleteSession(ctx, session.ID); err != nil {
		slog.Warn("failed to delete unusable session", "session_id", session.ID, "reason", reason, "error", err)
	}
}

func (m *SessionManager) touch(sessionID string, at time.Time) {
	m.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.touchTimeout)
		defer cancel()
		if err := m.sessions.TouchSession(ctx, sessionID, at); err != nil {
			slog.Warn("failed to refresh session activity", "session_id", sessionID, "error", err)
		}
	})
}

// Revoke deletes the session for token and returns it, or nil when it was already
// gone. Revoking twice is not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) (*models.AdminSession, error) {
	token = ExtractSessionToken(token)
	if token == "" {
		return nil, ErrSessionMissing
	}
	hash := HashToken(token)

	session, err := m.sessions.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		return nil, internalError("lookup session", err)
	}
	if err := m.sessions.DeleteSessionByTokenHash(ctx, hash); err != nil {
		return nil, internalError("delete session", err)
	}
	return session, nil
}

// RevokeAll deletes every session owned by adminID.
func (m *SessionManager) RevokeAll(ctx context.Context, adminID string) (int64, error) {
	n, err := m.sessions.DeleteSessionsByAdmin(ctx, adminID)
	if err != nil {
		return 0, internalError("delete admin sessions", err)
	}
	return n, nil
}

// RevokeSession deletes one usable session owned by adminID. It reports false when
// adminID has no such session, so one admin cannot probe another admin's session ids.
func (m *SessionManager) RevokeSession(ctx context.Context, adminID, sessionID string) (bool, error) {
	sessions, err := m.ListSessions(ctx, adminID)
	if err != nil {
		return false, err
	}
	for _, session := range sessions {
		if session.ID != sessionID {
			continue
		}
		if err := m.sessions.DeleteSession(ctx, sessionID); err != nil {
			return false, internalError("delete session", err)
		}
		return true, nil
	}
	return false, nil
}

// ListSessions returns the usable sessions of adminID, most recently active first.
func (m *SessionManager) ListSessions(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	now := m.clock.Now()
	sessions, err := m.sessions.ListSessionsByAdmin(ctx, adminID, now, now.Add(-m.idleTimeout))
	if err != nil {
		return nil, internalError("list sessions", err)
	}
	return sessions, nil
}

// PurgeExpired deletes every session past its absolute expiry or idle timeout.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	now := m.clock.Now()
	n, err := m.sessions.DeleteExpiredSessions(ctx, now, now.Add(-m.idleTimeout))
	if err != nil {
		return 0, internalError("purge sessions", err)
	}
	return n, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
