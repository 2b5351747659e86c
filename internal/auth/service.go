package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// Options configures a Service. Zero values select the package defaults, except
// TOTPWindowSteps where 0 accepts only the current step.
type Options struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	SessionTTL       time.Duration
	IdleTimeout      time.Duration
	TouchTimeout     time.Duration
	TOTPWindowSteps  int
	BcryptCost       int
	Clock            clock.Clock
	// Secrets decrypts stored TOTP secrets. Nil means they are stored in plaintext.
	Secrets SecretOpener
	Async   func(func())
}

// LoginRequest carries one login attempt.
type LoginRequest struct {
	Email     string
	Password  string
	TOTPCode  string
	IP        string
	UserAgent string
	RequestID string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token       string
	SessionID   string
	ExpiresAt   time.Time
	Admin       *models.Admin
	Permissions models.Permissions
}

// Service is the admin authentication entry point used by the HTTP layer.
type Service struct {
	admins      AdminStore
	audit       AuditRecorder
	clock       clock.Clock
	passwords   *PasswordHasher
	credentials *CredentialVerifier
	sessions    *SessionManager
	permissions *PermissionEvaluator
}

// NewService wires the auth components over the given stores. audit may be nil.
func NewService(admins AdminStore, sessions SessionStore, audit AuditRecorder, opts Options) *Service {
	if audit == nil {
		audit = nopRecorder{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	passwords := NewPasswordHasher(opts.BcryptCost)
	lockout := NewLockoutPolicy(admins, opts.LockoutThreshold, opts.LockoutDuration, clk)

	return &Service{
		admins:      admins,
		audit:       audit,
		clock:       clk,
		passwords:   passwords,
		credentials: NewCredentialVerifier(admins, lockout, passwords, NewTOTPValidator(clk), opts.TOTPWindowSteps, opts.Secrets, clk),
		sessions: NewSessionManager(sessions, admins, SessionConfig{
			TTL:          opts.SessionTTL,
			IdleTimeout:  opts.IdleTimeout,
			TouchTimeout: opts.TouchTimeout,
			Clock:        clk,
			Async:        opts.Async,
		}),
		permissions: NewPermissionEvaluator(admins, audit),
	}
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Permissions returns the permission evaluator.
func (s *Service) Permissions() *PermissionEvaluator { return s.permissions }

// Login verifies credentials and issues a session. Every attempt produces exactly one
// login audit entry.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	info := RequestInfo{IP: req.IP, UserAgent: req.UserAgent, RequestID: req.RequestID}

	admin, err := s.credentials.Verify(ctx, req.Email, req.Password, req.TOTPCode)
	if err != nil {
		s.loginFailed(admin, req.Email, info, err)
		return nil, err
	}

	issued, err := s.sessions.Issue(ctx, admin.ID, req.IP, req.UserAgent)
	if err != nil {
		s.loginFailed(admin, req.Email, info, err)
		return nil, err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, req.IP, s.clock.Now()); err != nil {
		slog.Warn("failed to record last login", "admin_id", admin.ID, "error", err)
	}

	telemetry.AdminLoginAttemptsTotal.WithLabelValues("success").Inc()
	info.SessionID = issued.SessionID
	entry := newAuditEntry(models.AuditLoginSuccess, admin.ID, info, true)
	entry.Details["role"] = admin.RoleName()
	s.audit.Record(entry)

	return &LoginResult{
		Token:       issued.Token,
		SessionID:   issued.SessionID,
		ExpiresAt:   issued.ExpiresAt,
		Admin:       admin,
		Permissions: EffectivePermissions(admin),
	}, nil
}

func (s *Service) loginFailed(admin *models.Admin, email string, info RequestInfo, err error) {
	kind := KindOf(err)
	telemetry.AdminLoginAttemptsTotal.WithLabelValues(string(kind)).Inc()
	if kind == KindInternal {
		slog.Error("admin login failed", "error", err)
	}

	adminID := ""
	if admin != nil {
		adminID = admin.ID
	}
	entry := newAuditEntry(models.AuditLoginFailure, adminID, info, false)
	entry.Details["email"] = email
	msg := string(kind)
	entry.ErrorMessage = &msg
	s.audit.Record(entry)
}

// Verify resolves a session token.
func (s *Service) Verify(ctx context.Context, token string) (*VerifiedSession, error) {
	vs, err := s.sessions.Verify(ctx, token)
	if err != nil && KindOf(err) == KindInternal {
		slog.Error("session verification failed", "error", err)
	}
	return vs, err
}

// Logout revokes the session for token. An unknown or already revoked token is not an
// error; only a missing token or a store failure is. Every call that reaches the store
// is audited, unknown tokens as an unsuccessful logout without an admin.
func (s *Service) Logout(ctx context.Context, token string, info RequestInfo) error {
	session, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		if KindOf(err) == KindInternal {
			slog.Error("admin logout failed", "error", err)
		}
		return err
	}
	if session == nil {
		entry := newAuditEntry(models.AuditLogout, "", info, false)
		reason := logoutSessionNotFound
		entry.ErrorMessage = &reason
		entry.Details["reason"] = reason
		s.audit.Record(entry)
		return nil
	}
	info.SessionID = session.ID
	s.audit.Record(newAuditEntry(models.AuditLogout, session.AdminID, info, true))
	return nil
}

const logoutSessionNotFound = "session_not_found"

// LogoutAll revokes every session of the verified admin, including the current one.
func (s *Service) LogoutAll(ctx context.Context, vs *VerifiedSession, info RequestInfo) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, vs.Admin.ID)
	if err != nil {
		slog.Error("admin logout-all failed", "admin_id", vs.Admin.ID, "error", err)
		return 0, err
	}
	info.SessionID = vs.Session.ID
	entry := newAuditEntry(models.AuditLogoutAll, vs.Admin.ID, info, true)
	entry.Details["revoked"] = n
	s.audit.Record(entry)
	return n, nil
}

// RevokeSession ends one of the verified admin's own sessions. Ending the current
// session this way is allowed and equivalent to Logout. Each call records exactly one
// logout entry; an id that is unknown or owned by another admin is recorded as a
// failure.
func (s *Service) RevokeSession(ctx context.Context, vs *VerifiedSession, sessionID string, info RequestInfo) (bool, error) {
	found, err := s.sessions.RevokeSession(ctx, vs.Admin.ID, sessionID)
	if err != nil {
		slog.Error("admin session revoke failed", "admin_id", vs.Admin.ID, "error", err)
		return false, err
	}
	info.SessionID = vs.Session.ID
	entry := newAuditEntry(models.AuditLogout, vs.Admin.ID, info, found)
	entry.Details["revoked_session_id"] = sessionID
	if !found {
		reason := logoutSessionNotFound
		entry.ErrorMessage = &reason
	}
	s.audit.Record(entry)
	return found, nil
}

// ListSessions returns the usable sessions of adminID.
func (s *Service) ListSessions(ctx context.Context, adminID string) ([]*models.AdminSession, error) {
	return s.sessions.ListSessions(ctx, adminID)
}
