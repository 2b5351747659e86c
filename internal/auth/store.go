package auth

import (
	"context"
	"time"

	"github.com/stagehand/adminauth/internal/db/models"
)

// AdminStore is the admin persistence the core needs. Lookups return nil, nil when
// the admin does not exist.
type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetAdminByID(ctx context.Context, id string) (*models.Admin, error)
	// RecordLoginFailure must increment the counter and apply the lock in a single
	// atomic step and return the resulting values.
	RecordLoginFailure(ctx context.Context, adminID string, threshold int, lockUntil, now time.Time) (int, *time.Time, error)
	ResetLoginFailures(ctx context.Context, adminID string, now time.Time) error
	UpdateLastLogin(ctx context.Context, adminID, ip string, at time.Time) error
	CheckPermission(ctx context.Context, adminID string, resource models.Resource, action models.Action) (bool, error)
}

// SessionStore persists sessions keyed by token hash. Deletes are idempotent.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.AdminSession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteSessionsByAdmin(ctx context.Context, adminID string) (int64, error)
	ListSessionsByAdmin(ctx context.Context, adminID string, now, idleCutoff time.Time) ([]*models.AdminSession, error)
	DeleteExpiredSessions(ctx context.Context, now, idleCutoff time.Time) (int64, error)
}

// AuditRecorder accepts audit entries. Record must not block and has no error
// result: audit persistence never changes an auth decision.
type AuditRecorder interface {
	Record(entry *models.AdminAuditLog)
}

// SecretOpener decrypts TOTP secrets stored at rest.
type SecretOpener interface {
	Open(ciphertext string) (string, error)
}

type nopRecorder struct{}

func (nopRecorder) Record(*models.AdminAuditLog) {}

// RequestInfo is the request metadata attached to audit entries.
type RequestInfo struct {
	IP        string
	UserAgent string
	RequestID string
	SessionID string
}

type requestInfoKey struct{}

// WithRequestInfo returns a context carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the RequestInfo on ctx, or the zero value.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// newAuditEntry fills the request metadata common to every entry.
func newAuditEntry(actionType string, adminID string, info RequestInfo, success bool) *models.AdminAuditLog {
	entry := &models.AdminAuditLog{
		ActionType: actionType,
		Success:    success,
		Details:    map[string]interface{}{},
	}
	if adminID != "" {
		entry.AdminID = &adminID
	}
	if info.SessionID != "" {
		sid := info.SessionID
		entry.SessionID = &sid
	}
	if info.IP != "" {
		ip := info.IP
		entry.IPAddress = &ip
	}
	if info.UserAgent != "" {
		ua := info.UserAgent
		entry.UserAgent = &ua
	}
	if info.RequestID != "" {
		entry.Details["request_id"] = info.RequestID
	}
	return entry
}
