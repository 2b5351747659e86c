// session_repository.go implements SessionRepository. Sessions are keyed by the SHA-256
// hash of their token; the raw token never reaches the database.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
)

// SessionRepository handles admin session database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, admin_id, session_token_hash, ip_address, user_agent, expires_at, last_activity_at, created_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.AdminSession, error) {
	var s models.AdminSession
	err := row.Scan(&s.ID, &s.AdminID, &s.SessionTokenHash, &s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.LastActivityAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a session inside a transaction. The ID is assigned here when empty.
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.AdminSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.LastActivityAt
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO admin_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, query,
		session.ID,
		session.AdminID,
		session.SessionTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
		session.LastActivityAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash looks up a session by token hash. Returns nil, nil when absent.
func (r *SessionRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM admin_sessions WHERE session_token_hash = $1`

	s, err := scanSession(r.db.QueryRowxContext(ctx, query, tokenHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TouchSession moves last_activity_at forward. It never touches expires_at and never
// moves the activity clock backwards.
func (r *SessionRepository) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE admin_sessions SET last_activity_at = $2 WHERE id = $1 AND last_activity_at < $2`
	_, err := r.db.ExecContext(ctx, query, sessionID, at)
	return err
}

// DeleteSession deletes a session by ID. Deleting a missing session is not an error.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = $1`, sessionID)
	return err
}

// DeleteSessionByTokenHash deletes a session by token hash. Deleting a missing session
// is not an error.
func (r *SessionRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE session_token_hash = $1`, tokenHash)
	return err
}

// DeleteSessionsByAdmin deletes every session owned by adminID and returns the count
func (r *SessionRepository) DeleteSessionsByAdmin(ctx context.Context, adminID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE admin_id = $1`, adminID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListSessionsByAdmin returns the admin's sessions that are still within both expiry windows
func (r *SessionRepository) ListSessionsByAdmin(ctx context.Context, adminID string, now, idleCutoff time.Time) ([]*models.AdminSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM admin_sessions
		WHERE admin_id = $1 AND expires_at >= $2 AND last_activity_at >= $3
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.QueryxContext(ctx, query, adminID, now, idleCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*models.AdminSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteExpiredSessions removes sessions past absolute expiry or idle since idleCutoff
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now, idleCutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at < $1 OR last_activity_at < $2`,
		now, idleCutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
