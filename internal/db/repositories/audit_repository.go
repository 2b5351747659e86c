// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving admin audit log entries with filtered, paginated listing.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stagehand/adminauth/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	AdminID      *string
	ActionType   *string
	ResourceType *string
	Success      *bool
	StartDate    *time.Time
	EndDate      *time.Time
}

const auditColumns = `id, admin_id, session_id, action_type, resource_type, resource_id,
	ip_address, user_agent, details, success, error_message, created_at`

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AdminAuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	detailsJSON := []byte("{}")
	if log.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(log.Details)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO admin_audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.AdminID,
		log.SessionID,
		log.ActionType,
		log.ResourceType,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		detailsJSON,
		log.Success,
		log.ErrorMessage,
		log.CreatedAt,
	)
	return err
}

func scanAuditLog(row interface{ Scan(...interface{}) error }) (*models.AdminAuditLog, error) {
	log := &models.AdminAuditLog{}
	var detailsJSON []byte

	err := row.Scan(
		&log.ID,
		&log.AdminID,
		&log.SessionID,
		&log.ActionType,
		&log.ResourceType,
		&log.ResourceID,
		&log.IPAddress,
		&log.UserAgent,
		&detailsJSON,
		&log.Success,
		&log.ErrorMessage,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if detailsJSON != nil {
		if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// ListAuditLogs retrieves audit logs with optional filters and pagination
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AdminAuditLog, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(clause, paramIndex)
		args = append(args, value)
		paramIndex++
	}

	if filters.AdminID != nil {
		add(` AND admin_id = $%d`, *filters.AdminID)
	}
	if filters.ActionType != nil {
		add(` AND action_type = $%d`, *filters.ActionType)
	}
	if filters.ResourceType != nil {
		add(` AND resource_type = $%d`, *filters.ResourceType)
	}
	if filters.Success != nil {
		add(` AND success = $%d`, *filters.Success)
	}
	if filters.StartDate != nil {
		add(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM admin_audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM admin_audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AdminAuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// GetAuditLog retrieves a single audit log entry by ID
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID string) (*models.AdminAuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM admin_audit_logs WHERE id = $1`

	log, err := scanAuditLog(r.db.QueryRowxContext(ctx, query, logID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}
