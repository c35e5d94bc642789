// internal/repository/audit_log_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

type AuditLogRepositoryInterface interface {
	Insert(ctx context.Context, a *model.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error)
}

// AuditLogRepository only ever inserts and reads.
type AuditLogRepository struct {
	DB *sql.DB
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *AuditLogRepository) Insert(ctx context.Context, a *model.AuditLog) error {
	a.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO audit_logs (org_id, action, entity_type, entity_id, before_json, after_json, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	return getDB(ctx, r.DB).QueryRowContext(ctx, query,
		a.OrgID, a.Action, a.EntityType, nullInt64(a.EntityID),
		rawOrNil(a.Before), rawOrNil(a.After), a.CorrelationID, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error) {
	query := `
		SELECT id, org_id, action, entity_type, entity_id, before_json, after_json, correlation_id, created_at
		FROM audit_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY id
	`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.AuditLog
	for rows.Next() {
		var (
			a             model.AuditLog
			id            sql.NullInt64
			before, after []byte
		)
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Action, &a.EntityType, &id, &before, &after, &a.CorrelationID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.EntityID = int64Ptr(id)
		a.Before = before
		a.After = after
		logs = append(logs, &a)
	}
	return logs, rows.Err()
}
