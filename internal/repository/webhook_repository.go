// internal/repository/webhook_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"
)

// WebhookRepositoryInterface is the dedup index of processed webhook ids.
type WebhookRepositoryInterface interface {
	IsProcessed(ctx context.Context, webhookID string) (bool, error)
	MarkProcessed(ctx context.Context, webhookID string, at time.Time) (bool, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

type WebhookRepository struct {
	DB *sql.DB
}

func (r *WebhookRepository) IsProcessed(ctx context.Context, webhookID string) (bool, error) {
	var n int
	err := getDB(ctx, r.DB).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_webhooks WHERE webhook_id = $1`, webhookID,
	).Scan(&n)
	return n > 0, err
}

// MarkProcessed records webhookID. It reports false when the id was
// already present, which inside a transaction means another delivery won.
func (r *WebhookRepository) MarkProcessed(ctx context.Context, webhookID string, at time.Time) (bool, error) {
	res, err := getDB(ctx, r.DB).ExecContext(ctx, `
		INSERT INTO processed_webhooks (webhook_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (webhook_id) DO NOTHING
	`, webhookID, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Prune keeps the newest keep entries and deletes the rest.
func (r *WebhookRepository) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := getDB(ctx, r.DB).ExecContext(ctx, `
		DELETE FROM processed_webhooks
		WHERE webhook_id NOT IN (
			SELECT webhook_id FROM processed_webhooks
			ORDER BY processed_at DESC, webhook_id DESC
			LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
