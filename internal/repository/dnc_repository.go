// internal/repository/dnc_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

type DncRepositoryInterface interface {
	Insert(ctx context.Context, e *model.DncEntry) (bool, error)
	IsBlocked(ctx context.Context, orgID int64, phone string, now time.Time) (bool, error)
	ListByOrg(ctx context.Context, orgID int64, offset, limit int) ([]*model.DncEntry, int, error)
	ListActive(ctx context.Context, now time.Time) ([]*model.DncEntry, error)
}

type DncRepository struct {
	DB *sql.DB
}

const dncColumns = `id, org_id, phone_e164, reason, source, expires_at, created_at`

func scanDnc(row rowScanner) (*model.DncEntry, error) {
	var (
		e       model.DncEntry
		expires sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.OrgID, &e.PhoneE164, &e.Reason, &e.Source, &expires, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ExpiresAt = timePtr(expires)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// Insert adds e unless an active entry for the same org and phone exists.
// An expired entry is refreshed in place. It reports whether a row was
// written.
func (r *DncRepository) Insert(ctx context.Context, e *model.DncEntry) (bool, error) {
	e.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO dnc_entries (org_id, phone_e164, reason, source, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id, phone_e164) DO UPDATE
			SET reason = excluded.reason, source = excluded.source,
				expires_at = excluded.expires_at, created_at = excluded.created_at
			WHERE dnc_entries.expires_at IS NOT NULL AND dnc_entries.expires_at <= $7
		RETURNING id
	`
	err := getDB(ctx, r.DB).QueryRowContext(ctx, query,
		e.OrgID, e.PhoneE164, e.Reason, e.Source, nullTime(e.ExpiresAt), e.CreatedAt, e.CreatedAt,
	).Scan(&e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *DncRepository) IsBlocked(ctx context.Context, orgID int64, phone string, now time.Time) (bool, error) {
	query := `
		SELECT COUNT(*) FROM dnc_entries
		WHERE org_id = $1 AND phone_e164 = $2 AND (expires_at IS NULL OR expires_at > $3)
	`
	var n int
	if err := getDB(ctx, r.DB).QueryRowContext(ctx, query, orgID, phone, now.UTC()).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DncRepository) ListByOrg(ctx context.Context, orgID int64, offset, limit int) ([]*model.DncEntry, int, error) {
	var total int
	if err := getDB(ctx, r.DB).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dnc_entries WHERE org_id = $1`, orgID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + dncColumns + ` FROM dnc_entries WHERE org_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []*model.DncEntry{}
	for rows.Next() {
		e, err := scanDnc(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *DncRepository) ListActive(ctx context.Context, now time.Time) ([]*model.DncEntry, error) {
	query := `SELECT ` + dncColumns + ` FROM dnc_entries WHERE expires_at IS NULL OR expires_at > $1 ORDER BY org_id, phone_e164`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.DncEntry{}
	for rows.Next() {
		e, err := scanDnc(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
