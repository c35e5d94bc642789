// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error)
	Transition(ctx context.Context, id int64, to model.CampaignStatus, from ...model.CampaignStatus) error
	MarkRunning(ctx context.Context, id int64, batchID string, from ...model.CampaignStatus) error
	Stats(ctx context.Context, id int64) (*model.CampaignStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, org_id, name, purpose, status,
	schedule_days, schedule_start_hour, schedule_end_hour, schedule_timezone,
	max_attempts, retry_delay_seconds, retry_on_no_answer, retry_on_busy, retry_on_voicemail,
	external_batch_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c         model.Campaign
		days      string
		delaySecs int64
		batchID   sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Purpose, &c.Status,
		&days, &c.Schedule.StartHour, &c.Schedule.EndHour, &c.Schedule.Timezone,
		&c.Retry.MaxAttempts, &delaySecs, &c.Retry.RetryOnNoAnswer, &c.Retry.RetryOnBusy, &c.Retry.RetryOnVoicemail,
		&batchID, &c.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Schedule.Days = model.ParseDays(days)
	c.Retry.RetryDelay = time.Duration(delaySecs) * time.Second
	c.ExternalBatchID = stringPtr(batchID)
	c.UpdatedAt = timePtr(updatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
		INSERT INTO campaigns (org_id, name, purpose, status,
			schedule_days, schedule_start_hour, schedule_end_hour, schedule_timezone,
			max_attempts, retry_delay_seconds, retry_on_no_answer, retry_on_busy, retry_on_voicemail,
			created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	return getDB(ctx, r.DB).QueryRowContext(ctx, query,
		c.OrgID, c.Name, c.Purpose, c.Status,
		c.Schedule.DaysString(), c.Schedule.StartHour, c.Schedule.EndHour, c.Schedule.Timezone,
		c.Retry.MaxAttempts, int64(c.Retry.RetryDelay/time.Second), c.Retry.RetryOnNoAnswer, c.Retry.RetryOnBusy, c.Retry.RetryOnVoicemail,
		c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(getDB(ctx, r.DB).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := getDB(ctx, r.DB).QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY id`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// statusGuard renders "status IN ($n, ...)" starting at placeholder n.
func statusGuard[S ~string](n int, from []S) (string, []any) {
	marks := make([]string, len(from))
	args := make([]any, len(from))
	for i, s := range from {
		marks[i] = fmt.Sprintf("$%d", n+i)
		args[i] = string(s)
	}
	return "status IN (" + strings.Join(marks, ", ") + ")", args
}

// Transition moves the campaign to `to` only if its current status is one
// of from. Losing that race yields ErrConcurrentUpdate.
func (r *CampaignRepository) Transition(ctx context.Context, id int64, to model.CampaignStatus, from ...model.CampaignStatus) error {
	guard, guardArgs := statusGuard(4, from)
	query := `UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3 AND ` + guard
	args := append([]any{to, time.Now().UTC(), id}, guardArgs...)
	return expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query, args...))
}

func (r *CampaignRepository) MarkRunning(ctx context.Context, id int64, batchID string, from ...model.CampaignStatus) error {
	guard, guardArgs := statusGuard(5, from)
	query := `UPDATE campaigns SET status = $1, external_batch_id = $2, updated_at = $3 WHERE id = $4 AND ` + guard
	args := append([]any{model.CampaignRunning, batchID, time.Now().UTC(), id}, guardArgs...)
	return expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query, args...))
}

func (r *CampaignRepository) Stats(ctx context.Context, id int64) (*model.CampaignStats, error) {
	query := `
		SELECT status, COUNT(*),
			SUM(CASE WHEN last_outcome = 'BOOKED' THEN 1 ELSE 0 END)
		FROM campaign_targets
		WHERE campaign_id = $1
		GROUP BY status
	`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &model.CampaignStats{}
	for rows.Next() {
		var (
			status model.TargetStatus
			count  int
			booked int
		)
		if err := rows.Scan(&status, &count, &booked); err != nil {
			return nil, err
		}
		switch status {
		case model.TargetPending:
			stats.Pending = count
		case model.TargetInProgress:
			stats.InProgress = count
		case model.TargetDone:
			stats.Done = count
		case model.TargetFailed:
			stats.Failed = count
		case model.TargetOptedOut:
			stats.OptedOut = count
		}
		stats.Total += count
		stats.Booked += booked
	}
	return stats, rows.Err()
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrConcurrentUpdate
	}
	return nil
}
