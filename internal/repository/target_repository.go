// internal/repository/target_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

type TargetRepositoryInterface interface {
	Insert(ctx context.Context, t *model.CampaignTarget) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.CampaignTarget, error)
	ListByCampaign(ctx context.Context, campaignID int64, status string, offset, limit int) ([]*model.CampaignTarget, int, error)
	ListDueContacts(ctx context.Context, campaignID int64, now time.Time, limit int) ([]*model.TargetContact, error)
	MarkInProgress(ctx context.Context, t *model.CampaignTarget) error
	MarkOptedOut(ctx context.Context, id int64, reason string) error
	ApplyUpdate(ctx context.Context, t *model.CampaignTarget, u model.TargetUpdate) error
	CountNonTerminal(ctx context.Context, campaignID int64) (int, error)
}

type TargetRepository struct {
	DB *sql.DB
}

const targetColumns = `id, campaign_id, customer_id, vehicle_id, status, attempts_count,
	last_attempt_at, next_attempt_at, last_outcome, last_error, created_at, updated_at`

func scanTarget(row rowScanner) (*model.CampaignTarget, error) {
	var (
		t           model.CampaignTarget
		vehicleID   sql.NullInt64
		lastAttempt sql.NullTime
		nextAttempt sql.NullTime
		lastOutcome sql.NullString
		lastError   sql.NullString
		updatedAt   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.CampaignID, &t.CustomerID, &vehicleID, &t.Status, &t.AttemptsCount,
		&lastAttempt, &nextAttempt, &lastOutcome, &lastError, &t.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.VehicleID = int64Ptr(vehicleID)
	t.LastAttemptAt = timePtr(lastAttempt)
	t.NextAttemptAt = timePtr(nextAttempt)
	if lastOutcome.Valid {
		o := model.Outcome(lastOutcome.String)
		t.LastOutcome = &o
	}
	t.LastError = stringPtr(lastError)
	t.UpdatedAt = timePtr(updatedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// Insert creates a PENDING target. It reports false, without error, when
// the customer is already enrolled in the campaign.
func (r *TargetRepository) Insert(ctx context.Context, t *model.CampaignTarget) (bool, error) {
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = model.TargetPending
	}
	query := `
		INSERT INTO campaign_targets (campaign_id, customer_id, vehicle_id, status, attempts_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (campaign_id, customer_id) DO NOTHING
		RETURNING id
	`
	err := getDB(ctx, r.DB).QueryRowContext(ctx, query,
		t.CampaignID, t.CustomerID, nullInt64(t.VehicleID), t.Status, t.CreatedAt,
	).Scan(&t.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *TargetRepository) GetByID(ctx context.Context, id int64) (*model.CampaignTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM campaign_targets WHERE id = $1`
	t, err := scanTarget(getDB(ctx, r.DB).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TargetRepository) ListByCampaign(ctx context.Context, campaignID int64, status string, offset, limit int) ([]*model.CampaignTarget, int, error) {
	where := ` WHERE campaign_id = $1`
	args := []any{campaignID}
	argPos := 2
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := getDB(ctx, r.DB).QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_targets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + targetColumns + ` FROM campaign_targets` + where +
		fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	targets := []*model.CampaignTarget{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, 0, err
		}
		targets = append(targets, t)
	}
	return targets, total, rows.Err()
}

// ListDueContacts returns PENDING targets whose next attempt is due,
// joined with their customer and vehicle.
func (r *TargetRepository) ListDueContacts(ctx context.Context, campaignID int64, now time.Time, limit int) ([]*model.TargetContact, error) {
	query := `
		SELECT t.id, t.campaign_id, t.customer_id, t.vehicle_id, t.status, t.attempts_count,
			t.last_attempt_at, t.next_attempt_at, t.last_outcome, t.last_error, t.created_at, t.updated_at,
			c.id, c.org_id, c.full_name, c.phone_e164,
			v.id, v.make, v.model, v.plate_number
		FROM campaign_targets t
		JOIN customers c ON c.id = t.customer_id
		LEFT JOIN vehicles v ON v.id = t.vehicle_id
		WHERE t.campaign_id = $1
			AND t.status = 'PENDING'
			AND (t.next_attempt_at IS NULL OR t.next_attempt_at <= $2)
		ORDER BY t.id
		LIMIT $3
	`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, campaignID, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*model.TargetContact
	for rows.Next() {
		var (
			tc          model.TargetContact
			vehicleID   sql.NullInt64
			lastAttempt sql.NullTime
			nextAttempt sql.NullTime
			lastOutcome sql.NullString
			lastError   sql.NullString
			updatedAt   sql.NullTime
			vID         sql.NullInt64
			vMake       sql.NullString
			vModel      sql.NullString
			vPlate      sql.NullString
		)
		t := &tc.Target
		err := rows.Scan(&t.ID, &t.CampaignID, &t.CustomerID, &vehicleID, &t.Status, &t.AttemptsCount,
			&lastAttempt, &nextAttempt, &lastOutcome, &lastError, &t.CreatedAt, &updatedAt,
			&tc.Customer.ID, &tc.Customer.OrgID, &tc.Customer.FullName, &tc.Customer.PhoneE164,
			&vID, &vMake, &vModel, &vPlate)
		if err != nil {
			return nil, err
		}
		t.VehicleID = int64Ptr(vehicleID)
		t.LastAttemptAt = timePtr(lastAttempt)
		t.NextAttemptAt = timePtr(nextAttempt)
		if lastOutcome.Valid {
			o := model.Outcome(lastOutcome.String)
			t.LastOutcome = &o
		}
		t.LastError = stringPtr(lastError)
		t.UpdatedAt = timePtr(updatedAt)
		if vID.Valid {
			tc.Vehicle = &model.Vehicle{
				ID:          vID.Int64,
				OrgID:       tc.Customer.OrgID,
				CustomerID:  tc.Customer.ID,
				Make:        vMake.String,
				Model:       vModel.String,
				PlateNumber: stringPtr(vPlate),
			}
		}
		contacts = append(contacts, &tc)
	}
	return contacts, rows.Err()
}

// MarkInProgress claims a PENDING target for dispatch. It fails with
// ErrConcurrentUpdate when the row no longer has the attempt count t was
// read with, e.g. a webhook for it was reconciled in the meantime.
func (r *TargetRepository) MarkInProgress(ctx context.Context, t *model.CampaignTarget) error {
	query := `
		UPDATE campaign_targets SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND attempts_count = $5
	`
	err := expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query,
		model.TargetInProgress, time.Now().UTC(), t.ID, model.TargetPending, t.AttemptsCount))
	if err != nil {
		return err
	}
	t.Status = model.TargetInProgress
	return nil
}

func (r *TargetRepository) MarkOptedOut(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE campaign_targets SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query,
		model.TargetOptedOut, reason, time.Now().UTC(), id, model.TargetPending))
}

// ApplyUpdate writes u only if the row still has the status and attempt
// count t was read with.
func (r *TargetRepository) ApplyUpdate(ctx context.Context, t *model.CampaignTarget, u model.TargetUpdate) error {
	query := `
		UPDATE campaign_targets
		SET status = $1, attempts_count = $2, last_attempt_at = $3, next_attempt_at = $4,
			last_outcome = $5, updated_at = $6
		WHERE id = $7 AND status = $8 AND attempts_count = $9
	`
	err := expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query,
		u.Status, u.AttemptsCount, u.LastAttemptAt.UTC(), nullTime(u.NextAttemptAt),
		u.LastOutcome, time.Now().UTC(),
		t.ID, t.Status, t.AttemptsCount,
	))
	if err != nil {
		return err
	}
	t.Status = u.Status
	t.AttemptsCount = u.AttemptsCount
	last := u.LastAttemptAt
	t.LastAttemptAt = &last
	t.NextAttemptAt = u.NextAttemptAt
	o := u.LastOutcome
	t.LastOutcome = &o
	return nil
}

func (r *TargetRepository) CountNonTerminal(ctx context.Context, campaignID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM campaign_targets
		WHERE campaign_id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`
	var n int
	err := getDB(ctx, r.DB).QueryRowContext(ctx, query, campaignID).Scan(&n)
	return n, err
}
