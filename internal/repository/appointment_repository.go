// internal/repository/appointment_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

type AppointmentRepositoryInterface interface {
	Insert(ctx context.Context, a *model.Appointment) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	GetByCallID(ctx context.Context, callID int64) (*model.Appointment, error)
}

type AppointmentRepository struct {
	DB *sql.DB
}

const appointmentColumns = `id, org_id, customer_id, vehicle_id, campaign_id, call_id, type,
	scheduled_start, scheduled_end, status, source, notes, created_at`

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var (
		a          model.Appointment
		vehicleID  sql.NullInt64
		campaignID sql.NullInt64
		callID     sql.NullInt64
		end        sql.NullTime
		notes      sql.NullString
	)
	err := row.Scan(&a.ID, &a.OrgID, &a.CustomerID, &vehicleID, &campaignID, &callID, &a.Type,
		&a.ScheduledStart, &end, &a.Status, &a.Source, &notes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.VehicleID = int64Ptr(vehicleID)
	a.CampaignID = int64Ptr(campaignID)
	a.CallID = int64Ptr(callID)
	a.ScheduledEnd = timePtr(end)
	a.Notes = stringPtr(notes)
	a.ScheduledStart = a.ScheduledStart.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// Insert creates the appointment for a call at most once.
func (r *AppointmentRepository) Insert(ctx context.Context, a *model.Appointment) (bool, error) {
	a.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO appointments (org_id, customer_id, vehicle_id, campaign_id, call_id, type,
			scheduled_start, scheduled_end, status, source, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (call_id) DO NOTHING
		RETURNING id
	`
	err := getDB(ctx, r.DB).QueryRowContext(ctx, query,
		a.OrgID, a.CustomerID, nullInt64(a.VehicleID), nullInt64(a.CampaignID), nullInt64(a.CallID), a.Type,
		a.ScheduledStart.UTC(), nullTime(a.ScheduledEnd), a.Status, a.Source, nullString(a.Notes), a.CreatedAt,
	).Scan(&a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(getDB(ctx, r.DB).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewAppointmentNotFound(id)
	}
	return a, err
}

func (r *AppointmentRepository) GetByCallID(ctx context.Context, callID int64) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE call_id = $1`
	a, err := scanAppointment(getDB(ctx, r.DB).QueryRowContext(ctx, query, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}
