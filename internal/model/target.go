// internal/model/target.go
package model

import "time"

type TargetStatus string

const (
	TargetPending    TargetStatus = "PENDING"
	TargetInProgress TargetStatus = "IN_PROGRESS"
	TargetDone       TargetStatus = "DONE"
	TargetFailed     TargetStatus = "FAILED"
	TargetOptedOut   TargetStatus = "OPTED_OUT"
)

// IsTerminal reports whether the status can never change again.
func (s TargetStatus) IsTerminal() bool {
	return s == TargetDone || s == TargetFailed || s == TargetOptedOut
}

type CampaignTarget struct {
	ID            int64        `db:"id" json:"id"`
	CampaignID    int64        `db:"campaign_id" json:"campaign_id"`
	CustomerID    int64        `db:"customer_id" json:"customer_id"`
	VehicleID     *int64       `db:"vehicle_id" json:"vehicle_id,omitempty"`
	Status        TargetStatus `db:"status" json:"status"`
	AttemptsCount int          `db:"attempts_count" json:"attempts_count"`
	LastAttemptAt *time.Time   `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time   `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastOutcome   *Outcome     `db:"last_outcome" json:"last_outcome,omitempty"`
	LastError     *string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time   `db:"updated_at" json:"updated_at,omitempty"`
}

// TargetUpdate is the state a target moves to after one call outcome.
type TargetUpdate struct {
	Status        TargetStatus
	AttemptsCount int
	LastAttemptAt time.Time
	NextAttemptAt *time.Time
	LastOutcome   Outcome
}

// ApplyOutcome folds a call outcome into the target and returns the new
// state. ok is false for a target that is already terminal; such targets
// are never re-opened and their attempt counter does not move.
func (t *CampaignTarget) ApplyOutcome(o Outcome, c *Campaign, now time.Time) (TargetUpdate, bool) {
	if t.Status.IsTerminal() {
		return TargetUpdate{}, false
	}

	policy := DefaultRetryPolicy()
	schedule := ScheduleWindow{}
	if c != nil {
		policy = c.Retry
		schedule = c.Schedule
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	u := TargetUpdate{
		AttemptsCount: t.AttemptsCount + 1,
		LastAttemptAt: now,
		LastOutcome:   o,
	}

	switch {
	case o == OutcomeBooked:
		u.Status = TargetDone
	case o == OutcomeOptOut:
		u.Status = TargetOptedOut
	case !policy.Retries(o):
		u.Status = TargetFailed
	case u.AttemptsCount >= maxAttempts:
		u.Status = TargetFailed
	default:
		u.Status = TargetPending
		next := schedule.NextOpen(now.Add(policy.RetryDelay))
		u.NextAttemptAt = &next
	}
	return u, true
}

// TargetInput is one row of an enrollment upload.
type TargetInput struct {
	Phone        string `json:"phone" validate:"required"`
	FullName     string `json:"full_name"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	VehicleMake  string `json:"vehicle_make,omitempty"`
	VehicleModel string `json:"vehicle_model,omitempty"`
	VehicleYear  int    `json:"vehicle_year,omitempty"`
	PlateNumber  string `json:"plate_number,omitempty"`
}

// EnrollmentRejection explains why one upload row produced no target.
type EnrollmentRejection struct {
	Row    int    `json:"row"`
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

const (
	RejectDNC       = "DNC"
	RejectDuplicate = "duplicate"
	RejectInvalid   = "invalid_phone"
)

type EnrollmentResult struct {
	Created          int                   `json:"created"`
	SkippedDNC       int                   `json:"skipped_dnc"`
	SkippedDuplicate int                   `json:"skipped_duplicate"`
	Rejected         []EnrollmentRejection `json:"rejected"`
	Errors           []string              `json:"errors"`
}

// TargetContact joins a target with who and what is being called about.
type TargetContact struct {
	Target   CampaignTarget
	Customer Customer
	Vehicle  *Vehicle
}
