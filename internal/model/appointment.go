// internal/model/appointment.go
package model

import "time"

type AppointmentType string

const (
	AppointmentPickup  AppointmentType = "PICKUP"
	AppointmentService AppointmentType = "SERVICE"
)

type AppointmentStatus string

const (
	AppointmentBooked      AppointmentStatus = "BOOKED"
	AppointmentRescheduled AppointmentStatus = "RESCHEDULED"
	AppointmentCanceled    AppointmentStatus = "CANCELED"
	AppointmentCompleted   AppointmentStatus = "COMPLETED"
)

type AppointmentSource string

const (
	AppointmentSourceAI    AppointmentSource = "AI"
	AppointmentSourceHuman AppointmentSource = "HUMAN"
)

type Appointment struct {
	ID             int64             `db:"id" json:"id"`
	OrgID          int64             `db:"org_id" json:"org_id"`
	CustomerID     int64             `db:"customer_id" json:"customer_id"`
	VehicleID      *int64            `db:"vehicle_id" json:"vehicle_id,omitempty"`
	CampaignID     *int64            `db:"campaign_id" json:"campaign_id,omitempty"`
	CallID         *int64            `db:"call_id" json:"call_id,omitempty"`
	Type           AppointmentType   `db:"type" json:"type"`
	ScheduledStart time.Time         `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd   *time.Time        `db:"scheduled_end" json:"scheduled_end,omitempty"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Source         AppointmentSource `db:"source" json:"source"`
	Notes          *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}
