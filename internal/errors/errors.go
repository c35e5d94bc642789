// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMissingSignature      = errors.New("missing webhook signature")
	ErrInvalidPayload        = errors.New("invalid webhook payload")
	ErrCampaignNotStartable  = errors.New("campaign cannot be started in its current status")
	ErrCampaignNotRunning    = errors.New("campaign is not running")
	ErrCampaignNotFailed     = errors.New("campaign is not failed")
	ErrEnrollmentClosed      = errors.New("cannot add targets to a campaign past READY")
	ErrNoPendingTargets      = errors.New("no pending targets to call")
	ErrConcurrentUpdate      = errors.New("concurrent update detected")
	ErrProviderUnavailable   = errors.New("voice provider request failed")
	ErrProviderNotConfigured = errors.New("voice provider api key not configured")
	ErrCampaignLocked        = errors.New("campaign is locked by another operation")
	ErrUnknownResolveAction  = errors.New("unknown resolve action")
	ErrAssigneeRequired      = errors.New("assign_to is required for assign_human")
	ErrNotesRequired         = errors.New("notes are required for add_note")
	ErrInvalidPhone          = errors.New("invalid phone number")
	ErrLockNotAcquired       = errors.New("lock not acquired")
)

// ErrCampaignNotFound is returned when a campaign id has no row.
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrCallNotFound struct {
	CallID int64
}

func (e *ErrCallNotFound) Error() string {
	return fmt.Sprintf("call with ID %d not found", e.CallID)
}

func NewCallNotFound(id int64) error {
	return &ErrCallNotFound{CallID: id}
}

type ErrAppointmentNotFound struct {
	AppointmentID int64
}

func (e *ErrAppointmentNotFound) Error() string {
	return fmt.Sprintf("appointment with ID %d not found", e.AppointmentID)
}

func NewAppointmentNotFound(id int64) error {
	return &ErrAppointmentNotFound{AppointmentID: id}
}

// IsNotFound reports whether err is any of the typed not-found errors.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var call *ErrCallNotFound
	var a *ErrAppointmentNotFound
	return errors.As(err, &c) || errors.As(err, &call) || errors.As(err, &a)
}
