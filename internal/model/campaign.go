// internal/model/campaign.go
package model

import (
	"strings"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignReady     CampaignStatus = "READY"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignFailed    CampaignStatus = "FAILED"
)

// CanStart reports whether a provider batch may be requested from this status.
func (s CampaignStatus) CanStart() bool {
	return s == CampaignReady || s == CampaignPaused
}

// AcceptsTargets reports whether enrollment is open.
func (s CampaignStatus) AcceptsTargets() bool {
	return s == CampaignDraft || s == CampaignReady
}

type Campaign struct {
	ID              int64          `db:"id" json:"id"`
	OrgID           int64          `db:"org_id" json:"org_id"`
	Name            string         `db:"name" json:"name"`
	Purpose         string         `db:"purpose" json:"purpose"`
	Status          CampaignStatus `db:"status" json:"status"`
	Schedule        ScheduleWindow `json:"schedule_window"`
	Retry           RetryPolicy    `json:"retry_policy"`
	ExternalBatchID *string        `db:"external_batch_id" json:"external_batch_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// RetryPolicy controls how many times a target is dialled and which
// outcomes are worth another attempt.
type RetryPolicy struct {
	MaxAttempts      int           `db:"max_attempts" json:"max_attempts"`
	RetryDelay       time.Duration `db:"retry_delay_seconds" json:"retry_delay"`
	RetryOnNoAnswer  bool          `db:"retry_on_no_answer" json:"retry_on_no_answer"`
	RetryOnBusy      bool          `db:"retry_on_busy" json:"retry_on_busy"`
	RetryOnVoicemail bool          `db:"retry_on_voicemail" json:"retry_on_voicemail"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RetryDelay:       4 * time.Hour,
		RetryOnNoAnswer:  true,
		RetryOnBusy:      true,
		RetryOnVoicemail: false,
	}
}

// Retries reports whether an outcome leaves the target eligible for another call.
func (p RetryPolicy) Retries(o Outcome) bool {
	switch o {
	case OutcomeNoAnswer:
		return p.RetryOnNoAnswer
	case OutcomeBusy:
		return p.RetryOnBusy
	case OutcomeVoicemail:
		return p.RetryOnVoicemail
	case OutcomeWrongNumber, OutcomeBooked, OutcomeOptOut:
		return false
	default:
		return true
	}
}

// ScheduleWindow is the set of weekdays and local hours during which
// a campaign may dial.
type ScheduleWindow struct {
	Days      []string `json:"days"`
	StartHour int      `json:"start_hour"`
	EndHour   int      `json:"end_hour"`
	Timezone  string   `json:"timezone"`
}

func DefaultScheduleWindow() ScheduleWindow {
	return ScheduleWindow{
		Days:      []string{"MON", "TUE", "WED", "THU", "FRI"},
		StartHour: 9,
		EndHour:   17,
		Timezone:  "America/New_York",
	}
}

// Location resolves the window's timezone, falling back to UTC.
func (w ScheduleWindow) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (w ScheduleWindow) allowsDay(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	code := strings.ToUpper(d.String()[:3])
	for _, day := range w.Days {
		if strings.EqualFold(strings.TrimSpace(day), code) {
			return true
		}
	}
	return false
}

// IsOpen reports whether t falls inside the window.
func (w ScheduleWindow) IsOpen(t time.Time) bool {
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	local := t.In(w.Location())
	if !w.allowsDay(local.Weekday()) {
		return false
	}
	h := local.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// NextOpen returns t if the window is open at t, otherwise the start of
// the next open slot. A window that never opens returns t unchanged.
func (w ScheduleWindow) NextOpen(t time.Time) time.Time {
	if w.IsOpen(t) {
		return t
	}
	loc := w.Location()
	local := t.In(loc)
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		start := time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, loc)
		if start.Before(local) || !w.allowsDay(start.Weekday()) {
			continue
		}
		return start
	}
	return t
}

// DaysString is the column encoding of Days.
func (w ScheduleWindow) DaysString() string {
	return strings.Join(w.Days, ",")
}

func ParseDays(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	days := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			days = append(days, strings.ToUpper(p))
		}
	}
	return days
}

// CampaignStats counts targets by status for the details endpoint.
type CampaignStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	OptedOut   int `json:"opted_out"`
	Booked     int `json:"booked"`
}
