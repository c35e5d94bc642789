// internal/model/call.go
package model

import "time"

type CallStatus string

const (
	CallQueued     CallStatus = "QUEUED"
	CallInProgress CallStatus = "IN_PROGRESS"
	CallCompleted  CallStatus = "COMPLETED"
	CallFailed     CallStatus = "FAILED"
)

type Outcome string

const (
	OutcomeBooked            Outcome = "BOOKED"
	OutcomeNoAnswer          Outcome = "NO_ANSWER"
	OutcomeVoicemail         Outcome = "VOICEMAIL"
	OutcomeBusy              Outcome = "BUSY"
	OutcomeWrongNumber       Outcome = "WRONG_NUMBER"
	OutcomeOptOut            Outcome = "OPT_OUT"
	OutcomeCallbackRequested Outcome = "CALLBACK_REQUESTED"
	OutcomeRescheduled       Outcome = "RESCHEDULED"
	OutcomeOther             Outcome = "OTHER"
)

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POS"
	SentimentNeutral  SentimentLabel = "NEU"
	SentimentNegative SentimentLabel = "NEG"
)

// ParseSentimentLabel maps a provider label to ours; unknown labels give "".
func ParseSentimentLabel(s string) SentimentLabel {
	switch s {
	case "positive", "pos", "POS":
		return SentimentPositive
	case "neutral", "neu", "NEU":
		return SentimentNeutral
	case "negative", "neg", "NEG":
		return SentimentNegative
	}
	return ""
}

// ExtractedFields are the structured values pulled from a conversation.
type ExtractedFields struct {
	PickupDate   string `json:"pickup_date,omitempty"`
	PickupTime   string `json:"pickup_time,omitempty"`
	CallbackTime string `json:"callback_time,omitempty"`
	Confirmed    *bool  `json:"confirmed,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Enrichment is written by the summarizer after reconciliation.
type Enrichment struct {
	KeyPoints   []string `json:"key_points,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
}

type Call struct {
	ID                     int64           `db:"id" json:"id"`
	OrgID                  int64           `db:"org_id" json:"org_id"`
	CampaignID             *int64          `db:"campaign_id" json:"campaign_id,omitempty"`
	TargetID               *int64          `db:"target_id" json:"target_id,omitempty"`
	CustomerID             int64           `db:"customer_id" json:"customer_id"`
	VehicleID              *int64          `db:"vehicle_id" json:"vehicle_id,omitempty"`
	ExternalConversationID *string         `db:"external_conversation_id" json:"external_conversation_id,omitempty"`
	ExternalCallID         *string         `db:"external_call_id" json:"external_call_id,omitempty"`
	ExternalBatchID        *string         `db:"external_batch_id" json:"external_batch_id,omitempty"`
	Status                 CallStatus      `db:"status" json:"status"`
	Outcome                *Outcome        `db:"outcome" json:"outcome,omitempty"`
	StartedAt              *time.Time      `db:"started_at" json:"started_at,omitempty"`
	EndedAt                *time.Time      `db:"ended_at" json:"ended_at,omitempty"`
	DurationSec            *int            `db:"duration_sec" json:"duration_sec,omitempty"`
	Transcript             *string         `db:"transcript" json:"transcript,omitempty"`
	Summary                *string         `db:"summary" json:"summary,omitempty"`
	Extracted              ExtractedFields `db:"extracted_json" json:"extracted_fields"`
	Enrichment             *Enrichment     `db:"enrichment_json" json:"enrichment,omitempty"`
	SentimentLabel         *SentimentLabel `db:"sentiment_label" json:"sentiment_label,omitempty"`
	SentimentScore         *float64        `db:"sentiment_score" json:"sentiment_score,omitempty"`
	RecordingURL           *string         `db:"recording_url" json:"recording_url,omitempty"`
	RequiresHumanReview    bool            `db:"requires_human_review" json:"requires_human_review"`
	AssignedTo             *string         `db:"assigned_to" json:"assigned_to,omitempty"`
	ResolutionNotes        *string         `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedAt             *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy             *string         `db:"resolved_by" json:"resolved_by,omitempty"`
	ReconciledAt           *time.Time      `db:"reconciled_at" json:"reconciled_at,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt              *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// ResolveAction is an operator action on a call in the review queue.
type ResolveAction string

const (
	ResolveAssignHuman  ResolveAction = "assign_human"
	ResolveAddNote      ResolveAction = "add_note"
	ResolveMarkResolved ResolveAction = "mark_resolved"
)

// CallView is a call joined with the target and customer it belongs to.
type CallView struct {
	Call
	AttemptsCount int    `json:"attempts_count"`
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
}
