// internal/webhook/payload.go
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/outcome"
)

// Payload is the provider's post-call webhook body. Both snake_case and
// camelCase keys are accepted for the top-level identifiers.
//
// Timestamps and duration are informational. They are read leniently and
// an unreadable value is dropped, named in Dropped, instead of failing
// the delivery.
type Payload struct {
	ConversationID  string     `json:"conversation_id"`
	CallID          string     `json:"call_id"`
	BatchID         string     `json:"batch_id"`
	PhoneNumber     string     `json:"phone_number"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"-"`
	EndedAt         *time.Time `json:"-"`
	DurationSeconds *int       `json:"-"`
	Transcript      *string    `json:"transcript"`
	Analysis        *Analysis  `json:"analysis"`
	Sentiment       *Sentiment `json:"sentiment"`
	RecordingURL    *string    `json:"recording_url"`
	Metadata        Metadata   `json:"metadata"`

	Dropped []string `json:"-"`
}

type Analysis struct {
	AppointmentBooked *bool   `json:"appointment_booked"`
	PickupDate        string  `json:"pickup_date"`
	PickupTime        string  `json:"pickup_time"`
	CallbackRequested *bool   `json:"callback_requested"`
	CallbackTime      string  `json:"callback_time"`
	OptOut            *bool   `json:"opt_out"`
	Rescheduled       *bool   `json:"rescheduled"`
	WrongNumber       *bool   `json:"wrong_number"`
	CustomerConfirmed *bool   `json:"customer_confirmed"`
	Intent            string  `json:"intent"`
	Summary           *string `json:"summary"`
	Notes             string  `json:"notes"`
}

type Sentiment struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// Metadata echoes what was attached to the call when it was placed.
type Metadata map[string]any

// Int64 reads key as an integer id. Providers round-trip numbers as JSON
// numbers or strings, so both are accepted.
func (m Metadata) Int64(key string) (int64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), n > 0
	case json.Number:
		i, err := n.Int64()
		return i, err == nil && i > 0
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil && i > 0
	}
	return 0, false
}

type camelAliases struct {
	ConversationID string  `json:"conversationId"`
	CallID         string  `json:"callId"`
	BatchID        string  `json:"batchId"`
	PhoneNumber    string  `json:"phoneNumber"`
	RecordingURL   *string `json:"recordingUrl"`
}

type timing struct {
	StartedAt            json.RawMessage `json:"started_at"`
	EndedAt              json.RawMessage `json:"ended_at"`
	DurationSeconds      json.RawMessage `json:"duration_seconds"`
	StartedAtCamel       json.RawMessage `json:"startedAt"`
	EndedAtCamel         json.RawMessage `json:"endedAt"`
	DurationSecondsCamel json.RawMessage `json:"durationSeconds"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}

// numeric reads a JSON number or a quoted number.
func numeric(raw json.RawMessage) (float64, bool) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	var f float64
	var err error
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseTime accepts RFC 3339, a space-separated timestamp (UTC unless
// zoned), or unix seconds. Values above 1e12 are taken as milliseconds.
func parseTime(raw json.RawMessage) (*time.Time, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				t = t.UTC()
				return &t, true
			}
		}
	}
	f, ok := numeric(raw)
	if !ok || f < 0 {
		return nil, false
	}
	var t time.Time
	if f > 1e12 {
		t = time.UnixMilli(int64(f)).UTC()
	} else {
		sec, frac := math.Modf(f)
		t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return &t, true
}

func parseDuration(raw json.RawMessage) (*int, bool) {
	f, ok := numeric(raw)
	if !ok || f < 0 || f > math.MaxInt32 {
		return nil, false
	}
	d := int(math.Round(f))
	return &d, true
}

// readTiming fills the timestamps and duration, preferring snake_case keys.
func (p *Payload) readTiming(t timing) {
	pick := func(snake, camel json.RawMessage) json.RawMessage {
		if !isAbsent(snake) {
			return snake
		}
		return camel
	}
	if raw := pick(t.StartedAt, t.StartedAtCamel); !isAbsent(raw) {
		if v, ok := parseTime(raw); ok {
			p.StartedAt = v
		} else {
			p.Dropped = append(p.Dropped, "started_at")
		}
	}
	if raw := pick(t.EndedAt, t.EndedAtCamel); !isAbsent(raw) {
		if v, ok := parseTime(raw); ok {
			p.EndedAt = v
		} else {
			p.Dropped = append(p.Dropped, "ended_at")
		}
	}
	if raw := pick(t.DurationSeconds, t.DurationSecondsCamel); !isAbsent(raw) {
		if v, ok := parseDuration(raw); ok {
			p.DurationSeconds = v
		} else {
			p.Dropped = append(p.Dropped, "duration_seconds")
		}
	}
}

// Parse decodes body. Malformed JSON is ErrInvalidPayload.
func Parse(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidPayload, err)
	}

	var alt camelAliases
	if err := json.Unmarshal(body, &alt); err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidPayload, err)
	}
	var tm timing
	if err := json.Unmarshal(body, &tm); err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidPayload, err)
	}
	p.readTiming(tm)
	if p.ConversationID == "" {
		p.ConversationID = alt.ConversationID
	}
	if p.CallID == "" {
		p.CallID = alt.CallID
	}
	if p.BatchID == "" {
		p.BatchID = alt.BatchID
	}
	if p.PhoneNumber == "" {
		p.PhoneNumber = alt.PhoneNumber
	}
	if p.RecordingURL == nil {
		p.RecordingURL = alt.RecordingURL
	}
	return &p, nil
}

// ID is the idempotency key: the conversation id, else the call id.
func (p *Payload) ID() string {
	if id := strings.TrimSpace(p.ConversationID); id != "" {
		return id
	}
	return strings.TrimSpace(p.CallID)
}

// Outcome classifies the call.
func (p *Payload) Outcome() model.Outcome {
	if p.Analysis == nil {
		return outcome.Classify(nil, p.Status)
	}
	return outcome.Classify(&outcome.Analysis{
		AppointmentBooked: p.Analysis.AppointmentBooked,
		OptOut:            p.Analysis.OptOut,
		CallbackRequested: p.Analysis.CallbackRequested,
		Rescheduled:       p.Analysis.Rescheduled,
		WrongNumber:       p.Analysis.WrongNumber,
		Intent:            p.Analysis.Intent,
	}, p.Status)
}

// Extracted returns the structured fields worth keeping on the call.
func (p *Payload) Extracted() model.ExtractedFields {
	if p.Analysis == nil {
		return model.ExtractedFields{}
	}
	return model.ExtractedFields{
		PickupDate:   strings.TrimSpace(p.Analysis.PickupDate),
		PickupTime:   strings.TrimSpace(p.Analysis.PickupTime),
		CallbackTime: strings.TrimSpace(p.Analysis.CallbackTime),
		Confirmed:    p.Analysis.CustomerConfirmed,
		Notes:        p.Analysis.Notes,
	}
}

// SentimentLabelAndScore maps the provider sentiment to ours.
func (p *Payload) SentimentLabelAndScore() (*model.SentimentLabel, *float64) {
	if p.Sentiment == nil {
		return nil, nil
	}
	var label *model.SentimentLabel
	if l := model.ParseSentimentLabel(strings.ToLower(p.Sentiment.Label)); l != "" {
		label = &l
	}
	return label, p.Sentiment.Score
}

// CallStatus is the call's terminal status as far as we are concerned.
func (p *Payload) CallStatus() model.CallStatus {
	if strings.EqualFold(p.Status, "failed") || strings.EqualFold(p.Status, "error") {
		return model.CallFailed
	}
	return model.CallCompleted
}
