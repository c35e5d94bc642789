package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/filestore"
	"github.com/unclebandit/voiceops-backend/internal/lock"
	"github.com/unclebandit/voiceops-backend/internal/metrics"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/queue"
	"github.com/unclebandit/voiceops-backend/internal/webhook"
)

type ReconcileStatus string

const (
	ReconcileProcessed ReconcileStatus = "processed"
	ReconcileDuplicate ReconcileStatus = "duplicate"
	ReconcileIgnored   ReconcileStatus = "ignored"
)

const (
	reasonNoIdentifier = "no identifier"
	reasonNoContext    = "no customer context"
	maxReconcileTries  = 3
)

type ReconcileResult struct {
	Status         ReconcileStatus `json:"status"`
	CallID         *int64          `json:"call_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Outcome        *model.Outcome  `json:"outcome,omitempty"`
	Reason         string          `json:"reason,omitempty"`

	transcript bool
}

// Reconciler folds provider post-call webhooks into calls, targets,
// campaigns, the DNC list, appointments and the audit log. Each webhook id
// is applied at most once: side effects and the dedup mark commit in one
// transaction, and deliveries sharing an id are serialised by a keyed lock.
type Reconciler struct {
	*Stores
	Secret          string
	ReviewThreshold float64
	ArchivePath     string
	Queue           queue.Queue
	Locks           lock.Locker
	Metrics         *metrics.Metrics
	Log             *zap.Logger
	Now             Clock
}

// Reconcile verifies, parses and applies one webhook body. Signature errors
// wrap ErrInvalidSignature or ErrMissingSignature, unparsable bodies wrap
// ErrInvalidPayload, and anything else is a storage failure after which
// nothing was committed.
func (s *Reconciler) Reconcile(ctx context.Context, raw []byte, signature string) (*ReconcileResult, error) {
	start := time.Now()
	defer func() { s.Metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()

	if s.Secret == "" {
		s.Log.Warn("webhook signature verification skipped: no secret configured")
	} else if err := webhook.Verify(s.Secret, raw, signature); err != nil {
		s.Log.Warn("webhook signature rejected", zap.Error(err))
		s.Metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
		return nil, err
	}

	p, err := webhook.Parse(raw)
	if err != nil {
		s.Metrics.WebhooksTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	id := p.ID()
	if id == "" {
		s.Log.Warn("webhook ignored", zap.String("reason", reasonNoIdentifier))
		s.Metrics.WebhooksTotal.WithLabelValues(string(ReconcileIgnored)).Inc()
		return &ReconcileResult{Status: ReconcileIgnored, Reason: reasonNoIdentifier}, nil
	}
	log := s.Log.With(zap.String("conversation_id", id))
	if len(p.Dropped) > 0 {
		log.Warn("unreadable webhook fields dropped", zap.Strings("fields", p.Dropped))
	}

	unlock, err := s.Locks.Lock(ctx, "webhook:"+id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock webhook %s: %w", id, err)
	}
	defer unlock()

	var res *ReconcileResult
	for try := 1; ; try++ {
		res, err = s.attempt(ctx, p, id)
		if !errors.Is(err, appErrors.ErrConcurrentUpdate) || try == maxReconcileTries {
			break
		}
		s.Metrics.ReconcileConflicts.Inc()
		log.Info("concurrent update, retrying", zap.Int("attempt", try))
	}
	if err != nil {
		log.Error("webhook reconciliation failed", zap.Error(err))
		s.Metrics.WebhooksTotal.WithLabelValues("error").Inc()
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("conversation_id", id)
			sentry.CaptureException(err)
		})
		return nil, err
	}

	s.Metrics.WebhooksTotal.WithLabelValues(string(res.Status)).Inc()
	switch res.Status {
	case ReconcileDuplicate:
		log.Info("duplicate webhook")
	case ReconcileIgnored:
		log.Warn("webhook ignored", zap.String("reason", res.Reason))
	case ReconcileProcessed:
		s.Metrics.CallOutcomes.WithLabelValues(string(*res.Outcome)).Inc()
		log.Info("webhook processed", zap.String("outcome", string(*res.Outcome)), zap.Int64("call_id", *res.CallID))
		s.afterCommit(log, res)
	}
	s.archive(log, id, res, raw)
	return res, nil
}

// matched is the ownership context a webhook resolved to.
type matched struct {
	call     *model.Call
	target   *model.CampaignTarget
	campaign *model.Campaign
	customer *model.Customer
}

func (s *Reconciler) attempt(ctx context.Context, p *webhook.Payload, id string) (*ReconcileResult, error) {
	var res *ReconcileResult
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.apply(ctx, p, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Reconciler) duplicate(ctx context.Context, id string) (*ReconcileResult, error) {
	res := &ReconcileResult{Status: ReconcileDuplicate, ConversationID: id}
	call, err := s.Calls.GetByConversationID(ctx, id)
	if err != nil {
		return nil, err
	}
	if call != nil {
		res.CallID = &call.ID
		res.Outcome = call.Outcome
	}
	return res, nil
}

func (s *Reconciler) apply(ctx context.Context, p *webhook.Payload, id string) (*ReconcileResult, error) {
	now := s.Now.now()

	processed, err := s.Webhooks.IsProcessed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check dedup index: %w", err)
	}
	if processed {
		return s.duplicate(ctx, id)
	}

	m, err := s.match(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if m.call != nil && m.call.ReconciledAt != nil {
		// the dedup index was pruned; the call itself remembers
		if _, err := s.Webhooks.MarkProcessed(ctx, id, now); err != nil {
			return nil, err
		}
		return s.duplicate(ctx, id)
	}
	if m.customer == nil {
		return &ReconcileResult{Status: ReconcileIgnored, ConversationID: id, Reason: reasonNoContext}, nil
	}

	outcome := p.Outcome()
	extracted := p.Extracted()
	label, score := p.SentimentLabelAndScore()

	review := score != nil && *score < s.ReviewThreshold
	if outcome == model.OutcomeCallbackRequested && extracted.CallbackTime == "" {
		review = true
	}

	var bookedAt time.Time
	if outcome == model.OutcomeBooked {
		loc := time.UTC
		if m.campaign != nil {
			loc = m.campaign.Schedule.Location()
		}
		var ok bool
		bookedAt, ok = scheduledStart(extracted.PickupDate, extracted.PickupTime, now, loc)
		if !ok {
			review = true
		}
	}

	call := m.call
	if call == nil {
		call = &model.Call{OrgID: m.customer.OrgID, CustomerID: m.customer.ID}
		if m.target != nil {
			call.TargetID = &m.target.ID
			call.CampaignID = &m.target.CampaignID
			call.VehicleID = m.target.VehicleID
		}
	}
	convID := id
	call.ExternalConversationID = &convID
	if p.CallID != "" {
		callID := p.CallID
		call.ExternalCallID = &callID
	}
	if p.BatchID != "" {
		batchID := p.BatchID
		call.ExternalBatchID = &batchID
	}
	call.Status = p.CallStatus()
	call.Outcome = &outcome
	call.StartedAt = p.StartedAt
	call.EndedAt = p.EndedAt
	call.DurationSec = p.DurationSeconds
	if p.Transcript != nil && *p.Transcript != "" {
		call.Transcript = p.Transcript
	}
	if p.Analysis != nil && p.Analysis.Summary != nil && *p.Analysis.Summary != "" {
		call.Summary = p.Analysis.Summary
	}
	call.Extracted = extracted
	call.SentimentLabel = label
	call.SentimentScore = score
	call.RecordingURL = p.RecordingURL
	call.RequiresHumanReview = call.RequiresHumanReview || review
	call.ReconciledAt = &now

	if call.ID == 0 {
		if err := s.Calls.Insert(ctx, call); err != nil {
			return nil, fmt.Errorf("failed to insert call: %w", err)
		}
	} else if err := s.Calls.ApplyReconciliation(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to update call %d: %w", call.ID, err)
	}

	var targetAfter, campaignStatus string
	if m.target != nil {
		before := m.target.Status
		u, ok := m.target.ApplyOutcome(outcome, m.campaign, now)
		if ok {
			if err := s.Targets.ApplyUpdate(ctx, m.target, u); err != nil {
				return nil, fmt.Errorf("failed to update target %d: %w", m.target.ID, err)
			}
			if campaignStatus, err = s.completeCampaign(ctx, m.campaign); err != nil {
				return nil, err
			}
		} else {
			s.Log.Info("target already terminal, left unchanged",
				zap.Int64("target_id", m.target.ID),
				zap.String("status", string(before)),
			)
		}
		targetAfter = string(m.target.Status)
	}

	dncAdded := false
	if outcome == model.OutcomeOptOut {
		created, err := s.Dnc.Insert(ctx, &model.DncEntry{
			OrgID:     m.customer.OrgID,
			PhoneE164: m.customer.PhoneE164,
			Reason:    "Customer opted out during call",
			Source:    model.DncSourceAICall,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add DNC entry: %w", err)
		}
		if created {
			s.Log.Info("added to DNC list", zap.Int64("customer_id", m.customer.ID))
		}
		dncAdded = created
	}

	if outcome == model.OutcomeBooked {
		appt := &model.Appointment{
			OrgID:          m.customer.OrgID,
			CustomerID:     m.customer.ID,
			VehicleID:      call.VehicleID,
			CampaignID:     call.CampaignID,
			CallID:         &call.ID,
			Type:           model.AppointmentPickup,
			ScheduledStart: bookedAt,
			Status:         model.AppointmentBooked,
			Source:         model.AppointmentSourceAI,
		}
		if extracted.Notes != "" {
			notes := extracted.Notes
			appt.Notes = &notes
		}
		if _, err := s.Appointments.Insert(ctx, appt); err != nil {
			return nil, fmt.Errorf("failed to create appointment: %w", err)
		}
	}

	after := map[string]any{
		"outcome":               outcome,
		"conversation_id":       id,
		"requires_human_review": call.RequiresHumanReview,
	}
	if targetAfter != "" {
		after["target_status"] = targetAfter
	}
	if campaignStatus != "" {
		after["campaign_status"] = campaignStatus
	}
	if outcome == model.OutcomeOptOut {
		after["dnc_added"] = dncAdded
	}
	// one entry per reconciled webhook; side effects are recorded in it
	if err := s.audit(ctx, auditEntry{
		OrgID:         m.customer.OrgID,
		Action:        model.AuditCallCompleted,
		EntityType:    "call",
		EntityID:      call.ID,
		After:         after,
		CorrelationID: id,
	}); err != nil {
		return nil, err
	}

	marked, err := s.Webhooks.MarkProcessed(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	if !marked {
		return nil, appErrors.ErrConcurrentUpdate
	}

	return &ReconcileResult{
		Status:         ReconcileProcessed,
		CallID:         &call.ID,
		ConversationID: id,
		Outcome:        &outcome,
		transcript:     call.Transcript != nil,
	}, nil
}

// match finds the call, target, campaign and customer a webhook belongs
// to, first by conversation id and then by the metadata echoed from
// dispatch.
func (s *Reconciler) match(ctx context.Context, p *webhook.Payload, id string) (*matched, error) {
	m := &matched{}
	var err error

	if m.call, err = s.Calls.GetByConversationID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to look up call: %w", err)
	}

	var targetID, customerID int64
	switch {
	case m.call != nil:
		customerID = m.call.CustomerID
		if m.call.TargetID != nil {
			targetID = *m.call.TargetID
		}
	default:
		targetID, _ = p.Metadata.Int64("target_id")
		customerID, _ = p.Metadata.Int64("customer_id")
	}

	if targetID > 0 {
		if m.target, err = s.Targets.GetByID(ctx, targetID); err != nil {
			return nil, fmt.Errorf("failed to look up target: %w", err)
		}
	}
	if m.target != nil {
		if m.campaign, err = s.Campaigns.GetByID(ctx, m.target.CampaignID); err != nil {
			return nil, fmt.Errorf("failed to look up campaign: %w", err)
		}
		customerID = m.target.CustomerID
	}
	if customerID > 0 {
		if m.customer, err = s.Customers.GetByID(ctx, customerID); err != nil {
			return nil, fmt.Errorf("failed to look up customer: %w", err)
		}
	}

	if m.call == nil && m.target != nil {
		if m.call, err = s.Calls.FindQueuedForTarget(ctx, m.target.ID); err != nil {
			return nil, fmt.Errorf("failed to look up queued call: %w", err)
		}
	}
	return m, nil
}

// completeCampaign closes a RUNNING campaign once no target is left to
// call and reports the campaign's resulting status.
func (s *Reconciler) completeCampaign(ctx context.Context, c *model.Campaign) (string, error) {
	if c == nil {
		return "", nil
	}
	if c.Status != model.CampaignRunning {
		return string(c.Status), nil
	}
	remaining, err := s.Targets.CountNonTerminal(ctx, c.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count open targets: %w", err)
	}
	if remaining > 0 {
		return string(c.Status), nil
	}
	err = s.Campaigns.Transition(ctx, c.ID, model.CampaignCompleted, model.CampaignRunning)
	if errors.Is(err, appErrors.ErrConcurrentUpdate) {
		// paused or failed meanwhile; leave it to the operator
		return string(c.Status), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to complete campaign: %w", err)
	}
	c.Status = model.CampaignCompleted
	return string(c.Status), nil
}

func (s *Reconciler) afterCommit(log *zap.Logger, res *ReconcileResult) {
	if s.Queue == nil || !res.transcript {
		return
	}
	ev := queue.CallReconciled{CallID: *res.CallID, ConversationID: res.ConversationID}
	if err := s.Queue.Publish(queue.TopicCallEnrichment, ev); err != nil {
		log.Warn("failed to publish enrichment event", zap.Error(err))
	}
}

type archiveRecord struct {
	ReceivedAt time.Time       `json:"received_at"`
	WebhookID  string          `json:"webhook_id"`
	Status     ReconcileStatus `json:"status"`
	CallID     string          `json:"call_id,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// archive appends the raw payload to the JSONL archive. Failures are logged
// and never affect the response.
func (s *Reconciler) archive(log *zap.Logger, id string, res *ReconcileResult, raw []byte) {
	if s.ArchivePath == "" {
		return
	}
	rec := archiveRecord{ReceivedAt: s.Now.now(), WebhookID: id, Status: res.Status}
	if res.CallID != nil {
		rec.CallID = strconv.FormatInt(*res.CallID, 10)
	}
	if json.Valid(raw) {
		rec.Body = raw
	}
	if err := filestore.AppendRecord(s.ArchivePath, rec); err != nil {
		log.Warn("failed to archive webhook", zap.Error(err))
	}
}
