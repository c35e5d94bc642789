package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/lock"
	"github.com/unclebandit/voiceops-backend/internal/metrics"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/provider"
)

// Starter submits due targets to the voice provider as one batch call.
type Starter struct {
	*Stores
	Provider  provider.Client
	Locks     lock.Locker
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Now       Clock
	BatchSize int
	Timeout   time.Duration
}

type StartResult struct {
	CampaignID int64                `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	BatchID    string               `json:"batch_id,omitempty"`
	Dispatched int                  `json:"dispatched"`
	OptedOut   int                  `json:"opted_out"`
}

// StartCampaign is allowed from READY or PAUSED.
func (s *Starter) StartCampaign(ctx context.Context, id int64) (*StartResult, error) {
	var res *StartResult
	err := s.withLock(ctx, id, func() error {
		c, err := s.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.CanStart() {
			return appErrors.ErrCampaignNotStartable
		}
		res, err = s.dispatch(ctx, c, c.Status == model.CampaignPaused)
		return err
	})
	return res, err
}

// ResumeCampaign restarts a PAUSED campaign.
func (s *Starter) ResumeCampaign(ctx context.Context, id int64) (*StartResult, error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignPaused {
		return nil, appErrors.ErrCampaignNotStartable
	}
	return s.StartCampaign(ctx, id)
}

// DispatchDue sends retries for every RUNNING campaign whose calling
// window is open. Campaigns locked by another operation are skipped.
func (s *Starter) DispatchDue(ctx context.Context) (int, error) {
	campaigns, err := s.Campaigns.ListByStatus(ctx, model.CampaignRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running campaigns: %w", err)
	}

	now := s.Now.now()
	total := 0
	var errs []error
	for _, c := range campaigns {
		if !c.Schedule.IsOpen(now) {
			continue
		}
		err := s.withLock(ctx, c.ID, func() error {
			fresh, err := s.Campaigns.GetByID(ctx, c.ID)
			if err != nil {
				return err
			}
			if fresh.Status != model.CampaignRunning {
				return nil
			}
			res, err := s.dispatch(ctx, fresh, true)
			if res != nil {
				total += res.Dispatched
			}
			return err
		})
		switch {
		case err == nil, errors.Is(err, appErrors.ErrNoPendingTargets), errors.Is(err, appErrors.ErrCampaignLocked):
		default:
			s.Log.Error("retry dispatch failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Starter) withLock(ctx context.Context, id int64, fn func() error) error {
	unlock, err := s.Locks.TryLock(ctx, campaignLockKey(id))
	if errors.Is(err, appErrors.ErrLockNotAcquired) {
		return appErrors.ErrCampaignLocked
	}
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// dispatch must run under the campaign lock. allowEmpty lets a resumed or
// running campaign go RUNNING with nothing due, since its in-flight calls
// still have webhooks to come.
func (s *Starter) dispatch(ctx context.Context, c *model.Campaign, allowEmpty bool) (*StartResult, error) {
	now := s.Now.now()
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	from := c.Status
	res := &StartResult{CampaignID: c.ID, Status: c.Status}

	due, err := s.Targets.ListDueContacts(ctx, c.ID, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select due targets: %w", err)
	}

	// a number added to DNC after enrollment is never dialled
	contacts := make([]*model.TargetContact, 0, len(due))
	for _, tc := range due {
		blocked, err := s.Dnc.IsBlocked(ctx, c.OrgID, tc.Customer.PhoneE164, now)
		if err != nil {
			return nil, fmt.Errorf("failed to check DNC: %w", err)
		}
		if !blocked {
			contacts = append(contacts, tc)
			continue
		}
		if err := s.Targets.MarkOptedOut(ctx, tc.Target.ID, model.RejectDNC); err != nil && !errors.Is(err, appErrors.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("failed to opt out target %d: %w", tc.Target.ID, err)
		}
		res.OptedOut++
	}

	if len(contacts) == 0 {
		return res, s.settleEmpty(ctx, c, res, allowEmpty)
	}

	req := provider.BatchRequest{
		CampaignID: strconv.FormatInt(c.ID, 10),
		Name:       fmt.Sprintf("%s #%d", c.Name, c.ID),
		Recipients: make([]provider.Recipient, len(contacts)),
	}
	for i, tc := range contacts {
		req.Recipients[i] = provider.Recipient{
			PhoneNumber: tc.Customer.PhoneE164,
			Metadata:    recipientMetadata(c, tc),
		}
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	batch, err := s.Provider.CreateBatchCall(callCtx, req)
	if err == nil && (batch == nil || batch.BatchID == "") {
		err = fmt.Errorf("%w: empty batch id", appErrors.ErrProviderUnavailable)
	}
	if err != nil {
		return nil, s.markFailed(ctx, c, from, err)
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.Campaigns.MarkRunning(ctx, c.ID, batch.BatchID, from); err != nil {
			return fmt.Errorf("failed to mark campaign running: %w", err)
		}
		for _, tc := range contacts {
			// a webhook reconciled while the batch was being submitted has
			// already moved the target on; its queued call is not recorded
			if err := s.Targets.MarkInProgress(ctx, &tc.Target); err != nil {
				if errors.Is(err, appErrors.ErrConcurrentUpdate) {
					s.Log.Warn("target changed before dispatch", zap.Int64("target_id", tc.Target.ID))
					continue
				}
				return err
			}
			targetID := tc.Target.ID
			campaignID := c.ID
			batchID := batch.BatchID
			call := &model.Call{
				OrgID:           c.OrgID,
				CampaignID:      &campaignID,
				TargetID:        &targetID,
				CustomerID:      tc.Customer.ID,
				VehicleID:       tc.Target.VehicleID,
				ExternalBatchID: &batchID,
				Status:          model.CallQueued,
			}
			if err := s.Calls.Insert(ctx, call); err != nil {
				return fmt.Errorf("failed to record queued call: %w", err)
			}
			res.Dispatched++
		}
		res.Status = model.CampaignRunning
		if res.Dispatched == 0 {
			remaining, err := s.Targets.CountNonTerminal(ctx, c.ID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := s.Campaigns.Transition(ctx, c.ID, model.CampaignCompleted, model.CampaignRunning); err != nil {
					return err
				}
				res.Status = model.CampaignCompleted
			}
		}
		return s.audit(ctx, auditEntry{
			OrgID:      c.OrgID,
			Action:     model.AuditCampaignStarted,
			EntityType: "campaign",
			EntityID:   c.ID,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": res.Status, "batch_id": batch.BatchID, "targets": res.Dispatched},
		})
	})
	if err != nil {
		sentry.CaptureException(err)
		return nil, err
	}

	res.BatchID = batch.BatchID
	s.Metrics.CampaignStarts.WithLabelValues("success").Inc()
	s.Metrics.TargetsDispatched.Add(float64(res.Dispatched))
	s.Log.Info("batch call submitted",
		zap.Int64("campaign_id", c.ID),
		zap.String("batch_id", batch.BatchID),
		zap.Int("targets", res.Dispatched),
		zap.Int("opted_out", res.OptedOut),
	)
	return res, nil
}

// settleEmpty handles a dispatch with nothing to dial.
func (s *Starter) settleEmpty(ctx context.Context, c *model.Campaign, res *StartResult, allowEmpty bool) error {
	remaining, err := s.Targets.CountNonTerminal(ctx, c.ID)
	if err != nil {
		return err
	}
	if remaining == 0 && c.Status == model.CampaignRunning {
		if err := s.Campaigns.Transition(ctx, c.ID, model.CampaignCompleted, model.CampaignRunning); err != nil {
			return err
		}
		res.Status = model.CampaignCompleted
		return nil
	}
	if !allowEmpty || remaining == 0 {
		return appErrors.ErrNoPendingTargets
	}
	if c.Status == model.CampaignPaused {
		if err := s.Campaigns.Transition(ctx, c.ID, model.CampaignRunning, model.CampaignPaused); err != nil {
			return err
		}
		res.Status = model.CampaignRunning
	}
	return nil
}

// markFailed records a provider failure. Targets stay PENDING so a later
// start can pick them up.
func (s *Starter) markFailed(ctx context.Context, c *model.Campaign, from model.CampaignStatus, cause error) error {
	s.Metrics.CampaignStarts.WithLabelValues("failure").Inc()
	s.Metrics.ProviderErrors.Inc()
	sentry.CaptureException(cause)
	s.Log.Error("batch call failed", zap.Int64("campaign_id", c.ID), zap.Error(cause))

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.Campaigns.Transition(ctx, c.ID, model.CampaignFailed, from); err != nil {
			return err
		}
		return s.audit(ctx, auditEntry{
			OrgID:      c.OrgID,
			Action:     model.AuditCampaignStartFailed,
			EntityType: "campaign",
			EntityID:   c.ID,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": model.CampaignFailed, "error": cause.Error()},
		})
	})
	if err != nil {
		return fmt.Errorf("%w (and failed to mark campaign failed: %v)", cause, err)
	}
	return cause
}

// recipientMetadata is echoed back on the webhook so the call can be tied
// to its target without any other state.
func recipientMetadata(c *model.Campaign, tc *model.TargetContact) map[string]any {
	m := map[string]any{
		"target_id":     strconv.FormatInt(tc.Target.ID, 10),
		"customer_id":   strconv.FormatInt(tc.Customer.ID, 10),
		"campaign_id":   strconv.FormatInt(c.ID, 10),
		"org_id":        strconv.FormatInt(c.OrgID, 10),
		"customer_name": tc.Customer.FullName,
	}
	if tc.Vehicle != nil {
		m["vehicle_model"] = tc.Vehicle.Make + " " + tc.Vehicle.Model
		if tc.Vehicle.PlateNumber != nil {
			m["plate_number"] = *tc.Vehicle.PlateNumber
		}
	}
	return m
}
