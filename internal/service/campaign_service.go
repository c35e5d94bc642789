// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/lock"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/provider"
)

type CampaignService struct {
	*Stores
	Provider provider.Client
	Locks    lock.Locker
	Log      *zap.Logger
	Now      Clock
}

type ScheduleInput struct {
	Days      []string `json:"days" validate:"omitempty,dive,oneof=MON TUE WED THU FRI SAT SUN"`
	StartHour int      `json:"start_hour" validate:"min=0,max=23"`
	EndHour   int      `json:"end_hour" validate:"min=0,max=24,gtefield=StartHour"`
	Timezone  string   `json:"timezone" validate:"omitempty,timezone"`
}

type RetryInput struct {
	MaxAttempts       int   `json:"max_attempts" validate:"min=1,max=10"`
	RetryDelayMinutes int   `json:"retry_delay_minutes" validate:"min=0,max=10080"`
	RetryOnNoAnswer   *bool `json:"retry_on_no_answer"`
	RetryOnBusy       *bool `json:"retry_on_busy"`
	RetryOnVoicemail  *bool `json:"retry_on_voicemail"`
}

type CreateCampaignInput struct {
	OrgID    int64          `json:"org_id" validate:"required,gt=0"`
	Name     string         `json:"name" validate:"required,max=200"`
	Purpose  string         `json:"purpose" validate:"max=100"`
	Schedule *ScheduleInput `json:"schedule_window"`
	Retry    *RetryInput    `json:"retry_policy"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats *model.CampaignStats `json:"stats"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("campaign name cannot be empty")
	}

	c := &model.Campaign{
		OrgID:    in.OrgID,
		Name:     name,
		Purpose:  in.Purpose,
		Status:   model.CampaignDraft,
		Schedule: model.DefaultScheduleWindow(),
		Retry:    model.DefaultRetryPolicy(),
	}
	if in.Schedule != nil {
		c.Schedule = model.ScheduleWindow{
			Days:      model.ParseDays(strings.Join(in.Schedule.Days, ",")),
			StartHour: in.Schedule.StartHour,
			EndHour:   in.Schedule.EndHour,
			Timezone:  in.Schedule.Timezone,
		}
		if c.Schedule.Timezone == "" {
			c.Schedule.Timezone = model.DefaultScheduleWindow().Timezone
		}
	}
	if in.Retry != nil {
		c.Retry.MaxAttempts = in.Retry.MaxAttempts
		c.Retry.RetryDelay = time.Duration(in.Retry.RetryDelayMinutes) * time.Minute
		if in.Retry.RetryOnNoAnswer != nil {
			c.Retry.RetryOnNoAnswer = *in.Retry.RetryOnNoAnswer
		}
		if in.Retry.RetryOnBusy != nil {
			c.Retry.RetryOnBusy = *in.Retry.RetryOnBusy
		}
		if in.Retry.RetryOnVoicemail != nil {
			c.Retry.RetryOnVoicemail = *in.Retry.RetryOnVoicemail
		}
	}

	if err := s.Campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	s.Log.Info("campaign created", zap.Int64("campaign_id", c.ID), zap.Int64("org_id", c.OrgID))
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	page, pageSize, offset := pageBounds(page, pageSize)

	ptrs, total, err := s.Campaigns.List(ctx, offset, pageSize, strings.ToUpper(status))
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}
	return campaigns, pagination(page, pageSize, total), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, id int64) (*CampaignDetails, error) {
	campaign, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Campaigns.Stats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count targets: %w", err)
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func (s *CampaignService) ListTargets(ctx context.Context, campaignID int64, status string, page, pageSize int) ([]*model.CampaignTarget, map[string]int, error) {
	if _, err := s.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, nil, err
	}
	page, pageSize, offset := pageBounds(page, pageSize)
	targets, total, err := s.Targets.ListByCampaign(ctx, campaignID, strings.ToUpper(status), offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return targets, pagination(page, pageSize, total), nil
}

// withCampaignLock holds the per-campaign lock shared with the starter.
func (s *CampaignService) withCampaignLock(ctx context.Context, id int64, fn func() error) error {
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

// PauseCampaign moves a RUNNING campaign to PAUSED and asks the provider to
// stop the in-flight batch. Cancellation is best-effort; webhooks for calls
// already placed are still reconciled.
func (s *CampaignService) PauseCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	var c *model.Campaign
	err := s.withCampaignLock(ctx, id, func() error {
		var err error
		c, err = s.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != model.CampaignRunning {
			return appErrors.ErrCampaignNotRunning
		}
		return s.inTx(ctx, func(ctx context.Context) error {
			if err := s.Campaigns.Transition(ctx, id, model.CampaignPaused, model.CampaignRunning); err != nil {
				return err
			}
			return s.audit(ctx, auditEntry{
				OrgID:      c.OrgID,
				Action:     model.AuditCampaignPaused,
				EntityType: "campaign",
				EntityID:   id,
				Before:     map[string]any{"status": c.Status},
				After:      map[string]any{"status": model.CampaignPaused},
			})
		})
	})
	if err != nil {
		return nil, err
	}

	c.Status = model.CampaignPaused
	if c.ExternalBatchID != nil && s.Provider != nil {
		if err := s.Provider.CancelBatch(ctx, *c.ExternalBatchID); err != nil {
			s.Log.Warn("failed to cancel provider batch",
				zap.Int64("campaign_id", id),
				zap.String("batch_id", *c.ExternalBatchID),
				zap.Error(err),
			)
		}
	}
	s.Log.Info("campaign paused", zap.Int64("campaign_id", id))
	return c, nil
}

// ResetCampaign returns a FAILED campaign to READY so it can be started again.
func (s *CampaignService) ResetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	var c *model.Campaign
	err := s.withCampaignLock(ctx, id, func() error {
		var err error
		c, err = s.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != model.CampaignFailed {
			return appErrors.ErrCampaignNotFailed
		}
		return s.inTx(ctx, func(ctx context.Context) error {
			if err := s.Campaigns.Transition(ctx, id, model.CampaignReady, model.CampaignFailed); err != nil {
				return err
			}
			return s.audit(ctx, auditEntry{
				OrgID:      c.OrgID,
				Action:     model.AuditCampaignReset,
				EntityType: "campaign",
				EntityID:   id,
				Before:     map[string]any{"status": c.Status},
				After:      map[string]any{"status": model.CampaignReady},
			})
		})
	})
	if err != nil {
		return nil, err
	}
	c.Status = model.CampaignReady
	return c, nil
}

func campaignLockKey(id int64) string {
	return fmt.Sprintf("campaign:%d", id)
}
