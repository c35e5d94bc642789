package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/phone"
)

// EnrollmentService adds recipients to a campaign. A phone on the org's DNC
// list never becomes a target.
type EnrollmentService struct {
	*Stores
	DefaultRegion string
	Log           *zap.Logger
	Now           Clock
}

// Enroll runs the whole upload in one transaction. Rows rejected for DNC,
// duplication or a bad phone are reported in the result, not as errors.
func (s *EnrollmentService) Enroll(ctx context.Context, campaignID int64, inputs []model.TargetInput) (*model.EnrollmentResult, error) {
	result := &model.EnrollmentResult{
		Rejected: []model.EnrollmentRejection{},
		Errors:   []string{},
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		campaign, err := s.Campaigns.GetByID(ctx, campaignID)
		if err != nil {
			return err
		}
		if !campaign.Status.AcceptsTargets() {
			return appErrors.ErrEnrollmentClosed
		}

		now := s.Now.now()
		for i, in := range inputs {
			row := i + 1
			e164, err := phone.Normalize(in.Phone, s.DefaultRegion)
			if err != nil {
				result.Rejected = append(result.Rejected, model.EnrollmentRejection{Row: row, Phone: in.Phone, Reason: model.RejectInvalid})
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
				continue
			}

			blocked, err := s.Dnc.IsBlocked(ctx, campaign.OrgID, e164, now)
			if err != nil {
				return fmt.Errorf("failed to check DNC: %w", err)
			}
			if blocked {
				result.SkippedDNC++
				result.Rejected = append(result.Rejected, model.EnrollmentRejection{Row: row, Phone: e164, Reason: model.RejectDNC})
				continue
			}

			customer, err := s.Customers.FindOrCreate(ctx, customerFromInput(campaign.OrgID, e164, in))
			if err != nil {
				return fmt.Errorf("failed to find or create customer: %w", err)
			}

			target := &model.CampaignTarget{CampaignID: campaignID, CustomerID: customer.ID}
			if strings.TrimSpace(in.VehicleMake) != "" && strings.TrimSpace(in.VehicleModel) != "" {
				v, err := s.Customers.FindOrCreateVehicle(ctx, vehicleFromInput(campaign.OrgID, customer.ID, in))
				if err != nil {
					return fmt.Errorf("failed to find or create vehicle: %w", err)
				}
				target.VehicleID = &v.ID
			}

			created, err := s.Targets.Insert(ctx, target)
			if err != nil {
				return fmt.Errorf("failed to insert target: %w", err)
			}
			if !created {
				result.SkippedDuplicate++
				result.Rejected = append(result.Rejected, model.EnrollmentRejection{Row: row, Phone: e164, Reason: model.RejectDuplicate})
				continue
			}
			result.Created++
		}

		if result.Created > 0 && campaign.Status == model.CampaignDraft {
			return s.Campaigns.Transition(ctx, campaignID, model.CampaignReady, model.CampaignDraft)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("targets enrolled",
		zap.Int64("campaign_id", campaignID),
		zap.Int("created", result.Created),
		zap.Int("skipped_dnc", result.SkippedDNC),
		zap.Int("skipped_duplicate", result.SkippedDuplicate),
		zap.Int("invalid", len(result.Errors)),
	)
	return result, nil
}

func customerFromInput(orgID int64, e164 string, in model.TargetInput) *model.Customer {
	c := &model.Customer{
		OrgID:     orgID,
		FullName:  strings.TrimSpace(in.FullName),
		PhoneE164: e164,
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		c.Email = &email
	}
	return c
}

func vehicleFromInput(orgID, customerID int64, in model.TargetInput) *model.Vehicle {
	v := &model.Vehicle{
		OrgID:      orgID,
		CustomerID: customerID,
		Make:       strings.TrimSpace(in.VehicleMake),
		Model:      strings.TrimSpace(in.VehicleModel),
	}
	if in.VehicleYear > 0 {
		year := in.VehicleYear
		v.Year = &year
	}
	if plate := strings.ToUpper(strings.TrimSpace(in.PlateNumber)); plate != "" {
		v.PlateNumber = &plate
	}
	return v
}
