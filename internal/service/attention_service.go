package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}

const (
	RuleMultipleAttempts  = "multiple_attempts"
	RuleNegativeSentiment = "negative_sentiment"
	RuleCallbackRequested = "callback_requested"
	RuleMissingBooking    = "missing_booking_details"
	RuleFailedCall        = "failed_calls"
	RuleOptOut            = "opt_out"
)

// attemptsThreshold is how many unbooked attempts make a target worth a look.
const attemptsThreshold = 3

type Violation struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Severity Severity `json:"severity"`
	Details  string   `json:"details"`
}

type AttentionItem struct {
	CallID       int64     `json:"call_id"`
	CampaignID   *int64    `json:"campaign_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
	Violation
}

// AttentionService flags reconciled calls an operator should look at.
type AttentionService struct {
	*Stores
}

// Evaluate runs every rule against one call.
func (s *AttentionService) Evaluate(v *model.CallView) []Violation {
	var out []Violation
	outcome := model.Outcome("")
	if v.Outcome != nil {
		outcome = *v.Outcome
	}

	if v.AttemptsCount >= attemptsThreshold && outcome != model.OutcomeBooked {
		out = append(out, Violation{
			RuleID:   RuleMultipleAttempts,
			RuleName: "Multiple Attempts Without Booking",
			Severity: SeverityHigh,
			Details:  fmt.Sprintf("Attempted %d times", v.AttemptsCount),
		})
	}
	if v.SentimentLabel != nil && *v.SentimentLabel == model.SentimentNegative {
		out = append(out, Violation{
			RuleID:   RuleNegativeSentiment,
			RuleName: "Negative Sentiment",
			Severity: SeverityHigh,
			Details:  "Sentiment: negative",
		})
	}
	if outcome == model.OutcomeCallbackRequested {
		out = append(out, Violation{
			RuleID:   RuleCallbackRequested,
			RuleName: "Callback Requested",
			Severity: SeverityMedium,
			Details:  "Customer requested callback",
		})
	}
	if outcome == model.OutcomeBooked {
		var missing []string
		if v.Extracted.PickupDate == "" {
			missing = append(missing, "date")
		}
		if v.Extracted.PickupTime == "" {
			missing = append(missing, "time")
		}
		if len(missing) > 0 {
			out = append(out, Violation{
				RuleID:   RuleMissingBooking,
				RuleName: "Missing Booking Details",
				Severity: SeverityMedium,
				Details:  "Missing " + strings.Join(missing, " "),
			})
		}
	}
	if v.Status == model.CallFailed {
		out = append(out, Violation{
			RuleID:   RuleFailedCall,
			RuleName: "Failed Call",
			Severity: SeverityHigh,
			Details:  "Call failed",
		})
	}
	if outcome == model.OutcomeOptOut {
		out = append(out, Violation{
			RuleID:   RuleOptOut,
			RuleName: "Do Not Call",
			Severity: SeverityLow,
			Details:  "Customer opted out",
		})
	}
	return out
}

// List evaluates the newest reconciled calls and returns at most limit
// items, high severity first. Items of equal severity keep call order.
func (s *AttentionService) List(ctx context.Context, campaignID *int64, limit int) ([]AttentionItem, error) {
	if limit < 1 || limit > maxPageSize {
		limit = 50
	}
	views, err := s.Calls.ListViews(ctx, campaignID, maxPageSize*5)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	items := []AttentionItem{}
	for _, v := range views {
		for _, violation := range s.Evaluate(v) {
			items = append(items, AttentionItem{
				CallID:       v.ID,
				CampaignID:   v.CampaignID,
				CustomerName: v.CustomerName,
				Phone:        v.Phone,
				CreatedAt:    v.CreatedAt,
				Violation:    violation,
			})
		}
	}
	slices.SortStableFunc(items, func(a, b AttentionItem) int {
		return a.Severity.rank() - b.Severity.rank()
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
