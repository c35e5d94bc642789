package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

func outcomePtr(o model.Outcome) *model.Outcome { return &o }

func ruleIDs(vs []Violation) []string {
	ids := make([]string, len(vs))
	for i, v := range vs {
		ids[i] = v.RuleID
	}
	return ids
}

func TestAttention_Evaluate(t *testing.T) {
	s := &AttentionService{}
	neg := model.SentimentNegative

	tests := []struct {
		name string
		view model.CallView
		want []string
	}{
		{
			name: "clean booking",
			view: model.CallView{Call: model.Call{
				Status:    model.CallCompleted,
				Outcome:   outcomePtr(model.OutcomeBooked),
				Extracted: model.ExtractedFields{PickupDate: "2024-03-01", PickupTime: "10:00"},
			}, AttemptsCount: 3},
			want: []string{},
		},
		{
			name: "booking missing time",
			view: model.CallView{Call: model.Call{
				Status:    model.CallCompleted,
				Outcome:   outcomePtr(model.OutcomeBooked),
				Extracted: model.ExtractedFields{PickupDate: "2024-03-01"},
			}},
			want: []string{RuleMissingBooking},
		},
		{
			name: "unhappy repeat caller",
			view: model.CallView{Call: model.Call{
				Status:         model.CallCompleted,
				Outcome:        outcomePtr(model.OutcomeCallbackRequested),
				SentimentLabel: &neg,
			}, AttemptsCount: 3},
			want: []string{RuleMultipleAttempts, RuleNegativeSentiment, RuleCallbackRequested},
		},
		{
			name: "failed call",
			view: model.CallView{Call: model.Call{Status: model.CallFailed, Outcome: outcomePtr(model.OutcomeOther)}},
			want: []string{RuleFailedCall},
		},
		{
			name: "opt out",
			view: model.CallView{Call: model.Call{Status: model.CallCompleted, Outcome: outcomePtr(model.OutcomeOptOut)}},
			want: []string{RuleOptOut},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleIDs(s.Evaluate(&tt.view)))
		})
	}
}

func TestAttention_ListSortsBySeverity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 5)
	_, err := env.enrollment().Enroll(ctx, c.ID, []model.TargetInput{
		{Phone: "+15551230000", FullName: "Ada"},
		{Phone: "+15551230001", FullName: "Grace"},
	})
	require.NoError(t, err)
	targets, _, err := env.stores.Targets.ListByCampaign(ctx, c.ID, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	_, err = env.deliver(t, postCall(t, "conv-low", targets[0], "completed", map[string]any{"opt_out": true}))
	require.NoError(t, err)
	_, err = env.deliver(t, postCall(t, "conv-medium", targets[1], "completed", map[string]any{"callback_requested": true}))
	require.NoError(t, err)
	_, err = env.deliver(t, postCall(t, "conv-high", targets[1], "failed", nil))
	require.NoError(t, err)

	s := &AttentionService{Stores: env.stores}
	items, err := s.List(ctx, &c.ID, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, SeverityHigh, items[0].Severity)
	assert.Equal(t, RuleFailedCall, items[0].RuleID)
	assert.Equal(t, SeverityMedium, items[1].Severity)
	assert.Equal(t, SeverityLow, items[2].Severity)
	assert.Equal(t, "Ada", items[2].CustomerName)
	assert.Equal(t, "+15551230000", items[2].Phone)

	limited, err := s.List(ctx, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
