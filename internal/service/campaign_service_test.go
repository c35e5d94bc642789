package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

func TestCreateCampaign_AppliesDefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := env.campaigns()

	c, err := svc.CreateCampaign(ctx, CreateCampaignInput{OrgID: 1, Name: "  Recall notice "})
	require.NoError(t, err)
	assert.Equal(t, "Recall notice", c.Name)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, model.DefaultRetryPolicy(), c.Retry)
	assert.Equal(t, model.DefaultScheduleWindow(), c.Schedule)

	no := false
	c, err = svc.CreateCampaign(ctx, CreateCampaignInput{
		OrgID:    1,
		Name:     "Weekend pickups",
		Schedule: &ScheduleInput{Days: []string{"sat", "SUN"}, StartHour: 10, EndHour: 14},
		Retry:    &RetryInput{MaxAttempts: 2, RetryDelayMinutes: 30, RetryOnBusy: &no},
	})
	require.NoError(t, err)

	got, err := env.stores.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"SAT", "SUN"}, got.Schedule.Days)
	assert.Equal(t, "America/New_York", got.Schedule.Timezone)
	assert.Equal(t, 2, got.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Minute, got.Retry.RetryDelay)
	assert.False(t, got.Retry.RetryOnBusy)
	assert.True(t, got.Retry.RetryOnNoAnswer)

	_, err = svc.CreateCampaign(ctx, CreateCampaignInput{OrgID: 1, Name: "   "})
	assert.Error(t, err)
}

func TestListCampaigns_Pagination(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := env.campaigns()
	for i := 0; i < 5; i++ {
		_, err := svc.CreateCampaign(ctx, CreateCampaignInput{OrgID: 1, Name: fmt.Sprintf("Campaign %d", i)})
		require.NoError(t, err)
	}

	campaigns, page, err := svc.ListCampaigns(ctx, 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, map[string]int{"page": 2, "page_size": 2, "total_count": 5, "total_pages": 3}, page)

	campaigns, page, err = svc.ListCampaigns(ctx, 0, 1000, "draft")
	require.NoError(t, err)
	assert.Len(t, campaigns, 5)
	assert.Equal(t, 1, page["page"])
	assert.Equal(t, maxPageSize, page["page_size"])

	campaigns, page, err = svc.ListCampaigns(ctx, 1, 10, "RUNNING")
	require.NoError(t, err)
	assert.Empty(t, campaigns)
	assert.Equal(t, 0, page["total_pages"])
}

func TestGetCampaignDetailsWithStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)
	_, err := env.deliver(t, postCall(t, "conv-1", tg, "completed", booked("2024-03-01", "10:00")))
	require.NoError(t, err)

	details, err := env.campaigns().GetCampaignDetailsWithStats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, details.ID)
	assert.Equal(t, 1, details.Stats.Total)
	assert.Equal(t, 1, details.Stats.Done)
	assert.Equal(t, 1, details.Stats.Booked)

	_, err = env.campaigns().GetCampaignDetailsWithStats(ctx, 404)
	assert.True(t, appErrors.IsNotFound(err))

	targets, page, err := env.campaigns().ListTargets(ctx, c.ID, "done", 1, 10)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
	assert.Equal(t, 1, page["total_count"])
}

func TestResetCampaign_OnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 3)

	_, err := env.campaigns().ResetCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, appErrors.ErrCampaignNotFailed)
}
