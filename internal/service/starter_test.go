package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

func TestStartCampaign_ProviderFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)
	env.provider.err = errors.New("connection refused")

	_, err := env.starter().StartCampaign(ctx, c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	got, err := env.stores.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignFailed, got.Status)
	assert.Equal(t, model.TargetPending, env.target(t, tg.ID).Status)
	assert.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM calls`))
	assert.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM audit_logs WHERE action = $1`, model.AuditCampaignStartFailed))

	// an operator resets and starts again once the provider is back
	env.provider.err = nil
	_, err = env.campaigns().ResetCampaign(ctx, c.ID)
	require.NoError(t, err)
	res, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Status)
	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, model.TargetInProgress, env.target(t, tg.ID).Status)
}

func TestStartCampaign_WebhookBeforeBatchResponse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)
	env.provider.onBatch = func() {
		res, err := env.deliver(t, postCall(t, "conv-early", tg, "no_answer", nil))
		require.NoError(t, err)
		require.Equal(t, ReconcileProcessed, res.Status)
	}

	res, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Status)
	assert.Equal(t, 0, res.Dispatched)

	got := env.target(t, tg.ID)
	assert.Equal(t, model.TargetPending, got.Status)
	assert.Equal(t, 1, got.AttemptsCount)
	require.NotNil(t, got.NextAttemptAt)
	assert.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM calls WHERE status = 'QUEUED'`))
	assert.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM calls`))

	// the retry is picked up once it is due
	env.provider.onBatch = nil
	env.clock = func() time.Time { return got.NextAttemptAt.Add(time.Minute) }
	n, err := env.starter().DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TargetInProgress, env.target(t, tg.ID).Status)
}

func TestStartCampaign_TerminalWebhookBeforeBatchResponseCompletes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)
	env.provider.onBatch = func() {
		_, err := env.deliver(t, postCall(t, "conv-early", tg, "completed", map[string]any{
			"appointment_booked": true, "pickup_date": "2024-03-01", "pickup_time": "10:00",
		}))
		require.NoError(t, err)
	}

	res, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, res.Status)
	assert.Equal(t, model.TargetDone, env.target(t, tg.ID).Status)
	assert.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM calls WHERE status = 'QUEUED'`))

	got, err := env.stores.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, got.Status)
}

func TestStartCampaign_RequiresStartableStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 3)

	_, err := env.starter().StartCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, appErrors.ErrCampaignNotStartable)

	_, err = env.starter().StartCampaign(ctx, 404)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Empty(t, env.provider.requests)
}

func TestStartCampaign_SkipsNumbersAddedToDncAfterEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 3)
	_, err := env.enrollment().Enroll(ctx, c.ID, []model.TargetInput{
		{Phone: "+15551230000", FullName: "Ada"},
		{Phone: "+15551230001", FullName: "Grace"},
	})
	require.NoError(t, err)

	_, err = env.stores.Dnc.Insert(ctx, &model.DncEntry{OrgID: 1, PhoneE164: "+15551230001", Source: model.DncSourceManual})
	require.NoError(t, err)

	res, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Equal(t, 1, res.OptedOut)
	require.Len(t, env.provider.requests, 1)
	require.Len(t, env.provider.requests[0].Recipients, 1)
	assert.Equal(t, "+15551230000", env.provider.requests[0].Recipients[0].PhoneNumber)

	stats, err := env.stores.Campaigns.Stats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OptedOut)
	assert.Equal(t, 1, stats.InProgress)
}

func TestStartCampaign_LockedCampaignIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, _ := env.enrollOne(t, "+15551230000", 3)

	unlock, err := env.locks.TryLock(ctx, campaignLockKey(c.ID))
	require.NoError(t, err)
	_, err = env.starter().StartCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, appErrors.ErrCampaignLocked)
	unlock()

	_, err = env.starter().StartCampaign(ctx, c.ID)
	assert.NoError(t, err)
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)

	_, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)

	paused, err := env.campaigns().PauseCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignPaused, paused.Status)
	assert.Equal(t, []string{"batch-1"}, env.provider.cancelled)

	_, err = env.campaigns().PauseCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, appErrors.ErrCampaignNotRunning)

	// the only target is still in flight, so resuming dials nobody
	res, err := env.starter().ResumeCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Status)
	assert.Equal(t, 0, res.Dispatched)
	assert.Len(t, env.provider.requests, 1)
	assert.Equal(t, model.TargetInProgress, env.target(t, tg.ID).Status)

	_, err = env.starter().ResumeCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, appErrors.ErrCampaignNotStartable)
}

func TestDispatchDue_SendsRetriesForRunningCampaigns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, tg := env.enrollOne(t, "+15551230000", 3)

	_, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	_, err = env.deliver(t, postCall(t, "conv-1", tg, "no_answer", nil))
	require.NoError(t, err)

	retry := env.target(t, tg.ID)
	require.Equal(t, model.TargetPending, retry.Status)
	require.NotNil(t, retry.NextAttemptAt)

	// not due yet
	n, err := env.starter().DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	later := env.starter()
	later.Now = func() time.Time { return retry.NextAttemptAt.Add(time.Minute) }
	n, err = later.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, env.provider.requests, 2)
	assert.Equal(t, model.TargetInProgress, env.target(t, tg.ID).Status)
}
