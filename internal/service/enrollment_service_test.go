package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

func TestEnroll_ReportsDncDuplicatesAndInvalidRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 3)

	_, err := env.stores.Dnc.Insert(ctx, &model.DncEntry{OrgID: 1, PhoneE164: "+15551230009", Source: model.DncSourceManual})
	require.NoError(t, err)

	res, err := env.enrollment().Enroll(ctx, c.ID, []model.TargetInput{
		{Phone: "+15551230000", FullName: "Ada", VehicleMake: "Honda", VehicleModel: "Civic"},
		{Phone: "555-123-0000", FullName: "Ada again"},
		{Phone: "+1 555 123 0009", FullName: "Blocked"},
		{Phone: "not a phone"},
		{Phone: "+15551230001", FullName: "Grace"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.SkippedDuplicate)
	assert.Equal(t, 1, res.SkippedDNC)
	require.Len(t, res.Rejected, 3)
	assert.Equal(t, model.EnrollmentRejection{Row: 2, Phone: "+15551230000", Reason: model.RejectDuplicate}, res.Rejected[0])
	assert.Equal(t, model.EnrollmentRejection{Row: 3, Phone: "+15551230009", Reason: model.RejectDNC}, res.Rejected[1])
	assert.Equal(t, model.RejectInvalid, res.Rejected[2].Reason)
	assert.Len(t, res.Errors, 1)

	got, err := env.stores.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignReady, got.Status)

	customer, err := env.stores.Customers.GetByPhone(ctx, 1, "+15551230009")
	require.NoError(t, err)
	assert.Nil(t, customer, "a DNC row must not create a customer either")
}

func TestEnroll_ClosedOnceRunning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, _ := env.enrollOne(t, "+15551230000", 3)
	_, err := env.starter().StartCampaign(ctx, c.ID)
	require.NoError(t, err)

	_, err = env.enrollment().Enroll(ctx, c.ID, []model.TargetInput{{Phone: "+15551230001"}})
	assert.ErrorIs(t, err, appErrors.ErrEnrollmentClosed)
}

func TestEnroll_EmptyUploadLeavesDraft(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := env.createCampaign(t, 3)

	res, err := env.enrollment().Enroll(ctx, c.ID, []model.TargetInput{{Phone: "12"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)

	got, err := env.stores.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, got.Status)
}
