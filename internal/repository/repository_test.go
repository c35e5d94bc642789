package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/voiceops-backend/internal/db"
	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedCampaign(t *testing.T, conn *sql.DB) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		OrgID:    1,
		Name:     "Ready for pickup",
		Schedule: model.DefaultScheduleWindow(),
		Retry:    model.DefaultRetryPolicy(),
	}
	require.NoError(t, (&CampaignRepository{DB: conn}).Create(context.Background(), c))
	return c
}

func seedCustomer(t *testing.T, conn *sql.DB, phone string) *model.Customer {
	t.Helper()
	c, err := (&CustomerRepository{DB: conn}).FindOrCreate(context.Background(),
		&model.Customer{OrgID: 1, FullName: "Ada Lovelace", PhoneE164: phone})
	require.NoError(t, err)
	return c
}

func TestCampaignRepository_RoundTripAndTransition(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &CampaignRepository{DB: conn}
	c := seedCampaign(t, conn)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, got.Status)
	assert.Equal(t, 4*time.Hour, got.Retry.RetryDelay)
	assert.Equal(t, []string{"MON", "TUE", "WED", "THU", "FRI"}, got.Schedule.Days)

	require.NoError(t, repo.Transition(ctx, c.ID, model.CampaignReady, model.CampaignDraft))

	err = repo.Transition(ctx, c.ID, model.CampaignReady, model.CampaignDraft)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)

	require.NoError(t, repo.MarkRunning(ctx, c.ID, "batch-1", model.CampaignReady, model.CampaignPaused))
	got, err = repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, got.Status)
	require.NotNil(t, got.ExternalBatchID)
	assert.Equal(t, "batch-1", *got.ExternalBatchID)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestTargetRepository_InsertIsUniquePerCampaign(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &TargetRepository{DB: conn}
	c := seedCampaign(t, conn)
	cu := seedCustomer(t, conn, "+15551230000")

	created, err := repo.Insert(ctx, &model.CampaignTarget{CampaignID: c.ID, CustomerID: cu.ID})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, &model.CampaignTarget{CampaignID: c.ID, CustomerID: cu.ID})
	require.NoError(t, err)
	assert.False(t, created)

	targets, total, err := repo.ListByCampaign(ctx, c.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, targets, 1)
	assert.Equal(t, model.TargetPending, targets[0].Status)
}

func TestTargetRepository_ListDueAndApplyUpdate(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &TargetRepository{DB: conn}
	c := seedCampaign(t, conn)
	cu := seedCustomer(t, conn, "+15551230000")

	target := &model.CampaignTarget{CampaignID: c.ID, CustomerID: cu.ID}
	_, err := repo.Insert(ctx, target)
	require.NoError(t, err)

	now := time.Now().UTC()
	due, err := repo.ListDueContacts(ctx, c.ID, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "+15551230000", due[0].Customer.PhoneE164)
	assert.Nil(t, due[0].Vehicle)

	require.NoError(t, repo.MarkInProgress(ctx, target))
	assert.Equal(t, model.TargetInProgress, target.Status)

	next := now.Add(time.Hour)
	stale := *target
	require.NoError(t, repo.ApplyUpdate(ctx, target, model.TargetUpdate{
		Status:        model.TargetPending,
		AttemptsCount: 1,
		LastAttemptAt: now,
		NextAttemptAt: &next,
		LastOutcome:   model.OutcomeNoAnswer,
	}))

	// a writer holding the old attempt count loses
	err = repo.ApplyUpdate(ctx, &stale, model.TargetUpdate{Status: model.TargetFailed, AttemptsCount: 1, LastAttemptAt: now})
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)

	due, err = repo.ListDueContacts(ctx, c.ID, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "next attempt is in the future")

	due, err = repo.ListDueContacts(ctx, c.ID, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	n, err := repo.CountNonTerminal(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTargetRepository_MarkInProgressRejectsStaleAttempts(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &TargetRepository{DB: conn}
	c := seedCampaign(t, conn)
	cu := seedCustomer(t, conn, "+15551230001")

	target := &model.CampaignTarget{CampaignID: c.ID, CustomerID: cu.ID}
	_, err := repo.Insert(ctx, target)
	require.NoError(t, err)
	stale := *target

	// an attempt recorded after the target was read keeps it PENDING
	now := time.Now().UTC()
	require.NoError(t, repo.ApplyUpdate(ctx, target, model.TargetUpdate{
		Status:        model.TargetPending,
		AttemptsCount: 1,
		LastAttemptAt: now,
		LastOutcome:   model.OutcomeBusy,
	}))

	err = repo.MarkInProgress(ctx, &stale)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)
	assert.Equal(t, model.TargetPending, stale.Status)

	got, err := repo.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TargetPending, got.Status)
	assert.Equal(t, 1, got.AttemptsCount)
}

func TestDncRepository_InsertIfAbsentAndExpiry(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &DncRepository{DB: conn}
	now := time.Now().UTC()

	created, err := repo.Insert(ctx, &model.DncEntry{OrgID: 1, PhoneE164: "+15551230000", Source: model.DncSourceAICall})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, &model.DncEntry{OrgID: 1, PhoneE164: "+15551230000", Source: model.DncSourceManual})
	require.NoError(t, err)
	assert.False(t, created)

	blocked, err := repo.IsBlocked(ctx, 1, "+15551230000", now)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = repo.IsBlocked(ctx, 2, "+15551230000", now)
	require.NoError(t, err)
	assert.False(t, blocked, "dnc is scoped to the org")

	past := now.Add(-time.Hour)
	_, err = repo.Insert(ctx, &model.DncEntry{OrgID: 3, PhoneE164: "+15550000000", Source: model.DncSourceManual, ExpiresAt: &past})
	require.NoError(t, err)
	blocked, err = repo.IsBlocked(ctx, 3, "+15550000000", now)
	require.NoError(t, err)
	assert.False(t, blocked)

	created, err = repo.Insert(ctx, &model.DncEntry{OrgID: 3, PhoneE164: "+15550000000", Source: model.DncSourceAICall})
	require.NoError(t, err)
	assert.True(t, created, "an expired entry is refreshed")

	entries, total, err := repo.ListByOrg(ctx, 3, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Nil(t, entries[0].ExpiresAt)
}

func TestWebhookRepository_MarkAndPrune(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &WebhookRepository{DB: conn}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ok, err := repo.MarkProcessed(ctx, fmt.Sprintf("conv-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := repo.MarkProcessed(ctx, "conv-0", base)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := repo.Prune(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	for i, want := range []bool{false, false, true, true, true} {
		got, err := repo.IsProcessed(ctx, fmt.Sprintf("conv-%d", i))
		require.NoError(t, err)
		assert.Equal(t, want, got, "conv-%d", i)
	}
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &WebhookRepository{DB: conn}
	boom := errors.New("boom")

	err := WithTransaction(ctx, conn, func(txCtx context.Context) error {
		assert.True(t, InTransaction(txCtx))
		_, err := repo.MarkProcessed(txCtx, "conv-1", time.Now())
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	processed, err := repo.IsProcessed(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestCallRepository_ReconcileOnce(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &CallRepository{DB: conn}
	cu := seedCustomer(t, conn, "+15551230000")

	call := &model.Call{OrgID: 1, CustomerID: cu.ID, Status: model.CallQueued}
	require.NoError(t, repo.Insert(ctx, call))

	conv := "conv-1"
	transcript := "agent: hello"
	outcome := model.OutcomeBooked
	call.ExternalConversationID = &conv
	call.Transcript = &transcript
	call.Outcome = &outcome
	call.Status = model.CallCompleted
	call.Extracted = model.ExtractedFields{PickupDate: "2024-03-01", PickupTime: "10:00"}
	require.NoError(t, repo.ApplyReconciliation(ctx, call))

	call.ReconciledAt = nil
	assert.ErrorIs(t, repo.ApplyReconciliation(ctx, call), appErrors.ErrConcurrentUpdate)

	got, err := repo.GetByConversationID(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.CallCompleted, got.Status)
	assert.Equal(t, "2024-03-01", got.Extracted.PickupDate)
	assert.NotNil(t, got.ReconciledAt)

	written, err := repo.SetEnrichment(ctx, call.ID, "Booked pickup", &model.Enrichment{KeyPoints: []string{"pickup friday"}})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.SetEnrichment(ctx, call.ID, "Other summary", nil)
	require.NoError(t, err)
	assert.False(t, written, "summary is write-once")

	got, err = repo.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "Booked pickup", *got.Summary)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, []string{"pickup friday"}, got.Enrichment.KeyPoints)
}

func TestCallRepository_DuplicateConversationIsConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := &CallRepository{DB: conn}
	cu := seedCustomer(t, conn, "+15551230000")

	conv := "conv-dup"
	require.NoError(t, repo.Insert(ctx, &model.Call{OrgID: 1, CustomerID: cu.ID, Status: model.CallCompleted, ExternalConversationID: &conv}))

	err := repo.Insert(ctx, &model.Call{OrgID: 1, CustomerID: cu.ID, Status: model.CallCompleted, ExternalConversationID: &conv})
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)
}
