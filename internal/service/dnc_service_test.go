package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
)

func TestDncService_AddListAndExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := &DncService{Stores: env.stores, DefaultRegion: "US", Log: env.log, Now: env.clock}

	entry, created, err := svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "(555) 123-0000", Reason: "asked by email"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "+15551230000", entry.PhoneE164)

	_, created, err = svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230000"})
	require.NoError(t, err)
	assert.False(t, created)

	// an entry that already lapsed neither blocks nor stops a new one
	lapsed := testNow.Add(-time.Hour)
	_, created, err = svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230001", ExpiresAt: &lapsed})
	require.NoError(t, err)
	assert.True(t, created)
	blocked, err := svc.IsBlocked(ctx, 1, "+15551230001")
	require.NoError(t, err)
	assert.False(t, blocked)
	_, created, err = svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230001"})
	require.NoError(t, err)
	assert.True(t, created)
	blocked, err = svc.IsBlocked(ctx, 1, "+15551230001")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = svc.IsBlocked(ctx, 2, "+15551230000")
	require.NoError(t, err)
	assert.False(t, blocked, "entries are scoped to an org")

	_, _, err = svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "nope"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidPhone)

	entries, page, err := svc.List(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 2, page["total_count"])
	assert.Equal(t, 2, page["total_pages"])

	assert.Equal(t, 3, env.count(t, `SELECT COUNT(*) FROM audit_logs WHERE action = 'DNC_ADDED'`))
}

func TestDncService_ExportSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := &DncService{Stores: env.stores, DefaultRegion: "US", Log: env.log, Now: env.clock}

	_, _, err := svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230000"})
	require.NoError(t, err)
	lapsed := testNow.Add(-time.Minute)
	_, _, err = svc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230001", ExpiresAt: &lapsed})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshots", "dnc.json")
	n, err := svc.ExportSnapshot(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap dncSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, 1, snap.Count)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "+15551230000", snap.Entries[0].PhoneE164)
}
