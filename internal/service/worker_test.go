package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(env *testEnv) *Worker {
	dnc := &DncService{Stores: env.stores, DefaultRegion: "US", Log: env.log, Now: env.clock}
	return NewWorker(env.starter(), dnc, env.stores.Webhooks, env.log)
}

func TestWorker_PruneDedupKeepsNewest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		_, err := env.stores.Webhooks.MarkProcessed(ctx, fmt.Sprintf("conv-%d", i), testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	w := newTestWorker(env)
	w.DedupKeep = 2
	require.NoError(t, w.PruneDedup(ctx))

	assert.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM processed_webhooks`))
	for _, id := range []string{"conv-3", "conv-4"} {
		ok, err := env.stores.Webhooks.IsProcessed(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestWorker_SnapshotDnc(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	w := newTestWorker(env)

	assert.NoError(t, w.SnapshotDnc(ctx), "no path configured is a no-op")

	w.SnapshotPath = filepath.Join(t.TempDir(), "dnc.json")
	_, _, err := w.Dnc.Add(ctx, AddDncInput{OrgID: 1, Phone: "+15551230000"})
	require.NoError(t, err)
	require.NoError(t, w.SnapshotDnc(ctx))

	raw, err := os.ReadFile(w.SnapshotPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "+15551230000")
}

func TestWorker_DispatchRetriesWithNothingRunning(t *testing.T) {
	env := newTestEnv(t)
	w := newTestWorker(env)
	assert.NoError(t, w.DispatchRetries(context.Background()))
	assert.Empty(t, env.provider.requests)
}

func TestWorker_Schedule(t *testing.T) {
	env := newTestEnv(t)
	w := newTestWorker(env)

	err := w.Schedule(context.Background(), Schedule{RetryDispatch: "every tuesday"})
	assert.Error(t, err)

	require.NoError(t, w.Schedule(context.Background(), Schedule{
		RetryDispatch: "@every 5m",
		DedupPrune:    "@hourly",
	}))
	assert.Len(t, w.cron.Entries(), 2)

	w.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}
