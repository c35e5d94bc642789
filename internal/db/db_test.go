package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory_AppliesSchema(t *testing.T) {
	ctx := context.Background()
	conn, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{
		"campaigns", "customers", "vehicles", "campaign_targets", "calls",
		"dnc_entries", "appointments", "audit_logs", "processed_webhooks",
	} {
		var n int
		err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1`, table,
		).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	// idempotent
	require.NoError(t, Migrate(ctx, conn, "sqlite3"))
}

func TestOpenMemory_IsolatedPerCall(t *testing.T) {
	ctx := context.Background()
	a, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.ExecContext(ctx, `INSERT INTO processed_webhooks (webhook_id, processed_at) VALUES ('x', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, b.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_webhooks`).Scan(&n))
	assert.Equal(t, 0, n)
}
