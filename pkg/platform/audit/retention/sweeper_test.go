package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("deletes only events past their category retention", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		clock := now.Add(-100 * 24 * time.Hour) // operations events 100 days old
		writer := audit.NewWriter(store, testLogger(), audit.WithClock(func() time.Time { return clock }))

		_, err := writer.Append(ctx, "retained", audit.EventStageAdvanced, audit.SeverityInfo, nil)
		require.NoError(t, err)
		clock = now.Add(-time.Hour)
		_, err = writer.Append(ctx, "retained", audit.EventUnitCommitted, audit.SeverityInfo, nil)
		require.NoError(t, err)

		sweeper := NewSweeper(DefaultPolicy(), store, writer, testLogger())
		deleted, err := sweeper.Sweep(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		remaining, err := store.ListByCorrelation(ctx, "retained")
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, audit.EventUnitCommitted, remaining[0].Type)
	})

	t.Run("records the sweep on its own audit chain", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		writer := audit.NewWriter(store, testLogger())
		sweeper := NewSweeper(DefaultPolicy(), store, writer, testLogger())

		_, err := sweeper.Sweep(ctx, now)
		require.NoError(t, err)

		trail, err := store.ListByCorrelation(ctx, "retention-sweep")
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, audit.EventRetentionSweep, trail[0].Type)
		assert.Equal(t, "0", trail[0].Payload["deleted"])
	})

	t.Run("nothing expired deletes nothing", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		writer := audit.NewWriter(store, testLogger())
		_, err := writer.Append(ctx, "fresh", audit.EventUnitCommitted, audit.SeverityInfo, nil)
		require.NoError(t, err)

		sweeper := NewSweeper(DefaultPolicy(), store, nil, testLogger())
		deleted, err := sweeper.Sweep(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}
