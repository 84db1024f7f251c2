package idempotency

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/sentinel"
)

func guardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("first sighting is fresh with a minted unit id", func(t *testing.T) {
		guard := NewGuard(NewInMemoryStore(), guardLogger())
		admission, err := guard.Admit(ctx, "evt-1")
		require.NoError(t, err)
		assert.True(t, admission.Fresh)
		assert.False(t, admission.UnitID.IsNil())
		assert.Nil(t, admission.Prior)
	})

	t.Run("second sighting is redirected to the prior record", func(t *testing.T) {
		guard := NewGuard(NewInMemoryStore(), guardLogger())
		first, err := guard.Admit(ctx, "evt-2")
		require.NoError(t, err)

		second, err := guard.Admit(ctx, "evt-2")
		require.NoError(t, err)
		assert.False(t, second.Fresh)
		require.NotNil(t, second.Prior)
		assert.Equal(t, first.UnitID, second.Prior.UnitID)
	})

	t.Run("store outage is fatal", func(t *testing.T) {
		store := NewInMemoryStore()
		store.FailWith(sentinel.ErrUnavailable)
		guard := NewGuard(store, guardLogger())

		_, err := guard.Admit(ctx, "evt-3")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeFatal))
	})
}

func TestGuardAdmitConcurrent(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewInMemoryStore(), guardLogger())

	const deliveries = 32
	admissions := make([]Admission, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			admissions[i], errs[i] = guard.Admit(ctx, "evt-race")
		}()
	}
	wg.Wait()

	var fresh int
	var winner domain.UnitID
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		if admissions[i].Fresh {
			fresh++
			winner = admissions[i].UnitID
		}
	}
	require.Equal(t, 1, fresh, "exactly one delivery may win admission")

	for i := 0; i < deliveries; i++ {
		if !admissions[i].Fresh {
			require.NotNil(t, admissions[i].Prior)
			assert.Equal(t, winner, admissions[i].Prior.UnitID)
		}
	}
}

func TestGuardComplete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	guard := NewGuard(NewInMemoryStore(), guardLogger(), WithClock(func() time.Time { return now }))

	admission, err := guard.Admit(ctx, "evt-done")
	require.NoError(t, err)
	require.True(t, admission.Fresh)

	require.NoError(t, guard.Complete(ctx, "evt-done", "committed", []byte(`{"status":"committed"}`)))

	replay, err := guard.Admit(ctx, "evt-done")
	require.NoError(t, err)
	assert.False(t, replay.Fresh)
	require.NotNil(t, replay.Prior)
	assert.True(t, replay.Prior.Terminal())
	assert.Equal(t, "committed", replay.Prior.Outcome)
	assert.Equal(t, now, replay.Prior.CompletedAt)

	t.Run("a second completion is rejected", func(t *testing.T) {
		err := guard.Complete(ctx, "evt-done", "rejected", nil)
		require.Error(t, err)
	})
}

func TestGuardRelease(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	guard := NewGuard(store, guardLogger())

	t.Run("released admission can be retried", func(t *testing.T) {
		first, err := guard.Admit(ctx, "evt-retry")
		require.NoError(t, err)
		require.True(t, first.Fresh)

		guard.Release(ctx, "evt-retry")

		second, err := guard.Admit(ctx, "evt-retry")
		require.NoError(t, err)
		assert.True(t, second.Fresh)
		assert.NotEqual(t, first.UnitID, second.UnitID)
	})

	t.Run("terminal records survive release", func(t *testing.T) {
		admission, err := guard.Admit(ctx, "evt-final")
		require.NoError(t, err)
		require.True(t, admission.Fresh)
		require.NoError(t, guard.Complete(ctx, "evt-final", "committed", []byte(`{}`)))

		guard.Release(ctx, "evt-final")

		replay, err := guard.Admit(ctx, "evt-final")
		require.NoError(t, err)
		assert.False(t, replay.Fresh)
		assert.True(t, replay.Prior.Terminal())
	})
}
