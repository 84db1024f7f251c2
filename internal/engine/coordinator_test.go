package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/store/memory"
)

func testCoordinator() (*Coordinator, *memory.InMemoryStore) {
	store := memory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := audit.NewWriter(store, logger)
	return NewCoordinator(writer, logger, nil), store
}

func testUnit() *TransactionUnit {
	return NewTransactionUnit(domain.NewUnitID(), "corr-1")
}

func eventTypes(t *testing.T, store *memory.InMemoryStore, chain domain.CorrelationID) []audit.EventType {
	t.Helper()
	events, err := store.ListByCorrelation(context.Background(), chain)
	require.NoError(t, err)
	types := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestExecuteSuccess(t *testing.T) {
	ctx := context.Background()
	coordinator, store := testCoordinator()
	session := NewMemorySession()
	unit := testUnit()

	outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		session.Put("balance", "100")
		return OutcomeSuccess, nil
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.False(t, session.InTransaction())

	value, ok := session.Committed("balance")
	require.True(t, ok, "successful outcome must be durable")
	assert.Equal(t, "100", value)
	assert.Equal(t, []audit.EventType{audit.EventUnitCommitted}, eventTypes(t, store, unit.CorrelationID))
}

func TestExecuteBusinessError(t *testing.T) {
	ctx := context.Background()
	coordinator, store := testCoordinator()
	session := NewMemorySession()
	unit := testUnit()

	outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		session.Put("balance", "100")
		unit.SetReason("insufficient_funds")
		return OutcomeBusinessError, nil
	})

	require.NoError(t, err, "business rejection is a normal outcome, not an error")
	assert.Equal(t, OutcomeBusinessError, outcome)
	assert.False(t, session.InTransaction())

	_, ok := session.Committed("balance")
	assert.False(t, ok, "rejected writes must not be durable")

	events, listErr := store.ListByCorrelation(ctx, unit.CorrelationID)
	require.NoError(t, listErr)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventBusinessError, events[0].Type)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
	assert.Equal(t, "insufficient_funds", events[0].Payload["reason"])
}

func TestExecuteFatalError(t *testing.T) {
	ctx := context.Background()

	t.Run("declared fatal rolls back and escalates", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		unit := testUnit()
		cause := errors.New("downstream exploded")

		outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			session.Put("balance", "100")
			return OutcomeFatalError, cause
		})

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeFatal))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())

		_, ok := session.Committed("balance")
		assert.False(t, ok)
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventUnitFailed)
	})

	t.Run("panic in work maps to fatal", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		unit := testUnit()

		outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			panic("boom")
		})

		require.Error(t, err)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventUnitFailed)
	})

	t.Run("unknown outcome maps to fatal", func(t *testing.T) {
		coordinator, _ := testCoordinator()
		session := NewMemorySession()

		outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			return Outcome("sideways"), nil
		})

		require.Error(t, err)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())
	})

	t.Run("cancelled context overrides the declared outcome", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		unit := testUnit()

		cancelCtx, cancel := context.WithCancel(ctx)
		outcome, err := coordinator.Execute(cancelCtx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			cancel()
			return OutcomeSuccess, nil
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())

		events, listErr := store.ListByCorrelation(ctx, unit.CorrelationID)
		require.NoError(t, listErr)
		require.Len(t, events, 1)
		assert.Equal(t, "cancelled", events[0].Payload["reason"])
	})
}

func TestExecuteSessionFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("begin failure is fatal", func(t *testing.T) {
		coordinator, _ := testCoordinator()
		session := NewMemorySession()
		session.FailBegin = errors.New("no connection")

		outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			t.Fatal("work must not run when begin fails")
			return OutcomeSuccess, nil
		})

		require.Error(t, err)
		assert.Equal(t, OutcomeFatalError, outcome)
	})

	t.Run("flush failure overrides a declared success", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		session.FailFlush = errors.New("deferred constraint violated")
		unit := testUnit()

		outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			session.Put("balance", "100")
			return OutcomeSuccess, nil
		})

		require.Error(t, err)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())

		_, ok := session.Committed("balance")
		assert.False(t, ok, "flush failure must not commit")
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventUnitFailed)
	})

	t.Run("commit failure never reports silent success", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		session.FailCommit = errors.New("connection reset during commit")
		unit := testUnit()

		outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			session.Put("balance", "100")
			return OutcomeSuccess, nil
		})

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeFatal))
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())

		_, ok := session.Committed("balance")
		assert.False(t, ok)
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventUnitFailed)
	})

	t.Run("release failure rolls the unit back", func(t *testing.T) {
		coordinator, _ := testCoordinator()
		session := NewMemorySession()
		session.FailRelease = errors.New("savepoint gone")

		outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			session.Put("balance", "100")
			return OutcomeSuccess, nil
		})

		require.Error(t, err)
		assert.Equal(t, OutcomeFatalError, outcome)
		assert.False(t, session.InTransaction())
		_, ok := session.Committed("balance")
		assert.False(t, ok)
	})

	t.Run("rollback failure on the reject branch still reports rejected", func(t *testing.T) {
		coordinator, store := testCoordinator()
		session := NewMemorySession()
		session.FailRollback = errors.New("rollback refused")
		unit := testUnit()

		outcome, err := coordinator.Execute(ctx, session, unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
			unit.SetReason("limit_exceeded")
			return OutcomeBusinessError, nil
		})

		require.NoError(t, err, "a failed rollback is audited, not escalated")
		assert.Equal(t, OutcomeBusinessError, outcome)
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventRollbackFailed)
		assert.Contains(t, eventTypes(t, store, unit.CorrelationID), audit.EventBusinessError)
	})
}

func TestExecuteJoinsExistingTransaction(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := testCoordinator()
	session := NewMemorySession()

	// An outer owner opened the transaction before the coordinator runs.
	owned, err := session.Begin(ctx)
	require.NoError(t, err)
	require.True(t, owned)
	session.Put("outer", "1")

	outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		session.Put("inner", "2")
		return OutcomeSuccess, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	// The coordinator joined, so the outer transaction stays open and
	// nothing is durable until the owner commits.
	assert.True(t, session.InTransaction())
	_, durable := session.Committed("inner")
	assert.False(t, durable)

	require.NoError(t, session.Commit(ctx))
	inner, ok := session.Committed("inner")
	require.True(t, ok)
	assert.Equal(t, "2", inner)
	outer, ok := session.Committed("outer")
	require.True(t, ok)
	assert.Equal(t, "1", outer)
}

func TestExecuteNestedRollbackPreservesOuterWrites(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := testCoordinator()
	session := NewMemorySession()

	owned, err := session.Begin(ctx)
	require.NoError(t, err)
	require.True(t, owned)
	session.Put("outer", "kept")

	outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		session.Put("inner", "discarded")
		unit.SetReason("rule_violation")
		return OutcomeBusinessError, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBusinessError, outcome)

	// Rolling back the unit's savepoint must not touch the outer write.
	assert.True(t, session.InTransaction())
	_, found := session.Get("inner")
	assert.False(t, found)
	outer, ok := session.Get("outer")
	require.True(t, ok)
	assert.Equal(t, "kept", outer)
}

func TestExecuteAuditFailureDoesNotAbortUnit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := audit.NewWriter(store, logger)
	coordinator := NewCoordinator(writer, logger, nil)
	store.FailAppendWith(errors.New("audit store down"))

	session := NewMemorySession()
	outcome, err := coordinator.Execute(ctx, session, testUnit(), func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		session.Put("balance", "100")
		return OutcomeSuccess, nil
	})

	require.NoError(t, err, "audit append failure must never fail the business unit")
	assert.Equal(t, OutcomeSuccess, outcome)
	value, ok := session.Committed("balance")
	require.True(t, ok)
	assert.Equal(t, "100", value)
}
