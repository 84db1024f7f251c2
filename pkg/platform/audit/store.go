package audit

import (
	"context"
	"time"

	"veritas/pkg/domain"
)

// Store persists audit events. The interface is append-only on purpose:
// no update or delete method exists, so no caller holding a Store can target
// recorded history. Expiry goes through the retention package's privileged
// store, which is wired only into the scheduled sweep job.
type Store interface {
	// Append writes a fully hashed event. Implementations must reject an
	// (correlation_id, event_id) pair that already exists with
	// sentinel.ErrDuplicate so the writer can re-read the chain head and retry.
	Append(ctx context.Context, event Event) error

	// LatestInChain returns the newest event for a correlation ID, or
	// sentinel.ErrNotFound when the chain has no events yet.
	LatestInChain(ctx context.Context, correlationID domain.CorrelationID) (*Event, error)

	// ListByCorrelation returns a chain's events ordered by EventID ascending.
	ListByCorrelation(ctx context.Context, correlationID domain.CorrelationID) ([]Event, error)

	// ListByTimeRange returns events across chains ordered by timestamp.
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]Event, error)

	// ListByTypes returns events matching any of the given types, newest first.
	ListByTypes(ctx context.Context, types []EventType, limit int) ([]Event, error)
}
