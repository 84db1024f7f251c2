package idempotency

import (
	"context"
	"time"

	"veritas/pkg/domain"
)

// Store persists idempotency records. Admission correctness hangs on the
// store-level uniqueness of ExternalEventID: Insert must fail with
// sentinel.ErrDuplicate when the key exists, so concurrent delivery of the
// same external ID resolves deterministically at the constraint, not in
// process memory.
type Store interface {
	// Insert creates the record for a first sighting.
	// Returns sentinel.ErrDuplicate if the external ID is already admitted.
	Insert(ctx context.Context, record Record) error

	// Get returns the record for an external ID, or sentinel.ErrNotFound.
	Get(ctx context.Context, externalEventID domain.ExternalEventID) (*Record, error)

	// Complete stamps the terminal outcome and result snapshot exactly once.
	// Returns sentinel.ErrInvalidState if the record is already terminal.
	Complete(ctx context.Context, externalEventID domain.ExternalEventID, outcome string, snapshot []byte, at time.Time) error

	// Delete removes a non-terminal record so a fatally failed attempt can
	// be retried by redelivery. Terminal records are never deleted.
	Delete(ctx context.Context, externalEventID domain.ExternalEventID) error
}
