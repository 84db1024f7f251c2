// Package idempotency deduplicates inbound events by their stable external
// identifier before any business mutation is applied. Admission is atomic
// with duplicate suppression: the store's uniqueness constraint decides who
// processes an external ID first, even under concurrent delivery, so there
// is no window in which two units can process the same ID to completion.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/sentinel"
)

// Guard owns IdempotencyRecord creation. Nothing else in the system may
// insert into the idempotency store.
type Guard struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	clock  func() time.Time
}

// GuardOption configures the Guard.
type GuardOption func(*Guard)

// WithCache wires the best-effort replay cache.
func WithCache(cache *Cache) GuardOption {
	return func(g *Guard) { g.cache = cache }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) GuardOption {
	return func(g *Guard) { g.clock = clock }
}

// NewGuard creates the idempotency guard.
func NewGuard(store Store, logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{store: store, logger: logger, clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decides, atomically with the store's uniqueness constraint, whether
// this delivery is the first sighting of the external ID. The winner gets a
// freshly minted unit ID; every loser is redirected to the winner's record.
//
// A store outage during admission is a fatal error: the engine rejects the
// delivery and lets the external transport retry, rather than guessing.
func (g *Guard) Admit(ctx context.Context, externalEventID domain.ExternalEventID) (Admission, error) {
	if cached := g.cache.Lookup(ctx, externalEventID); cached != nil {
		return Admission{Prior: cached}, nil
	}

	record := Record{
		ExternalEventID: externalEventID,
		UnitID:          domain.NewUnitID(),
		CreatedAt:       g.clock(),
	}
	err := g.store.Insert(ctx, record)
	if err == nil {
		return Admission{Fresh: true, UnitID: record.UnitID}, nil
	}
	if !errors.Is(err, sentinel.ErrDuplicate) {
		return Admission{}, dErrors.Wrap(err, dErrors.CodeFatal, "idempotency store unavailable")
	}

	prior, getErr := g.store.Get(ctx, externalEventID)
	if getErr != nil {
		return Admission{}, dErrors.Wrap(getErr, dErrors.CodeFatal, "read prior idempotency record")
	}
	if g.cache != nil && prior.Terminal() {
		g.cache.Store(ctx, *prior)
	}
	return Admission{Prior: prior}, nil
}

// Complete stamps the terminal outcome and the result snapshot replays will
// receive. The record is immutable afterward.
func (g *Guard) Complete(ctx context.Context, externalEventID domain.ExternalEventID, outcome string, snapshot []byte) error {
	now := g.clock()
	if err := g.store.Complete(ctx, externalEventID, outcome, snapshot, now); err != nil {
		return fmt.Errorf("record terminal result: %w", err)
	}
	if g.cache != nil {
		if record, err := g.store.Get(ctx, externalEventID); err == nil {
			g.cache.Store(ctx, *record)
		}
	}
	return nil
}

// Release removes the admission for a unit that failed fatally before
// reaching a business decision, so redelivery can retry. Terminal records
// are never released.
func (g *Guard) Release(ctx context.Context, externalEventID domain.ExternalEventID) {
	if err := g.store.Delete(ctx, externalEventID); err != nil {
		// The stale in-flight record blocks retries until reconciliation;
		// log it loudly but do not mask the fatal error being reported.
		if g.logger != nil {
			g.logger.ErrorContext(ctx, "failed to release idempotency admission",
				"external_event_id", externalEventID.String(),
				"error", err,
			)
		}
	}
}
