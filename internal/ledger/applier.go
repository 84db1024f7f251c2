// Package ledger applies payment-provider events to invoices. It is the
// reference business module running inside the transaction engine: the
// applier declares a tri-state outcome and performs all mutations through a
// store joined to the coordinator's savepoint.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"veritas/internal/engine"
	"veritas/pkg/platform/sentinel"
)

// Applier turns an inbound payment payload into ledger mutations.
type Applier struct {
	store Store
	clock func() time.Time
}

// ApplierOption configures the Applier.
type ApplierOption func(*Applier)

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) ApplierOption {
	return func(a *Applier) { a.clock = clock }
}

// NewApplier creates a payment applier over the given store.
func NewApplier(store Store, opts ...ApplierOption) *Applier {
	a := &Applier{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply is the engine's ApplyFunc. Payload contract:
//
//	invoice_id   required
//	amount_cents required, positive integer
//	direction    "debit" (default) or "credit"
//
// Malformed payloads and business rule violations declare business_error
// with a stable reason; store failures declare fatal_error.
func (a *Applier) Apply(ctx context.Context, unit *engine.TransactionUnit, payload map[string]string) (engine.Outcome, error) {
	unit.SetStage("validate")

	invoiceID := payload["invoice_id"]
	if invoiceID == "" {
		unit.SetReason("missing_invoice_id")
		return engine.OutcomeBusinessError, nil
	}
	amount, err := strconv.ParseInt(payload["amount_cents"], 10, 64)
	if err != nil || amount <= 0 {
		unit.SetReason("invalid_amount")
		return engine.OutcomeBusinessError, nil
	}
	direction := DirectionDebit
	switch payload["direction"] {
	case "", string(DirectionDebit):
	case string(DirectionCredit):
		direction = DirectionCredit
	default:
		unit.SetReason("invalid_direction")
		return engine.OutcomeBusinessError, nil
	}

	unit.SetStage("apply")
	payment := Payment{
		ID:          uuid.NewString(),
		InvoiceID:   invoiceID,
		Amount:      amount,
		Direction:   direction,
		ExternalRef: payload["external_ref"],
		AppliedAt:   a.clock(),
	}
	if err := a.store.ApplyMovement(ctx, payment); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			unit.SetReason("unknown_invoice")
			return engine.OutcomeBusinessError, nil
		case errors.Is(err, sentinel.ErrInvalidState):
			unit.SetReason("insufficient_funds")
			return engine.OutcomeBusinessError, nil
		default:
			return engine.OutcomeFatalError, err
		}
	}

	unit.SetStage("applied")
	return engine.OutcomeSuccess, nil
}
