package ledger

import (
	"context"
)

// Store persists invoices and payments. Implementations must join the
// transaction carried by ctx (pkg/platform/tx) so mutations stay inside the
// coordinator's savepoint until the unit commits.
type Store interface {
	// GetInvoice returns an invoice, or sentinel.ErrNotFound.
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// ApplyMovement inserts the payment row and adjusts the invoice balance
	// in one statement pair. Returns sentinel.ErrInvalidState if the debit
	// would take the balance below zero.
	ApplyMovement(ctx context.Context, payment Payment) error
}
