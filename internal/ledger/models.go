package ledger

import "time"

// Invoice is the business entity inbound payment events mutate. Balance is
// in minor currency units; it never goes negative.
type Invoice struct {
	ID        string
	Currency  string
	Balance   int64
	UpdatedAt time.Time
}

// Payment records one applied movement against an invoice. ExternalRef is
// the upstream provider's event ID, kept for reconciliation.
type Payment struct {
	ID          string
	InvoiceID   string
	Amount      int64
	Direction   Direction
	ExternalRef string
	AppliedAt   time.Time
}

// Direction of a movement relative to the invoice balance.
type Direction string

const (
	// DirectionCredit increases the invoice balance (a refund, a top-up).
	DirectionCredit Direction = "credit"
	// DirectionDebit decreases the invoice balance (a payment applied).
	DirectionDebit Direction = "debit"
)
