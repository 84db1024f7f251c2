package ledger

import (
	"context"
	"sync"

	"veritas/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in process memory for unit tests and local
// development. It has no savepoint awareness; engine tests that need
// rollback semantics pair it with the engine's memory session instead.
type InMemoryStore struct {
	mu       sync.Mutex
	invoices map[string]Invoice
	payments []Payment

	failWith error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{invoices: make(map[string]Invoice)}
}

// SeedInvoice installs an invoice for tests.
func (s *InMemoryStore) SeedInvoice(invoice Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[invoice.ID] = invoice
}

// FailWith makes every subsequent call return err; nil restores normal
// behavior.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Payments returns a copy of all applied payments.
func (s *InMemoryStore) Payments() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payment{}, s.payments...)
}

func (s *InMemoryStore) GetInvoice(_ context.Context, invoiceID string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &invoice, nil
}

func (s *InMemoryStore) ApplyMovement(_ context.Context, payment Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	invoice, ok := s.invoices[payment.InvoiceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delta := payment.Amount
	if payment.Direction == DirectionDebit {
		delta = -delta
	}
	if invoice.Balance+delta < 0 {
		return sentinel.ErrInvalidState
	}
	invoice.Balance += delta
	invoice.UpdatedAt = payment.AppliedAt
	s.invoices[payment.InvoiceID] = invoice
	s.payments = append(s.payments, payment)
	return nil
}
