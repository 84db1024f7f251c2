package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veritas/pkg/platform/sentinel"
	txcontext "veritas/pkg/platform/tx"
)

// PostgresStore persists the ledger in PostgreSQL. Mutations run on the
// transaction carried by ctx when present, so business work inside a
// coordinator savepoint stays invisible until the unit commits.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	const query = `
		SELECT id, currency, balance, updated_at
		FROM invoices
		WHERE id = $1
	`
	var invoice Invoice
	err := s.execer(ctx).QueryRowContext(ctx, query, invoiceID).Scan(
		&invoice.ID, &invoice.Currency, &invoice.Balance, &invoice.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &invoice, nil
}

func (s *PostgresStore) ApplyMovement(ctx context.Context, payment Payment) error {
	execer := s.execer(ctx)

	delta := payment.Amount
	if payment.Direction == DirectionDebit {
		delta = -delta
	}

	// The balance guard runs in the UPDATE itself so two concurrent debits
	// cannot both pass an application-level check.
	const updateBalance = `
		UPDATE invoices
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1 AND balance + $2 >= 0
	`
	result, err := execer.ExecContext(ctx, updateBalance, payment.InvoiceID, delta, payment.AppliedAt)
	if err != nil {
		return fmt.Errorf("adjust invoice balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetInvoice(ctx, payment.InvoiceID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}

	const insertPayment = `
		INSERT INTO payments (id, invoice_id, amount, direction, external_ref, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = execer.ExecContext(ctx, insertPayment,
		payment.ID, payment.InvoiceID, payment.Amount,
		string(payment.Direction), payment.ExternalRef, payment.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
