package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	txcontext "veritas/pkg/platform/tx"
)

// Session is the store connection a coordinator owns for the duration of
// one Execute call. It must not be shared across concurrently running units.
//
// Begin reports whether this call opened the transaction: a session entering
// Execute with an ambient transaction already active keeps ownership of it,
// and the coordinator confines itself to the savepoint it opened.
type Session interface {
	Begin(ctx context.Context) (owned bool, err error)
	Savepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error

	// Flush forces pending work to the store without committing, so write
	// errors surface before the commit decision instead of inside it.
	Flush(ctx context.Context) error

	Commit(ctx context.Context) error

	// Rollback aborts the open transaction. It is idempotent: rolling back
	// a session with no open transaction is a no-op, which the coordinator
	// relies on for its final safety net.
	Rollback(ctx context.Context) error

	InTransaction() bool

	// Attach returns a context carrying the open transaction so stores
	// invoked by business work join it.
	Attach(ctx context.Context) context.Context
}

// SQLSession implements Session over database/sql with PostgreSQL savepoint
// syntax. One SQLSession serves exactly one Execute call.
type SQLSession struct {
	db *sql.DB
	tx *sql.Tx
}

// NewSQLSession creates a session over the business store handle.
func NewSQLSession(db *sql.DB) *SQLSession {
	return &SQLSession{db: db}
}

func (s *SQLSession) Begin(ctx context.Context) (bool, error) {
	if s.tx != nil {
		return false, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return true, nil
}

func (s *SQLSession) Savepoint(ctx context.Context, name string) error {
	if s.tx == nil {
		return fmt.Errorf("savepoint %s: no open transaction", name)
	}
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+quoteSavepoint(name)); err != nil {
		return fmt.Errorf("open savepoint %s: %w", name, err)
	}
	return nil
}

func (s *SQLSession) ReleaseSavepoint(ctx context.Context, name string) error {
	if s.tx == nil {
		return fmt.Errorf("release savepoint %s: no open transaction", name)
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoteSavepoint(name)); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

func (s *SQLSession) RollbackToSavepoint(ctx context.Context, name string) error {
	if s.tx == nil {
		return fmt.Errorf("rollback to savepoint %s: no open transaction", name)
	}
	if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoteSavepoint(name)); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}
	return nil
}

// Flush issues a round trip on the transaction. PostgreSQL reports an
// aborted transaction state here, so a statement that failed inside work
// surfaces as a flush error before the commit decision.
func (s *SQLSession) Flush(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("flush: no open transaction")
	}
	if _, err := s.tx.ExecContext(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (s *SQLSession) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("commit: no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLSession) Rollback(context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

func (s *SQLSession) InTransaction() bool { return s.tx != nil }

func (s *SQLSession) Attach(ctx context.Context) context.Context {
	if s.tx == nil {
		return ctx
	}
	return txcontext.WithTx(ctx, s.tx)
}

// quoteSavepoint keeps savepoint names identifier-safe. Unit IDs are UUIDs,
// so dashes are the only characters needing replacement.
func quoteSavepoint(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
	return `"` + safe + `"`
}
