package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists idempotency records. The UNIQUE constraint on
// external_event_id is the admission arbiter: the loser of a concurrent
// insert race observes a constraint violation, never a second admission.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL idempotency store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, record Record) error {
	const query = `
		INSERT INTO idempotency_records (external_event_id, unit_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ExternalEventID.String(),
		uuid.UUID(record.UnitID),
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, externalEventID domain.ExternalEventID) (*Record, error) {
	const query = `
		SELECT external_event_id, unit_id, outcome, result_snapshot, created_at, completed_at
		FROM idempotency_records
		WHERE external_event_id = $1
	`
	var (
		record      Record
		externalID  string
		unitID      uuid.UUID
		outcome     sql.NullString
		snapshot    []byte
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, externalEventID.String()).Scan(
		&externalID, &unitID, &outcome, &snapshot, &record.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	record.ExternalEventID = domain.ExternalEventID(externalID)
	record.UnitID = domain.UnitID(unitID)
	record.Outcome = outcome.String
	record.ResultSnapshot = snapshot
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time
	}
	return &record, nil
}

func (s *PostgresStore) Complete(ctx context.Context, externalEventID domain.ExternalEventID, outcome string, snapshot []byte, at time.Time) error {
	const query = `
		UPDATE idempotency_records
		SET outcome = $2, result_snapshot = $3, completed_at = $4
		WHERE external_event_id = $1 AND completed_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, externalEventID.String(), outcome, snapshot, at)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, externalEventID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, externalEventID domain.ExternalEventID) error {
	// Guarded so a terminal record can never be removed through this path.
	const query = `
		DELETE FROM idempotency_records
		WHERE external_event_id = $1 AND completed_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, externalEventID.String()); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}
