// Package postgres persists audit chains in PostgreSQL.
//
// Append writes the event row and a matching outbox row in one local
// transaction so the stream mirror can never observe an event the durable
// store does not hold. The store runs on its own *sql.DB handle and never
// joins a coordinator-owned transaction: an audit write failure must not be
// able to poison a business session.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"veritas/pkg/domain"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// Store implements audit.Store over PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts the event and its outbox mirror entry atomically.
// A (correlation_id, event_id) collision maps to sentinel.ErrDuplicate so
// the writer can re-read the chain head and retry.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertEvent = `
		INSERT INTO audit_events (
			correlation_id, event_id, timestamp, event_type, severity,
			category, payload, prev_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.ExecContext(ctx, insertEvent,
		event.CorrelationID.String(),
		event.EventID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		string(event.Category),
		payload,
		event.PrevHash,
		event.Hash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert audit event: %w", err)
	}

	const insertOutbox = `
		INSERT INTO audit_outbox (correlation_id, event_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	mirror, err := json.Marshal(outboxPayload{
		CorrelationID: event.CorrelationID.String(),
		EventID:       event.EventID,
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType:     string(event.Type),
		Severity:      string(event.Severity),
		Category:      string(event.Category),
		Payload:       event.Payload,
		PrevHash:      event.PrevHash,
		Hash:          event.Hash,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertOutbox, event.CorrelationID.String(), event.EventID, mirror, time.Now()); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

// outboxPayload is the JSON document mirrored to the stream sink. Field
// names are part of the consumer contract.
type outboxPayload struct {
	CorrelationID string            `json:"correlation_id"`
	EventID       int64             `json:"event_id"`
	Timestamp     string            `json:"timestamp"`
	EventType     string            `json:"event_type"`
	Severity      string            `json:"severity"`
	Category      string            `json:"category"`
	Payload       map[string]string `json:"payload"`
	PrevHash      string            `json:"prev_hash"`
	Hash          string            `json:"hash"`
}

// LatestInChain returns the chain head for a correlation ID.
func (s *Store) LatestInChain(ctx context.Context, correlationID domain.CorrelationID) (*audit.Event, error) {
	const query = `
		SELECT correlation_id, event_id, timestamp, event_type, severity,
		       category, payload, prev_hash, hash
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY event_id DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, correlationID.String())
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return event, nil
}

// ListByCorrelation returns a chain ordered by event ID ascending.
func (s *Store) ListByCorrelation(ctx context.Context, correlationID domain.CorrelationID) ([]audit.Event, error) {
	const query = `
		SELECT correlation_id, event_id, timestamp, event_type, severity,
		       category, payload, prev_hash, hash
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY event_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, correlationID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByTimeRange returns events across chains ordered by timestamp.
func (s *Store) ListByTimeRange(ctx context.Context, from, to time.Time) ([]audit.Event, error) {
	const query = `
		SELECT correlation_id, event_id, timestamp, event_type, severity,
		       category, payload, prev_hash, hash
		FROM audit_events
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, correlation_id, event_id
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit events by time: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByTypes returns events matching any of the given types, newest first.
func (s *Store) ListByTypes(ctx context.Context, types []audit.EventType, limit int) ([]audit.Event, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	const query = `
		SELECT correlation_id, event_id, timestamp, event_type, severity,
		       category, payload, prev_hash, hash
		FROM audit_events
		WHERE event_type = ANY($1)
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*audit.Event, error) {
	var (
		event         audit.Event
		correlationID string
		eventType     string
		severity      string
		category      string
		payload       []byte
	)
	err := row.Scan(
		&correlationID,
		&event.EventID,
		&event.Timestamp,
		&eventType,
		&severity,
		&category,
		&payload,
		&event.PrevHash,
		&event.Hash,
	)
	if err != nil {
		return nil, err
	}
	event.CorrelationID = domain.CorrelationID(correlationID)
	event.Type = audit.EventType(eventType)
	event.Severity = audit.Severity(severity)
	event.Category = audit.EventCategory(category)
	if err := json.Unmarshal(payload, &event.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan removes events of one category recorded before the cutoff.
// This is the only deletion path on the audit tables and is wired solely
// into the scheduled retention sweep.
func (s *Store) DeleteOlderThan(ctx context.Context, category audit.EventCategory, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM audit_events
		WHERE category = $1 AND timestamp < $2
	`
	result, err := s.db.ExecContext(ctx, query, string(category), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired rows affected: %w", err)
	}
	return deleted, nil
}
