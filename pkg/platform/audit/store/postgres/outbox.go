package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veritas/pkg/platform/audit/mirror"
)

// NextOutboxBatch returns up to limit unmirrored outbox entries, oldest
// first. A deployment runs one mirror worker; the sink consumer is expected
// to deduplicate on (correlation_id, event_id) if a crash between publish
// and MarkMirrored replays a batch.
func (s *Store) NextOutboxBatch(ctx context.Context, limit int) ([]mirror.Entry, error) {
	const query = `
		SELECT id, correlation_id, event_id, payload
		FROM audit_outbox
		WHERE mirrored_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []mirror.Entry
	for rows.Next() {
		var entry mirror.Entry
		if err := rows.Scan(&entry.ID, &entry.CorrelationID, &entry.EventID, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkMirrored stamps outbox entries as published.
func (s *Store) MarkMirrored(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE audit_outbox
		SET mirrored_at = $1
		WHERE id = ANY($2)
	`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox mirrored: %w", err)
	}
	return nil
}

// OutboxDepth reports how many entries still await mirroring.
func (s *Store) OutboxDepth(ctx context.Context) (int64, error) {
	var depth int64
	const query = `SELECT COUNT(*) FROM audit_outbox WHERE mirrored_at IS NULL`
	if err := s.db.QueryRowContext(ctx, query).Scan(&depth); err != nil {
		return 0, fmt.Errorf("count outbox depth: %w", err)
	}
	return depth, nil
}
