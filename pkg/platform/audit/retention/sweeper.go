package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"veritas/pkg/domain"
	audit "veritas/pkg/platform/audit"
)

// ExpiryStore is the privileged deletion surface. Only the PostgreSQL and
// memory audit stores implement it, and only the sweep job is wired to it;
// the standard audit.Store interface carries no delete method at all.
type ExpiryStore interface {
	DeleteOlderThan(ctx context.Context, category audit.EventCategory, cutoff time.Time) (int64, error)
}

// sweepChain groups the sweep job's own audit trail. Sweeps are themselves
// compliance-relevant: every deletion of audit rows must be attributable.
const sweepChain = domain.CorrelationID("retention-sweep")

// Sweeper removes audit events past their category's minimum retention.
// It is the only code path permitted to delete audit rows.
type Sweeper struct {
	policy *Policy
	store  ExpiryStore
	writer *audit.Writer
	logger *slog.Logger
}

// NewSweeper builds the expiry job. The writer records each sweep on the
// sweep audit chain; pass nil only in tests that assert deletion counts.
func NewSweeper(policy *Policy, store ExpiryStore, writer *audit.Writer, logger *slog.Logger) *Sweeper {
	return &Sweeper{policy: policy, store: store, writer: writer, logger: logger}
}

// Sweep deletes events whose category retention has lapsed at now and
// returns the total rows removed. Failures in one category do not stop the
// others; the first error is returned after the pass completes.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	categories := []audit.EventCategory{
		audit.CategoryOperations,
		audit.CategorySecurity,
		audit.CategoryCompliance,
	}

	var total int64
	var firstErr error
	for _, category := range categories {
		cutoff := now.Add(-s.policy.MinRetention(category))
		deleted, err := s.store.DeleteOlderThan(ctx, category, cutoff)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sweep %s: %w", category, err)
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "retention sweep failed for category",
					"category", string(category),
					"error", err,
				)
			}
			continue
		}
		total += deleted
	}

	if s.writer != nil {
		s.writer.Record(ctx, sweepChain, audit.EventRetentionSweep, audit.SeverityInfo, map[string]string{
			"deleted": strconv.FormatInt(total, 10),
			"swept_at": now.UTC().Format(time.RFC3339),
		})
	}
	return total, firstErr
}
