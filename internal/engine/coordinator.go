package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veritas/internal/engine/metrics"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
)

// Work is the business logic executed inside a unit's savepoint. It performs
// mutations via stores joined to the session's transaction (through the
// attached context) and declares exactly one outcome.
type Work func(ctx context.Context, unit *TransactionUnit) (Outcome, error)

// Coordinator owns the nested-savepoint lifecycle around a unit of business
// work. Every Execute path ends with one terminal audit event and a session
// holding no open transaction; the caller always receives a definite answer.
type Coordinator struct {
	writer  *audit.Writer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator. The writer must run on its own store
// handle, never the sessions passed to Execute.
func NewCoordinator(writer *audit.Writer, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{writer: writer, logger: logger, metrics: m}
}

// Execute runs work inside a savepoint on the session and decides commit or
// rollback from the declared outcome:
//
//	success        -> release savepoint, commit if the session is ours;
//	                  a commit failure rolls back and reports fatal
//	business_error -> roll back the savepoint, report rejected (no error)
//	fatal_error    -> roll back the savepoint, escalate
//	anything else  -> treated as fatal_error
//
// A panic in work, a cancelled context, and a flush failure all map to
// fatal_error. The returned error is non-nil only for the fatal branch.
func (c *Coordinator) Execute(ctx context.Context, session Session, unit *TransactionUnit, work Work) (outcome Outcome, err error) {
	started := time.Now()

	owned, err := session.Begin(ctx)
	if err != nil {
		c.auditFailed(ctx, unit, "begin_failed", err)
		return OutcomeFatalError, dErrors.Wrap(err, dErrors.CodeFatal, "open transaction")
	}

	// Final safety net: no branch may leave the session in-transaction if we
	// opened it. Rollback on a clean session is a no-op.
	defer func() {
		if !owned {
			return
		}
		if rbErr := session.Rollback(ctx); rbErr != nil {
			c.auditRollbackFailure(ctx, unit, rbErr)
		}
		if session.InTransaction() {
			// A session still in-transaction here is a session bug; fail the
			// unit rather than return with indeterminate state.
			outcome = OutcomeFatalError
			if err == nil {
				err = dErrors.New(dErrors.CodeFatal, "session left in transaction")
			}
		}
	}()

	savepoint := savepointName(unit.UnitID)
	if err := session.Savepoint(ctx, savepoint); err != nil {
		c.auditFailed(ctx, unit, "savepoint_failed", err)
		return OutcomeFatalError, dErrors.Wrap(err, dErrors.CodeFatal, "open savepoint")
	}

	declared, workErr := c.runWork(ctx, session, unit, work)
	c.observeStage(unit, "work", started)

	// A cancelled or timed-out context is treated like work that never
	// declared an outcome: fatal, with the cancellation as the reason.
	if ctxErr := ctx.Err(); ctxErr != nil {
		declared = OutcomeFatalError
		workErr = errors.Join(workErr, ctxErr)
	}

	// Pending writes are flushed before the outcome is evaluated; a flush
	// failure overrides whatever work declared.
	flushStart := time.Now()
	if flushErr := session.Flush(ctx); flushErr != nil {
		declared = OutcomeFatalError
		workErr = errors.Join(workErr, fmt.Errorf("flush before decision: %w", flushErr))
	}
	c.observeStage(unit, "flush", flushStart)

	if !declared.Known() {
		workErr = errors.Join(workErr, fmt.Errorf("unknown outcome %q", declared))
		declared = OutcomeFatalError
	}

	decideStart := time.Now()
	defer c.observeStage(unit, "decide", decideStart)

	switch declared {
	case OutcomeSuccess:
		return c.commitBranch(ctx, session, unit, savepoint, owned)
	case OutcomeBusinessError:
		return c.rejectBranch(ctx, session, unit, savepoint, owned)
	default:
		return c.failBranch(ctx, session, unit, savepoint, owned, workErr)
	}
}

// runWork invokes work with the transaction attached and converts a panic
// into a fatal outcome so no fault can escape the decision table.
func (c *Coordinator) runWork(ctx context.Context, session Session, unit *TransactionUnit, work Work) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFatalError
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()
	return work(session.Attach(ctx), unit)
}

func (c *Coordinator) commitBranch(ctx context.Context, session Session, unit *TransactionUnit, savepoint string, owned bool) (Outcome, error) {
	if err := session.ReleaseSavepoint(ctx, savepoint); err != nil {
		if rbErr := session.RollbackToSavepoint(ctx, savepoint); rbErr != nil {
			c.auditRollbackFailure(ctx, unit, rbErr)
		}
		c.auditFailed(ctx, unit, "commit_failed", err)
		return OutcomeFatalError, dErrors.Wrap(err, dErrors.CodeFatal, "release savepoint")
	}
	if owned {
		if err := session.Commit(ctx); err != nil {
			// The driver has already destroyed the transaction; the deferred
			// safety rollback confirms the session is clean. Never report
			// success when the commit itself failed.
			c.auditFailed(ctx, unit, "commit_failed", err)
			return OutcomeFatalError, dErrors.Wrap(err, dErrors.CodeFatal, "commit transaction")
		}
	}
	c.writer.Record(ctx, unit.CorrelationID, audit.EventUnitCommitted, audit.SeverityInfo, map[string]string{
		"unit_id": unit.UnitID.String(),
		"stage":   unit.Stage(),
	})
	return OutcomeSuccess, nil
}

func (c *Coordinator) rejectBranch(ctx context.Context, session Session, unit *TransactionUnit, savepoint string, owned bool) (Outcome, error) {
	if err := session.RollbackToSavepoint(ctx, savepoint); err != nil {
		c.auditRollbackFailure(ctx, unit, err)
	}
	if owned {
		if err := session.Rollback(ctx); err != nil {
			c.auditRollbackFailure(ctx, unit, err)
		}
	}
	c.writer.Record(ctx, unit.CorrelationID, audit.EventBusinessError, audit.SeverityWarning, map[string]string{
		"unit_id": unit.UnitID.String(),
		"stage":   unit.Stage(),
		"reason":  unit.Reason(),
	})
	return OutcomeBusinessError, nil
}

func (c *Coordinator) failBranch(ctx context.Context, session Session, unit *TransactionUnit, savepoint string, owned bool, cause error) (Outcome, error) {
	if err := session.RollbackToSavepoint(ctx, savepoint); err != nil {
		c.auditRollbackFailure(ctx, unit, err)
	}
	if owned {
		if err := session.Rollback(ctx); err != nil {
			c.auditRollbackFailure(ctx, unit, err)
		}
	}
	c.auditFailed(ctx, unit, failureReason(cause), cause)
	return OutcomeFatalError, dErrors.Wrap(cause, dErrors.CodeFatal, "unit failed")
}

// auditFailed emits the terminal audit event for a fatal branch. Only the
// error class reaches the audit record; raw error payloads may contain
// sensitive data and belong in the structured log.
func (c *Coordinator) auditFailed(ctx context.Context, unit *TransactionUnit, reason string, cause error) {
	c.logger.ErrorContext(ctx, "transaction unit failed",
		"unit_id", unit.UnitID.String(),
		"correlation_id", unit.CorrelationID.String(),
		"reason", reason,
		"error", cause,
	)
	c.writer.Record(ctx, unit.CorrelationID, audit.EventUnitFailed, audit.SeverityError, map[string]string{
		"unit_id":     unit.UnitID.String(),
		"stage":       unit.Stage(),
		"reason":      reason,
		"error_class": errorClass(cause),
	})
}

// auditRollbackFailure records a failed rollback at its own severity tier.
// It never prevents the coordinator from returning a definite result.
func (c *Coordinator) auditRollbackFailure(ctx context.Context, unit *TransactionUnit, cause error) {
	c.logger.ErrorContext(ctx, "rollback failed",
		"unit_id", unit.UnitID.String(),
		"correlation_id", unit.CorrelationID.String(),
		"error", cause,
	)
	c.writer.Record(ctx, unit.CorrelationID, audit.EventRollbackFailed, audit.SeverityError, map[string]string{
		"unit_id":     unit.UnitID.String(),
		"stage":       unit.Stage(),
		"error_class": errorClass(cause),
	})
}

func (c *Coordinator) observeStage(unit *TransactionUnit, stage string, since time.Time) {
	unit.SetStage(stage)
	if c.metrics != nil {
		c.metrics.ObserveStage(stage, time.Since(since).Seconds())
	}
}

// failureReason labels the fatal branch for the audit record.
func failureReason(cause error) string {
	switch {
	case errors.Is(cause, context.Canceled):
		return "cancelled"
	case errors.Is(cause, context.DeadlineExceeded):
		return "timeout"
	default:
		return "fatal"
	}
}

// errorClass reduces an error to a coarse class safe for audit payloads.
func errorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return fmt.Sprintf("%T", err)
	}
}

func savepointName(unitID domain.UnitID) string {
	return "unit_" + unitID.String()
}
