// Package engine executes business units under the nested-savepoint
// commit/rollback discipline and surrounds them with the audit chain and
// the idempotency guard. Callers of Process always receive one of a closed
// set of outcomes; never a hang, never a silent no-op, never a partially
// applied state.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"veritas/internal/engine/metrics"
	"veritas/internal/idempotency"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
)

// ApplyFunc is the business mutation for an admitted event. It runs inside
// the unit's savepoint; any store it touches must join the transaction
// carried by ctx.
type ApplyFunc func(ctx context.Context, unit *TransactionUnit, payload map[string]string) (Outcome, error)

// SessionFactory mints one Session per Execute call. Sessions are never
// shared across concurrently running units.
type SessionFactory func() Session

// Engine is the entry point for inbound event processing.
type Engine struct {
	guard       *idempotency.Guard
	coordinator *Coordinator
	sessions    SessionFactory
	writer      *audit.Writer
	apply       ApplyFunc
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New wires the engine. The audit writer must run on its own store handle,
// separate from the sessions the factory produces.
func New(guard *idempotency.Guard, coordinator *Coordinator, sessions SessionFactory, writer *audit.Writer, apply ApplyFunc, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		guard:       guard,
		coordinator: coordinator,
		sessions:    sessions,
		writer:      writer,
		apply:       apply,
		logger:      logger,
		metrics:     m,
	}
}

// Process runs one inbound delivery through guard, coordinator, and audit
// pipeline. The returned error is non-nil only for the fatal class, in
// which case the external transport is expected to redeliver.
func (e *Engine) Process(ctx context.Context, event InboundEvent) (Result, error) {
	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveProcess(time.Since(started).Seconds())
		}
	}()

	if event.ExternalEventID == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "external_event_id is required")
	}
	if event.CorrelationID == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "correlation_id is required")
	}

	admission, err := e.guard.Admit(ctx, event.ExternalEventID)
	if err != nil {
		return Result{}, err
	}
	if !admission.Fresh {
		return e.replay(ctx, event, admission.Prior), nil
	}

	unit := NewTransactionUnit(admission.UnitID, event.CorrelationID)
	e.writer.Record(ctx, event.CorrelationID, audit.EventUnitAdmitted, audit.SeverityInfo, map[string]string{
		"unit_id":           unit.UnitID.String(),
		"external_event_id": event.ExternalEventID.String(),
	})

	outcome, execErr := e.coordinator.Execute(ctx, e.sessions(), unit, func(ctx context.Context, unit *TransactionUnit) (Outcome, error) {
		return e.apply(ctx, unit, event.Payload)
	})

	switch outcome {
	case OutcomeSuccess:
		result := Result{Status: StatusCommitted, UnitID: unit.UnitID.String()}
		e.finish(ctx, event.ExternalEventID, result)
		return result, nil
	case OutcomeBusinessError:
		result := Result{Status: StatusRejected, UnitID: unit.UnitID.String(), Reason: unit.Reason()}
		e.finish(ctx, event.ExternalEventID, result)
		return result, nil
	default:
		// The unit never reached a business decision: release the admission
		// so the transport's redelivery gets a clean retry.
		e.guard.Release(ctx, event.ExternalEventID)
		if e.metrics != nil {
			e.metrics.IncUnits(string(OutcomeFatalError))
		}
		return Result{}, execErr
	}
}

// replay serves a duplicate delivery the winner's recorded result.
func (e *Engine) replay(ctx context.Context, event InboundEvent, prior *idempotency.Record) Result {
	if e.metrics != nil {
		e.metrics.IncDuplicates()
	}
	e.writer.Record(ctx, event.CorrelationID, audit.EventDuplicateSuppressed, audit.SeverityInfo, map[string]string{
		"external_event_id": event.ExternalEventID.String(),
		"original_unit_id":  prior.UnitID.String(),
	})

	if !prior.Terminal() {
		return Result{Status: StatusDuplicate, UnitID: prior.UnitID.String(), Reason: "in_flight"}
	}

	var original Result
	if err := json.Unmarshal(prior.ResultSnapshot, &original); err != nil {
		e.logger.ErrorContext(ctx, "corrupt idempotency snapshot",
			"external_event_id", event.ExternalEventID.String(),
			"error", err,
		)
		return Result{Status: StatusDuplicate, UnitID: prior.UnitID.String(), OriginalStatus: Status(prior.Outcome)}
	}
	return Result{
		Status:         StatusDuplicate,
		UnitID:         original.UnitID,
		Reason:         original.Reason,
		OriginalStatus: original.Status,
	}
}

// finish records the terminal result for replays and bumps outcome metrics.
// A completion failure cannot un-commit the unit; it is logged for
// reconciliation and the caller still receives the definite result.
func (e *Engine) finish(ctx context.Context, externalEventID domain.ExternalEventID, result Result) {
	if e.metrics != nil {
		switch result.Status {
		case StatusCommitted:
			e.metrics.IncUnits(string(OutcomeSuccess))
		case StatusRejected:
			e.metrics.IncUnits(string(OutcomeBusinessError))
		}
	}
	snapshot, err := json.Marshal(result)
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal result snapshot", "error", err)
		return
	}
	if err := e.guard.Complete(ctx, externalEventID, string(result.Status), snapshot); err != nil {
		e.logger.ErrorContext(ctx, "failed to record terminal result, replays degrade to in_flight",
			"external_event_id", externalEventID.String(),
			"error", err,
		)
	}
}
