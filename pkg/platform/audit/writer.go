package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

// appendRetries bounds how often Append re-reads the chain head after losing
// an (correlation_id, event_id) race to a concurrent writer.
const appendRetries = 3

// Writer is the only component permitted to compute PrevHash and Hash.
// It owns chain continuity: each Append reads the stored chain head, links
// the new event to it, and writes atomically. The writer must run on its own
// store handle so an audit failure can never poison a business session.
type Writer struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	clock   func() time.Time
}

// WriterOption configures the Writer.
type WriterOption func(*Writer)

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// WithClock overrides the time source. Tests use this to force timestamp
// ordering without sleeping.
func WithClock(clock func() time.Time) WriterOption {
	return func(w *Writer) { w.clock = clock }
}

// NewWriter creates a chain writer over the given append-only store.
func NewWriter(store Store, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append links a new event to the chain identified by correlationID and
// writes it. The payload is scrubbed against the sensitive-field denylist
// before hashing, so redaction is part of the recorded history rather than a
// display-time effect.
//
// The returned error reports persistence failures to the caller; it is the
// caller's contract that such a failure must never roll back the business
// unit the event describes. Use Record when that isolation should be
// enforced here.
func (w *Writer) Append(ctx context.Context, correlationID domain.CorrelationID, eventType EventType, severity Severity, payload map[string]string) (Event, error) {
	scrubbed, redacted := Scrub(payload)

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		event, err := w.nextEvent(ctx, correlationID, eventType, severity, scrubbed)
		if err != nil {
			return Event{}, err
		}
		err = w.store.Append(ctx, event)
		if err == nil {
			if w.metrics != nil {
				w.metrics.IncAppended(string(event.Category))
			}
			if redacted {
				w.recordScrub(ctx, event)
			}
			return event, nil
		}
		if errors.Is(err, sentinel.ErrDuplicate) {
			// Lost the chain head race to a concurrent append; re-read and relink.
			lastErr = err
			continue
		}
		return Event{}, fmt.Errorf("append audit event: %w", err)
	}
	return Event{}, fmt.Errorf("append audit event: chain head contention: %w", lastErr)
}

// Record appends an event and isolates any failure: the error is written to
// the fallback channel (structured log plus a counter for out-of-band
// reconciliation) and swallowed. The engine uses Record on every audit site
// so failure isolation is enforced once, here, not per caller.
func (w *Writer) Record(ctx context.Context, correlationID domain.CorrelationID, eventType EventType, severity Severity, payload map[string]string) {
	if _, err := w.Append(ctx, correlationID, eventType, severity, payload); err != nil {
		w.fallback(ctx, correlationID, eventType, err)
	}
}

// recordScrub follows a redacted event with a security marker on the same
// chain. The marker's payload carries no sensitive keys, so this never
// recurses past one level.
func (w *Writer) recordScrub(ctx context.Context, scrubbed Event) {
	if w.metrics != nil {
		w.metrics.IncScrubbed()
	}
	w.Record(ctx, scrubbed.CorrelationID, EventPayloadScrubbed, SeverityWarning, map[string]string{
		"scrubbed_event_id": strconv.FormatInt(scrubbed.EventID, 10),
	})
}

// fallback is the secondary best-effort channel for audit events that could
// not be persisted. It must never fail and never block.
func (w *Writer) fallback(ctx context.Context, correlationID domain.CorrelationID, eventType EventType, cause error) {
	if w.metrics != nil {
		w.metrics.IncAppendFailures()
	}
	if w.logger != nil {
		w.logger.ErrorContext(ctx, "audit append failed, recorded to fallback channel",
			"correlation_id", correlationID.String(),
			"event_type", string(eventType),
			"error", cause,
		)
	}
}

// nextEvent builds the fully hashed successor of the current chain head.
func (w *Writer) nextEvent(ctx context.Context, correlationID domain.CorrelationID, eventType EventType, severity Severity, payload map[string]string) (Event, error) {
	prevHash := GenesisHash
	var nextID int64 = 1
	floor := time.Time{}

	head, err := w.store.LatestInChain(ctx, correlationID)
	switch {
	case err == nil:
		prevHash = head.Hash
		nextID = head.EventID + 1
		floor = head.Timestamp
	case errors.Is(err, sentinel.ErrNotFound):
		// First event of the chain links to genesis.
	default:
		return Event{}, fmt.Errorf("read chain head: %w", err)
	}

	now := w.clock().UTC()
	if now.Before(floor) {
		// Clock went backwards relative to the stored head; pin to the floor
		// so the per-chain monotonic timestamp invariant holds.
		now = floor
	}

	event := Event{
		EventID:       nextID,
		Timestamp:     now,
		Type:          eventType,
		Severity:      severity,
		Category:      eventType.Category(),
		CorrelationID: correlationID,
		Payload:       payload,
		PrevHash:      prevHash,
	}
	hash, err := ComputeHash(event)
	if err != nil {
		return Event{}, err
	}
	event.Hash = hash
	return event, nil
}
