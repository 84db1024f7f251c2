// Package mirror streams committed audit events to an external sink
// (Kafka) for SIEM and compliance tooling. Mirroring is strictly
// best-effort: the durable PostgreSQL chain is the source of truth, and a
// sink outage only grows the outbox backlog, never blocks an append.
package mirror

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one unmirrored outbox row.
type Entry struct {
	ID            int64
	CorrelationID string
	EventID       int64
	Payload       []byte
}

// Outbox drains audit events staged for mirroring.
type Outbox interface {
	NextOutboxBatch(ctx context.Context, limit int) ([]Entry, error)
	MarkMirrored(ctx context.Context, ids []int64) error
	OutboxDepth(ctx context.Context) (int64, error)
}

// Publisher delivers one mirrored event to the sink. Key is the correlation
// ID so a partitioned sink preserves per-chain ordering.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close()
}

// DepthGauge receives the current outbox backlog for observability.
type DepthGauge interface {
	SetMirrorPending(n float64)
}

// Worker polls the outbox and publishes entries to the sink.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	gauge     DepthGauge
	interval  time.Duration
	batchSize int
}

// Option configures the Worker.
type Option func(*Worker)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

// WithBatchSize overrides how many entries one poll drains.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

// WithDepthGauge wires backlog reporting.
func WithDepthGauge(g DepthGauge) Option {
	return func(w *Worker) { w.gauge = g }
}

// NewWorker builds a mirror worker with production defaults.
func NewWorker(outbox Outbox, publisher Publisher, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  2 * time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled. Sink failures are logged and
// retried on the next tick; they are never escalated.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	entries, err := w.outbox.NextOutboxBatch(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "mirror outbox read failed", "error", err)
		return
	}

	published := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry.CorrelationID, entry.Payload); err != nil {
			w.logger.WarnContext(ctx, "mirror publish failed, will retry",
				"correlation_id", entry.CorrelationID,
				"event_id", entry.EventID,
				"error", err,
			)
			break // keep outbox order: stop at the first failure
		}
		published = append(published, entry.ID)
	}

	if len(published) > 0 {
		if err := w.outbox.MarkMirrored(ctx, published); err != nil {
			w.logger.ErrorContext(ctx, "mirror mark failed, sink may see replays", "error", err)
		}
	}

	if w.gauge != nil {
		if depth, err := w.outbox.OutboxDepth(ctx); err == nil {
			w.gauge.SetMirrorPending(float64(depth))
		}
	}
}
