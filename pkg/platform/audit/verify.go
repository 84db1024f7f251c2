package audit

import (
	"context"
	"fmt"
	"strconv"

	"veritas/pkg/domain"
)

// integrityChain collects chain-broken markers. Violations are never
// appended to the corrupted chain itself.
const integrityChain = domain.CorrelationID("chain-integrity")

// VerifyResult reports chain validity. When Valid is false, BrokenAt holds
// the EventID of the first event at which continuity fails.
type VerifyResult struct {
	Valid    bool
	BrokenAt int64
	Events   int
}

// Verify recomputes hashes across the stored sequence for a correlation ID
// and checks them against the stored PrevHash/Hash pairs. An empty chain is
// vacuously valid. Verification is read-only and never blocks new appends;
// a detected violation is surfaced to the caller (and counted) rather than
// raised inline during Append.
func (w *Writer) Verify(ctx context.Context, correlationID domain.CorrelationID) (VerifyResult, error) {
	events, err := w.store.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("list chain: %w", err)
	}
	if len(events) == 0 {
		return VerifyResult{Valid: true}, nil
	}

	prevHash := GenesisHash
	var prevID int64
	for i, event := range events {
		broken := VerifyResult{Valid: false, BrokenAt: event.EventID, Events: len(events)}

		if event.EventID != prevID+1 {
			return w.brokenChain(ctx, correlationID, broken, "event id gap"), nil
		}
		if event.PrevHash != prevHash {
			return w.brokenChain(ctx, correlationID, broken, "prev hash mismatch"), nil
		}
		if i > 0 && event.Timestamp.Before(events[i-1].Timestamp) {
			return w.brokenChain(ctx, correlationID, broken, "timestamp regression"), nil
		}
		recomputed, err := ComputeHash(event)
		if err != nil {
			return VerifyResult{}, err
		}
		if recomputed != event.Hash {
			return w.brokenChain(ctx, correlationID, broken, "hash mismatch"), nil
		}

		prevHash = event.Hash
		prevID = event.EventID
	}
	return VerifyResult{Valid: true, Events: len(events)}, nil
}

func (w *Writer) brokenChain(ctx context.Context, correlationID domain.CorrelationID, result VerifyResult, reason string) VerifyResult {
	if w.metrics != nil {
		w.metrics.IncChainBroken()
	}
	if w.logger != nil {
		w.logger.ErrorContext(ctx, "audit chain integrity violation",
			"correlation_id", correlationID.String(),
			"broken_at", result.BrokenAt,
			"reason", reason,
		)
	}
	w.Record(ctx, integrityChain, EventChainBroken, SeverityCritical, map[string]string{
		"chain":     correlationID.String(),
		"broken_at": strconv.FormatInt(result.BrokenAt, 10),
		"reason":    reason,
	})
	return result
}
