package engine

import (
	"sync"

	"veritas/pkg/domain"
)

// Outcome is the tri-state result business logic declares for its unit.
// The coordinator consumes it through a single decision table; anything
// outside the three known values is treated as fatal (fail safe).
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeBusinessError Outcome = "business_error"
	OutcomeFatalError    Outcome = "fatal_error"
)

// Known reports whether the outcome is one of the three declared states.
func (o Outcome) Known() bool {
	switch o {
	case OutcomeSuccess, OutcomeBusinessError, OutcomeFatalError:
		return true
	}
	return false
}

// Status is the closed set of answers a caller of Process receives.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
)

// InboundEvent is one externally delivered event: a payment-provider
// webhook, an administrative migration step.
type InboundEvent struct {
	ExternalEventID domain.ExternalEventID
	CorrelationID   domain.CorrelationID
	Payload         map[string]string
}

// Result is the terminal answer for one processed event. For duplicates,
// UnitID and OriginalStatus carry the winner's recorded result so webhook
// replays observe exactly what the first delivery observed.
type Result struct {
	Status         Status `json:"status"`
	UnitID         string `json:"unit_id"`
	Reason         string `json:"reason,omitempty"`
	OriginalStatus Status `json:"original_status,omitempty"`
}

// TransactionUnit is one logical business operation in flight. The
// coordinator creates it when a savepoint opens and logically destroys it
// the moment a terminal decision is recorded; it is never reused.
//
// ProcessingStage is a free-form diagnostic label, last-write-wins. Reason
// carries the business explanation for a rejected outcome.
type TransactionUnit struct {
	UnitID        domain.UnitID
	CorrelationID domain.CorrelationID

	mu     sync.Mutex
	stage  string
	reason string
}

// NewTransactionUnit creates a unit for one execution attempt.
func NewTransactionUnit(unitID domain.UnitID, correlationID domain.CorrelationID) *TransactionUnit {
	return &TransactionUnit{UnitID: unitID, CorrelationID: correlationID}
}

// SetStage records the current processing stage for diagnostics.
func (u *TransactionUnit) SetStage(stage string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stage = stage
}

// Stage returns the last recorded processing stage.
func (u *TransactionUnit) Stage() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stage
}

// SetReason records why business logic rejected the unit.
func (u *TransactionUnit) SetReason(reason string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.reason = reason
}

// Reason returns the recorded rejection reason.
func (u *TransactionUnit) Reason() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reason
}
