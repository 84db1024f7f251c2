package audit

import (
	"time"

	"veritas/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage partitions, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-evident storage and long retention (e.g., 7 years).
	// Examples: payment application, unit commit/rollback decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// These feed into SIEM systems and alerting pipelines.
	// Examples: rollback failures, chain verification failures, payload scrubbing hits.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	// These can be sampled or aggregated with shorter retention.
	// Examples: unit admission, stage transitions, duplicate suppression.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// EventType tags what happened. The set is closed so consumers can route on
// it without string matching free-form text.
type EventType string

const (
	// Unit lifecycle events
	EventUnitAdmitted  EventType = "unit_admitted"
	EventUnitCommitted EventType = "unit_committed"
	EventBusinessError EventType = "business_error"
	EventUnitFailed    EventType = "unit_failed"
	EventStageAdvanced EventType = "stage_advanced"

	// Idempotency events
	EventDuplicateSuppressed EventType = "duplicate_suppressed"

	// Integrity and safety events
	EventRollbackFailed  EventType = "rollback_failed"
	EventChainBroken     EventType = "chain_broken"
	EventPayloadScrubbed EventType = "payload_scrubbed"

	// Retention events
	EventRetentionSweep EventType = "retention_sweep"
)

// eventCategories maps each event type to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: security monitoring, SIEM integration, alerting.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[EventType]EventCategory{
	EventUnitCommitted:  CategoryCompliance,
	EventBusinessError:  CategoryCompliance,
	EventUnitFailed:     CategoryCompliance,
	EventRetentionSweep: CategoryCompliance,

	EventRollbackFailed:  CategorySecurity,
	EventChainBroken:     CategorySecurity,
	EventPayloadScrubbed: CategorySecurity,

	EventUnitAdmitted:        CategoryOperations,
	EventStageAdvanced:       CategoryOperations,
	EventDuplicateSuppressed: CategoryOperations,
}

// Category returns the EventCategory for this event type.
// Unknown types default to CategoryOperations.
func (t EventType) Category() EventCategory {
	if cat, ok := eventCategories[t]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one immutable record in a hash-linked chain. Events sharing a
// correlation ID form one chain: EventID is monotonic within it, PrevHash
// links each event to its predecessor, and Hash covers the event's canonical
// serialization. Events are append-only; nothing outside the privileged
// retention sweep may remove or alter them.
type Event struct {
	EventID       int64
	Timestamp     time.Time
	Type          EventType
	Severity      Severity
	Category      EventCategory
	CorrelationID domain.CorrelationID
	Payload       map[string]string
	PrevHash      string
	Hash          string
}
