package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "veritas/pkg/domain-errors"
)

// UnitID identifies one logical attempt at a business operation. It is
// caller-supplied and never reused once the unit reaches a terminal decision.
type UnitID uuid.UUID

// NewUnitID mints a fresh unit ID for an admitted event.
func NewUnitID() UnitID {
	return UnitID(uuid.New())
}

// ParseUnitID validates and parses a unit ID from its string form.
func ParseUnitID(s string) (UnitID, error) {
	u, err := parseUUID(s, "unit_id")
	return UnitID(u), err
}

func (id UnitID) String() string { return uuid.UUID(id).String() }
func (id UnitID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// CorrelationID groups every audit event produced by one externally
// triggered operation. Opaque, caller-supplied, non-empty.
type CorrelationID string

// ParseCorrelationID rejects empty or whitespace-only correlation IDs.
func ParseCorrelationID(s string) (CorrelationID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "correlation_id must not be empty")
	}
	return CorrelationID(trimmed), nil
}

func (id CorrelationID) String() string { return string(id) }

// ExternalEventID is the stable identifier an upstream delivery carries
// (e.g. a payment-provider webhook event ID). The idempotency guard keys on it.
type ExternalEventID string

// ParseExternalEventID rejects empty or whitespace-only event IDs.
func ParseExternalEventID(s string) (ExternalEventID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "external_event_id must not be empty")
	}
	return ExternalEventID(trimmed), nil
}

func (id ExternalEventID) String() string { return string(id) }

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return u, nil
}
