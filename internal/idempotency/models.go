package idempotency

import (
	"time"

	"veritas/pkg/domain"
)

// Record maps an external event identifier to the unit that first processed
// it. It is created on first sight of the external ID and, once the
// originating unit reaches a terminal decision, never mutated again; every
// later sighting of the same ID reads it back.
type Record struct {
	ExternalEventID domain.ExternalEventID
	UnitID          domain.UnitID
	Outcome         string
	ResultSnapshot  []byte
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// Terminal reports whether the originating unit has recorded its decision.
func (r Record) Terminal() bool {
	return !r.CompletedAt.IsZero()
}

// Admission is the guard's answer for one inbound delivery. Exactly one of
// the two shapes holds: a fresh admission carrying the minted unit ID, or a
// duplicate carrying the prior record.
type Admission struct {
	Fresh  bool
	UnitID domain.UnitID
	Prior  *Record
}
