package idempotency

import (
	"context"
	"sync"
	"time"

	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

// InMemoryStore mimics the PostgreSQL store's uniqueness constraint with a
// mutex-guarded map so concurrency tests resolve races the same way
// production does: one winner, deterministic losers.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[domain.ExternalEventID]Record

	failWith error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.ExternalEventID]Record)}
}

// FailWith makes every subsequent call return err, modeling a store outage.
// Pass nil to restore normal behavior.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *InMemoryStore) Insert(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, exists := s.records[record.ExternalEventID]; exists {
		return sentinel.ErrDuplicate
	}
	s.records[record.ExternalEventID] = record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, externalEventID domain.ExternalEventID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	record, ok := s.records[externalEventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	snapshot := append([]byte(nil), record.ResultSnapshot...)
	record.ResultSnapshot = snapshot
	return &record, nil
}

func (s *InMemoryStore) Complete(_ context.Context, externalEventID domain.ExternalEventID, outcome string, snapshot []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	record, ok := s.records[externalEventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Terminal() {
		return sentinel.ErrInvalidState
	}
	record.Outcome = outcome
	record.ResultSnapshot = append([]byte(nil), snapshot...)
	record.CompletedAt = at
	s.records[externalEventID] = record
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, externalEventID domain.ExternalEventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	record, ok := s.records[externalEventID]
	if !ok {
		return nil
	}
	if record.Terminal() {
		return sentinel.ErrImmutable
	}
	delete(s.records, externalEventID)
	return nil
}
