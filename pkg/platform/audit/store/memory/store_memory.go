package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"veritas/pkg/domain"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/sentinel"
)

// InMemoryStore keeps chains in process memory. It enforces the same
// (correlation_id, event_id) uniqueness as the PostgreSQL store so the
// writer's chain-head retry behaves identically in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[domain.CorrelationID][]audit.Event

	failAppend error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chains: make(map[domain.CorrelationID][]audit.Event)}
}

// FailAppendWith makes every subsequent Append return err. Tests use this to
// inject audit-write failures; pass nil to restore normal behavior.
func (s *InMemoryStore) FailAppendWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = err
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	for _, existing := range s.chains[event.CorrelationID] {
		if existing.EventID == event.EventID {
			return sentinel.ErrDuplicate
		}
	}
	s.chains[event.CorrelationID] = append(s.chains[event.CorrelationID], event)
	return nil
}

func (s *InMemoryStore) LatestInChain(_ context.Context, correlationID domain.CorrelationID) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[correlationID]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	head := chain[len(chain)-1]
	return &head, nil
}

func (s *InMemoryStore) ListByCorrelation(_ context.Context, correlationID domain.CorrelationID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := append([]audit.Event{}, s.chains[correlationID]...)
	sort.Slice(chain, func(i, j int) bool { return chain[i].EventID < chain[j].EventID })
	return chain, nil
}

func (s *InMemoryStore) ListByTimeRange(_ context.Context, from, to time.Time) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []audit.Event
	for _, chain := range s.chains {
		for _, event := range chain {
			if !event.Timestamp.Before(from) && !event.Timestamp.After(to) {
				events = append(events, event)
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

func (s *InMemoryStore) ListByTypes(_ context.Context, types []audit.EventType, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[audit.EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var events []audit.Event
	for _, chain := range s.chains {
		for _, event := range chain {
			if wanted[event.Type] {
				events = append(events, event)
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Tamper overwrites a stored payload field, bypassing the append-only
// surface. It models a storage-level modification so integrity tests can
// confirm Verify detects tampering.
func (s *InMemoryStore) Tamper(correlationID domain.CorrelationID, eventID int64, key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[correlationID]
	for i := range chain {
		if chain[i].EventID == eventID {
			tampered := make(map[string]string, len(chain[i].Payload)+1)
			for k, v := range chain[i].Payload {
				tampered[k] = v
			}
			tampered[key] = value
			chain[i].Payload = tampered
			return true
		}
	}
	return false
}

// DeleteOlderThan removes events of one category recorded before the cutoff.
// It backs the privileged retention sweep; nothing else is wired to it.
func (s *InMemoryStore) DeleteOlderThan(_ context.Context, category audit.EventCategory, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, chain := range s.chains {
		kept := chain[:0]
		for _, event := range chain {
			if event.Category == category && event.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, event)
		}
		s.chains[id] = kept
	}
	return deleted, nil
}
