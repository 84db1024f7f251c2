package engine

import (
	"context"
	"sync"
)

// MemorySession models a savepoint-capable key/value session for unit tests
// and local development. Writes land in the top savepoint layer and become
// durable only when every layer merges down and the session commits, which
// mirrors how PostgreSQL savepoints scope visibility.
type MemorySession struct {
	mu     sync.Mutex
	base   map[string]string
	layers []namedLayer
	open   bool

	// Injectable failures for exercising the coordinator's decision table.
	FailBegin    error
	FailFlush    error
	FailCommit   error
	FailRelease  error
	FailRollback error
}

type namedLayer struct {
	name   string
	values map[string]string
}

// NewMemorySession creates an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{base: make(map[string]string)}
}

func (s *MemorySession) Begin(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBegin != nil {
		return false, s.FailBegin
	}
	if s.open {
		return false, nil
	}
	s.open = true
	s.layers = []namedLayer{{name: "", values: make(map[string]string)}}
	return true, nil
}

func (s *MemorySession) Savepoint(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, namedLayer{name: name, values: make(map[string]string)})
	return nil
}

func (s *MemorySession) ReleaseSavepoint(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRelease != nil {
		return s.FailRelease
	}
	idx := s.findLayer(name)
	if idx < 1 {
		return nil
	}
	// Merge the savepoint (and anything nested above it) downward.
	for len(s.layers) > idx {
		top := s.layers[len(s.layers)-1]
		below := s.layers[len(s.layers)-2]
		for k, v := range top.values {
			below.values[k] = v
		}
		s.layers = s.layers[:len(s.layers)-1]
	}
	return nil
}

func (s *MemorySession) RollbackToSavepoint(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRollback != nil {
		return s.FailRollback
	}
	idx := s.findLayer(name)
	if idx < 0 {
		return nil
	}
	s.layers = s.layers[:idx]
	return nil
}

func (s *MemorySession) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FailFlush
}

func (s *MemorySession) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommit != nil {
		// Model the driver contract: a failed commit destroys the transaction.
		s.layers = nil
		s.open = false
		return s.FailCommit
	}
	for _, layer := range s.layers {
		for k, v := range layer.values {
			s.base[k] = v
		}
	}
	s.layers = nil
	s.open = false
	return nil
}

func (s *MemorySession) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.layers = nil
	s.open = false
	return nil
}

func (s *MemorySession) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *MemorySession) Attach(ctx context.Context) context.Context { return ctx }

// Put writes a value into the current top layer. Calling Put outside a
// transaction writes durably, matching autocommit.
func (s *MemorySession) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || len(s.layers) == 0 {
		s.base[key] = value
		return
	}
	s.layers[len(s.layers)-1].values[key] = value
}

// Get reads through the layers, newest first, then the durable base.
func (s *MemorySession) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v, ok := s.layers[i].values[key]; ok {
			return v, true
		}
	}
	v, ok := s.base[key]
	return v, ok
}

// Committed reads only durable state, ignoring open layers.
func (s *MemorySession) Committed(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.base[key]
	return v, ok
}

func (s *MemorySession) findLayer(name string) int {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i].name == name {
			return i
		}
	}
	return -1
}
