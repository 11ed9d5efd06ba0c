package session

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// Per-call locks are reference counted and dropped once no goroutine holds
// or waits for them, so idle calls cost nothing beyond their session.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession

	lockMu sync.Mutex
	locks  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*CallSession),
		locks:    make(map[string]*keyLock),
	}
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (*CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cs.Clone(), nil
}

// Put implements [Store.Put].
func (s *MemStore) Put(_ context.Context, cs *CallSession) error {
	if cs == nil || cs.ID == "" {
		return fmt.Errorf("session: put: missing session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[cs.ID] = cs.Clone()
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// WithLock implements [Store.WithLock].
func (s *MemStore) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	l := s.ref(id)
	defer s.unref(id, l)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("session: lock %q: %w", id, ctx.Err())
	}
	defer func() { <-l.sem }()

	return fn(ctx)
}

func (s *MemStore) ref(id string) *keyLock {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *MemStore) unref(id string, l *keyLock) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
}
