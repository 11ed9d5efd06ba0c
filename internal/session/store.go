package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no session exists for the id.
var ErrNotFound = errors.New("session: not found")

// Store persists call sessions and serializes work on a single call.
//
// Get and Put exchange copies, so a caller never aliases stored state.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns a copy of the session stored under id.
	// Returns [ErrNotFound] when there is none.
	Get(ctx context.Context, id string) (*CallSession, error)

	// Put stores a copy of s under s.ID, replacing any previous value.
	Put(ctx context.Context, s *CallSession) error

	// Delete removes the session stored under id. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, id string) error

	// WithLock runs fn while holding the exclusive lock for id. The lock is
	// released on every exit path of fn, including panics. If ctx ends
	// before the lock is acquired, fn is not run and the context error is
	// returned.
	WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
}
