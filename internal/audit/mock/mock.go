// Package mock provides an in-memory test double for [audit.Recorder].
//
// The mock records every turn for assertion in tests and exposes exported
// fields that control what it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	rec := &mock.Recorder{}
//	guard := audit.NewGuard(rec)
//	// drive the system under test …
//	if got := len(rec.Turns()); got != 2 {
//	    t.Errorf("expected 2 turns, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/callscript/internal/audit"
)

// Recorder is a configurable test double for [audit.Recorder] and
// [audit.Pinger].
type Recorder struct {
	mu    sync.Mutex
	turns []audit.Turn
	pings int

	// RecordErr is returned by [Recorder.Record] when non-nil. The turn is
	// not stored.
	RecordErr error

	// PingErr is returned by [Recorder.Ping] when non-nil.
	PingErr error

	// Block, when non-nil, makes Record wait until it is closed or the
	// context ends.
	Block chan struct{}
}

// Record implements [audit.Recorder].
func (m *Recorder) Record(ctx context.Context, turn audit.Turn) error {
	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.turns = append(m.turns, turn)
	return nil
}

// Ping implements [audit.Pinger].
func (m *Recorder) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.PingErr
}

// SetRecordErr changes RecordErr under the mock's lock.
func (m *Recorder) SetRecordErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordErr = err
}

// Turns returns a copy of every recorded turn in order.
func (m *Recorder) Turns() []audit.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// PingCount returns how many times Ping was called.
func (m *Recorder) PingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

var (
	_ audit.Recorder = (*Recorder)(nil)
	_ audit.Pinger   = (*Recorder)(nil)
)
