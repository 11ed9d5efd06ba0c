// Package audit records the history of every call: one [Turn] per advance.
//
// The audit log is append-only history, never session state; the call flow
// does not read it back. Writes are best-effort. [Guard] bounds each write
// with a timeout and a circuit breaker so a slow or dead backend never holds
// up a live call.
package audit

import (
	"context"
	"time"
)

// Turn is one advance of one call as seen by the caller and the agent.
type Turn struct {
	CallID string `json:"call_id"`

	// NodeID is the node the agent moved to.
	NodeID string `json:"node_id"`

	// Intent is the classified intent, empty on first contact.
	Intent string `json:"intent,omitempty"`

	// Utterance is the raw caller text as received.
	Utterance string `json:"utterance"`

	// Reply is the plain text the agent spoke.
	Reply string `json:"reply"`

	Terminal      bool      `json:"terminal"`
	Interventions []string  `json:"interventions,omitempty"`
	At            time.Time `json:"at"`
}

// Recorder appends turns to a backend.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, turn Turn) error
}

// Pinger is implemented by recorders whose backend can be probed for
// readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Nop discards every turn. It is used when no audit backend is configured.
type Nop struct{}

// Record implements [Recorder].
func (Nop) Record(context.Context, Turn) error { return nil }

var _ Recorder = Nop{}
