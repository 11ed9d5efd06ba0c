// Package session holds the mutable per-call state and the store that
// serializes access to it.
//
// A [CallSession] is created on first contact, mutated once per advance
// while its key is locked through [Store.WithLock], and removed when the
// call is reset. Different calls never share state and proceed in parallel.
package session

import (
	"maps"
	"time"

	"github.com/MrWong99/callscript/internal/guardrail"
)

// CallSession is the state of one in-progress call.
type CallSession struct {
	// ID is the external correlation key (e.g. the telephony call id).
	ID string `json:"id"`

	// CurrentNodeID is the flow node the caller is currently answering.
	CurrentNodeID string `json:"current_node_id"`

	// Slots holds captured caller answers keyed by slot name.
	Slots map[string]string `json:"slots,omitempty"`

	ValueWindow guardrail.ValueWindow `json:"value_window"`

	// OfferTier is the last offer tier presented, or [guardrail.TierNone].
	OfferTier guardrail.Tier `json:"offer_tier"`

	Eligibility guardrail.Eligibility `json:"eligibility"`

	// Visit increments every time the call moves to a node. Objections are
	// counted at most once per visit.
	Visit int `json:"visit"`

	// SilenceCount is the number of consecutive silent turns on the current
	// node.
	SilenceCount int `json:"silence_count"`

	// Closed is set once a terminal node is reached.
	Closed bool `json:"closed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a session positioned at entry with its value window started.
func New(id, entry string, now time.Time) *CallSession {
	return &CallSession{
		ID:            id,
		CurrentNodeID: entry,
		Slots:         make(map[string]string),
		ValueWindow:   guardrail.ValueWindow{StartedAt: now},
		OfferTier:     guardrail.TierNone,
		Visit:         1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SetSlot stores value under name, replacing any earlier capture.
func (s *CallSession) SetSlot(name, value string) {
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	s.Slots[name] = value
}

// Clone returns a deep copy of s.
func (s *CallSession) Clone() *CallSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Slots = maps.Clone(s.Slots)
	if s.ValueWindow.CompletedAt != nil {
		t := *s.ValueWindow.CompletedAt
		c.ValueWindow.CompletedAt = &t
	}
	return &c
}
