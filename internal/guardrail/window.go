package guardrail

import "time"

// ValueWindow bounds the mandatory rapport-building interval of a call.
//
// The window completes once the elapsed time since StartedAt exceeds the
// configured minimum and the caller has heard at least one value-building
// line (Engaged). If the elapsed time exceeds the maximum first, the gate
// fails open.
type ValueWindow struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Engaged     bool       `json:"engaged"`
}

// GateResult is the outcome of a value-window check.
type GateResult int

const (
	// GateOpen means pricing may be disclosed.
	GateOpen GateResult = iota

	// GateBlocked means the caller must hear more value-building first.
	GateBlocked

	// GateFailedOpen means the window never completed but the maximum elapsed,
	// so the gate was dropped.
	GateFailedOpen
)

// String returns the lower-case name of the result.
func (r GateResult) String() string {
	switch r {
	case GateOpen:
		return "open"
	case GateBlocked:
		return "blocked"
	case GateFailedOpen:
		return "failed_open"
	default:
		return "unknown"
	}
}

// Check evaluates the gate at now and marks the window completed when it
// opens. min and max are the configured bounds; a non-positive max disables
// the fail-open path.
func (w *ValueWindow) Check(now time.Time, min, max time.Duration) GateResult {
	if w.CompletedAt != nil {
		return GateOpen
	}
	elapsed := now.Sub(w.StartedAt)
	if elapsed > min && w.Engaged {
		w.complete(now)
		return GateOpen
	}
	if max > 0 && elapsed > max {
		w.complete(now)
		return GateFailedOpen
	}
	return GateBlocked
}

func (w *ValueWindow) complete(now time.Time) {
	t := now
	w.CompletedAt = &t
}
