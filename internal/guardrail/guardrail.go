// Package guardrail holds the scripted business constraints that gate what a
// call is allowed to say next.
//
// Each rule is independent and either passes silently or rewrites something:
//
//   - [ValueWindow] keeps pricing back until rapport-building has run long
//     enough, failing open after a maximum.
//   - [CheckStep] enforces the one-way [Tier] step-down of offers.
//   - [Eligibility] decides whether a discount may be offered, fed by an
//     idempotent [Objections] counter.
//   - [Substituter] replaces forbidden phrases on every outbound line.
//   - [Disclosure] appends the shipping window to closing lines.
//   - [Validate] checks a payment [Envelope] before it is handed off.
//
// [Rules] bundles the configurable pieces so the traversal engine can swap
// them atomically on config reload. All types are safe for concurrent use
// once constructed, except the per-call values (ValueWindow, Objections)
// which are owned by a locked call session.
package guardrail

import (
	"fmt"
	"time"
)

// Intervention names a guardrail action taken during one advance.
type Intervention string

const (
	InterventionServiceOverride     Intervention = "service_override"
	InterventionSilenceReask        Intervention = "silence_reask"
	InterventionValueWindow         Intervention = "value_window"
	InterventionValueWindowFailOpen Intervention = "value_window_fail_open"
	InterventionTierViolation       Intervention = "tier_violation"
	InterventionDiscountIneligible  Intervention = "discount_ineligible"
	InterventionObjection           Intervention = "objection_recorded"
	InterventionForbiddenPhrase     Intervention = "forbidden_phrase"
	InterventionShippingDisclosure  Intervention = "shipping_disclosure"
)

// Config holds the tunable guardrail parameters.
type Config struct {
	// ValueWindowMin is the minimum rapport-building time before pricing.
	ValueWindowMin time.Duration

	// ValueWindowMax is when an incomplete value window fails open. Zero
	// disables failing open.
	ValueWindowMax time.Duration

	// ObjectionThreshold is the objection count that unlocks discounts.
	ObjectionThreshold int

	// Substitutions is the forbidden-phrase list. Nil selects
	// [DefaultSubstitutions]; an empty non-nil slice disables substitution.
	Substitutions []Substitution

	// DisclosureSentence and DisclosureKey configure [Disclosure].
	DisclosureSentence string
	DisclosureKey      string
}

// DefaultConfig returns the built-in guardrail settings.
func DefaultConfig() Config {
	return Config{
		ValueWindowMin:     90 * time.Second,
		ValueWindowMax:     5 * time.Minute,
		ObjectionThreshold: DefaultObjectionThreshold,
		DisclosureSentence: DefaultDisclosureSentence,
		DisclosureKey:      DefaultDisclosureKey,
	}
}

// Rules is a compiled, immutable guardrail configuration.
type Rules struct {
	cfg         Config
	substituter *Substituter
	disclosure  Disclosure
}

// NewRules compiles cfg.
func NewRules(cfg Config) (*Rules, error) {
	if cfg.ValueWindowMin < 0 {
		return nil, fmt.Errorf("guardrail: value window min %v must not be negative", cfg.ValueWindowMin)
	}
	if cfg.ValueWindowMax > 0 && cfg.ValueWindowMax < cfg.ValueWindowMin {
		return nil, fmt.Errorf("guardrail: value window max %v is below min %v", cfg.ValueWindowMax, cfg.ValueWindowMin)
	}
	subs := cfg.Substitutions
	if subs == nil {
		subs = DefaultSubstitutions
	}
	s, err := NewSubstituter(subs)
	if err != nil {
		return nil, err
	}
	return &Rules{
		cfg:         cfg,
		substituter: s,
		disclosure:  NewDisclosure(cfg.DisclosureSentence, cfg.DisclosureKey),
	}, nil
}

// Config returns the configuration r was built from.
func (r *Rules) Config() Config { return r.cfg }

// CheckValueWindow evaluates the value-window gate for a pricing transition.
func (r *Rules) CheckValueWindow(w *ValueWindow, now time.Time) GateResult {
	return w.Check(now, r.cfg.ValueWindowMin, r.cfg.ValueWindowMax)
}

// DiscountAllowed reports whether e permits a discount offer.
func (r *Rules) DiscountAllowed(e Eligibility) bool {
	return e.Eligible(r.cfg.ObjectionThreshold)
}

// CheckLine runs the line-level rules on an outbound line: forbidden-phrase
// substitution always, shipping disclosure when closing is true.
func (r *Rules) CheckLine(line string, closing bool) (string, []Intervention) {
	var applied []Intervention
	if out, changed := r.substituter.Apply(line); changed {
		line = out
		applied = append(applied, InterventionForbiddenPhrase)
	}
	if closing {
		if out, changed := r.disclosure.Enforce(line); changed {
			line = out
			applied = append(applied, InterventionShippingDisclosure)
		}
	}
	return line, applied
}
