package guardrail

import (
	"errors"
	"fmt"
)

// Tier is a position in the fixed offer step-down sequence.
type Tier string

const (
	TierAnnual     Tier = "annual"
	TierSixMonth   Tier = "six_month"
	TierThreeMonth Tier = "three_month"
	TierSingle     Tier = "single"
	TierNone       Tier = "none"
)

// ErrTierUpward is returned by [CheckStep] when a transition would re-offer a
// tier above the one already presented.
var ErrTierUpward = errors.New("guardrail: offer tier moved upward")

// ErrTierSkip is returned by [CheckStep] when a transition would jump past the
// next lower tier.
var ErrTierSkip = errors.New("guardrail: offer tier skipped a step")

// tierOrder lists offer tiers from largest to smallest.
var tierOrder = []Tier{TierAnnual, TierSixMonth, TierThreeMonth, TierSingle}

// Rank returns the position of t in the step-down order, 0 being the largest
// offer. TierNone and unknown values rank after every real tier.
func (t Tier) Rank() int {
	for i, o := range tierOrder {
		if o == t {
			return i
		}
	}
	return len(tierOrder)
}

// IsOffer reports whether t is one of the four real offer tiers.
func (t Tier) IsOffer() bool {
	return t.Rank() < len(tierOrder)
}

// IsValid reports whether t is a recognised tier value, including TierNone.
func (t Tier) IsValid() bool {
	return t == TierNone || t.IsOffer()
}

// Next returns the tier directly below t, or TierNone when t is the smallest
// offer (or not an offer at all).
func (t Tier) Next() Tier {
	r := t.Rank()
	if r+1 < len(tierOrder) {
		return tierOrder[r+1]
	}
	return TierNone
}

// Tiers returns the offer tiers in step-down order.
func Tiers() []Tier {
	out := make([]Tier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// CheckStep validates moving from the currently presented tier to target.
//
// With no offer presented yet (current is TierNone) any tier may open the
// sequence. Re-presenting the current tier is allowed. Otherwise the only
// legal move is to current.Next(): anything higher is [ErrTierUpward] and
// anything lower is [ErrTierSkip].
func CheckStep(current, target Tier) error {
	if !target.IsOffer() {
		return nil
	}
	if !current.IsOffer() || current == target {
		return nil
	}
	switch {
	case target.Rank() < current.Rank():
		return fmt.Errorf("%w: %s -> %s", ErrTierUpward, current, target)
	case target != current.Next():
		return fmt.Errorf("%w: %s -> %s (expected %s)", ErrTierSkip, current, target, current.Next())
	}
	return nil
}
