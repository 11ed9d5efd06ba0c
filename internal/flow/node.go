package flow

import (
	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/intent"
	"github.com/MrWong99/callscript/internal/speech"
)

// Kind discriminates the node variants.
type Kind string

const (
	KindLinear    Kind = "linear"
	KindBranching Kind = "branching"
	KindTerminal  Kind = "terminal"
)

// Flag is a discount-eligibility flag a node can set from the caller's
// answer.
type Flag string

const (
	FlagNone    Flag = ""
	FlagSenior  Flag = "senior"
	FlagVeteran Flag = "veteran"
)

// Node is one vertex of a [Graph]. The set of implementations is closed:
// [*LinearNode], [*BranchingNode] and [*TerminalNode].
type Node interface {
	Base() *NodeBase
	Kind() Kind
	node()
}

// NodeBase carries the fields every node kind shares.
type NodeBase struct {
	ID      string
	Line    string
	Tone    speech.Tone
	PauseMs int

	// Value marks rapport-building content; reaching it engages the value
	// window.
	Value bool

	// Pricing marks a price-bearing line gated by the value window.
	Pricing bool

	// OfferTier is the tier this node offers, or [guardrail.TierNone].
	OfferTier guardrail.Tier

	// Discount marks a discount or bonus offer gated by eligibility.
	Discount bool

	// Ineligible is where a blocked discount goes instead. Empty means the
	// graph fallback.
	Ineligible string

	// Objection marks a node where no or hesitate counts as a price
	// objection.
	Objection bool

	// Closing marks a closing or confirmation line that must carry the
	// shipping disclosure.
	Closing bool

	// Sets names the eligibility flag a yes or no answer here sets.
	Sets Flag
}

func (b *NodeBase) Base() *NodeBase { return b }

// LinearNode always continues to Next.
type LinearNode struct {
	NodeBase
	Capture string
	Next    string
}

func (*LinearNode) Kind() Kind { return KindLinear }
func (*LinearNode) node()      {}

// BranchingNode continues by intent, then to Next when set, then to the
// graph fallback.
type BranchingNode struct {
	NodeBase
	Capture  string
	Branches map[intent.Intent]string
	Next     string
}

func (*BranchingNode) Kind() Kind { return KindBranching }
func (*BranchingNode) node()      {}

// TerminalNode ends the call.
type TerminalNode struct {
	NodeBase
}

func (*TerminalNode) Kind() Kind { return KindTerminal }
func (*TerminalNode) node()      {}

// captureSlot returns the slot n captures into, if any.
func captureSlot(n Node) string {
	switch n := n.(type) {
	case *LinearNode:
		return n.Capture
	case *BranchingNode:
		return n.Capture
	}
	return ""
}

// hasBranch reports whether n defines an explicit branch for in.
func hasBranch(n Node, in intent.Intent) bool {
	b, ok := n.(*BranchingNode)
	if !ok {
		return false
	}
	_, ok = b.Branches[in]
	return ok
}

// resolve returns the node-local successor of n for in: the branch target,
// then Next, then fallback. Terminal nodes have no successor.
func resolve(n Node, in intent.Intent, fallback string) string {
	switch n := n.(type) {
	case *LinearNode:
		return n.Next
	case *BranchingNode:
		if t, ok := n.Branches[in]; ok {
			return t
		}
		if n.Next != "" {
			return n.Next
		}
		return fallback
	}
	return ""
}

// edges returns every node id n can name directly.
func edges(n Node) []string {
	var out []string
	switch n := n.(type) {
	case *LinearNode:
		out = append(out, n.Next)
	case *BranchingNode:
		for _, t := range n.Branches {
			out = append(out, t)
		}
		if n.Next != "" {
			out = append(out, n.Next)
		}
	}
	if t := n.Base().Ineligible; t != "" {
		out = append(out, t)
	}
	return out
}
