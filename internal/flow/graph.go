package flow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/intent"
	"github.com/MrWong99/callscript/internal/speech"
)

// Graph is an immutable, validated flow graph. It is safe for concurrent use.
type Graph struct {
	header Header
	nodes  map[string]Node
	order  []string
	vars   map[string]string
	offers map[guardrail.Tier]string
}

// Entry returns the id of the node every call starts at.
func (g *Graph) Entry() string { return g.header.Entry }

// Hotline returns the id of the node service intent always routes to.
func (g *Graph) Hotline() string { return g.header.Hotline }

// Fallback returns the id of the generic fallback node.
func (g *Graph) Fallback() string { return g.header.Fallback }

// ValueContinuation returns the id of the node substituted for pricing while
// the value window is still open, or "" for graphs without pricing.
func (g *Graph) ValueContinuation() string { return g.header.ValueContinuation }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// IDs returns all node ids in document order.
func (g *Graph) IDs() []string { return slices.Clone(g.order) }

// Var returns a graph-level template variable.
func (g *Graph) Var(name string) (string, bool) {
	v, ok := g.vars[name]
	return v, ok
}

// OfferNode returns the node offering tier t.
func (g *Graph) OfferNode(t guardrail.Tier) (string, bool) {
	id, ok := g.offers[t]
	return id, ok
}

// Build validates doc and returns the immutable graph. Every problem found is
// reported in one joined error; a graph that fails to build must not be used.
func Build(doc Document) (*Graph, error) {
	g := &Graph{
		header: doc.header(),
		nodes:  make(map[string]Node, len(doc.Nodes)),
		vars:   maps.Clone(doc.Vars),
		offers: make(map[guardrail.Tier]string),
	}
	if g.vars == nil {
		g.vars = map[string]string{}
	}

	var errs []error
	for i, spec := range doc.Nodes {
		n, err := buildNode(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d] %q: %w", i, spec.ID, err))
			continue
		}
		if _, dup := g.nodes[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate node id %q", i, spec.ID))
			continue
		}
		g.nodes[spec.ID] = n
		g.order = append(g.order, spec.ID)

		if t := n.Base().OfferTier; t.IsOffer() {
			if prev, ok := g.offers[t]; ok {
				errs = append(errs, fmt.Errorf("node %q: tier %s is already offered by %q", spec.ID, t, prev))
				continue
			}
			g.offers[t] = spec.ID
		}
	}

	errs = append(errs, g.checkReferences()...)
	errs = append(errs, g.checkSpecialNodes()...)
	errs = append(errs, g.checkTierLadder()...)
	if len(errs) == 0 {
		errs = append(errs, g.checkLiveness()...)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("flow: invalid graph: %w", errors.Join(errs...))
	}
	return g, nil
}

func buildNode(spec NodeSpec) (Node, error) {
	var errs []error
	if spec.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(spec.Line) == "" {
		errs = append(errs, errors.New("line is required"))
	}

	base := NodeBase{
		ID:         spec.ID,
		Line:       spec.Line,
		Tone:       speech.Tone(spec.Tone),
		PauseMs:    spec.PauseMs,
		Value:      spec.Value,
		Pricing:    spec.Pricing,
		OfferTier:  guardrail.TierNone,
		Discount:   spec.Discount,
		Ineligible: spec.Ineligible,
		Objection:  spec.Objection,
		Closing:    spec.Closing,
		Sets:       Flag(spec.Sets),
	}
	if base.Tone == "" {
		base.Tone = speech.ToneNeutral
	} else if !base.Tone.IsValid() {
		errs = append(errs, fmt.Errorf("tone %q is invalid", spec.Tone))
	}
	if spec.PauseMs < 0 {
		errs = append(errs, fmt.Errorf("pause_ms %d must not be negative", spec.PauseMs))
	}
	if spec.OfferTier != "" {
		t := guardrail.Tier(spec.OfferTier)
		if !t.IsOffer() {
			errs = append(errs, fmt.Errorf("offer_tier %q is invalid", spec.OfferTier))
		} else {
			base.OfferTier = t
			base.Pricing = true
		}
	}
	switch base.Sets {
	case FlagNone, FlagSenior, FlagVeteran:
	default:
		errs = append(errs, fmt.Errorf("sets %q is invalid; valid values: senior, veteran", spec.Sets))
	}
	if spec.Ineligible != "" && !spec.Discount {
		errs = append(errs, errors.New("ineligible is only allowed on discount nodes"))
	}

	var n Node
	switch {
	case spec.Terminal:
		if len(spec.Branches) > 0 || spec.Next != "" || spec.Capture != "" {
			errs = append(errs, errors.New("terminal node must not have branches, next or capture"))
		}
		if base.Sets != FlagNone || base.Objection {
			errs = append(errs, errors.New("terminal node never hears an answer; sets and objection are not allowed"))
		}
		n = &TerminalNode{NodeBase: base}
	case len(spec.Branches) > 0:
		branches := make(map[intent.Intent]string, len(spec.Branches))
		for label, target := range spec.Branches {
			in := intent.Intent(label)
			switch {
			case !in.IsValid():
				errs = append(errs, fmt.Errorf("branch on unknown intent %q", label))
			case in == intent.Service:
				errs = append(errs, fmt.Errorf("branch on %q is unreachable; service intent always routes to the hotline", label))
			case target == "":
				errs = append(errs, fmt.Errorf("branch %q has an empty target", label))
			}
			branches[in] = target
		}
		n = &BranchingNode{NodeBase: base, Capture: spec.Capture, Branches: branches, Next: spec.Next}
	default:
		if spec.Next == "" {
			errs = append(errs, errors.New("node needs branches, next or terminal"))
		}
		n = &LinearNode{NodeBase: base, Capture: spec.Capture, Next: spec.Next}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return n, nil
}

func (g *Graph) checkReferences() []error {
	var errs []error
	for _, id := range g.order {
		n := g.nodes[id]
		for _, target := range edges(n) {
			if _, ok := g.nodes[target]; !ok {
				errs = append(errs, fmt.Errorf("node %q references unknown node %q", id, target))
			}
		}
		if t := n.Base().Ineligible; t != "" {
			if tn, ok := g.nodes[t]; ok && tn.Base().Discount {
				errs = append(errs, fmt.Errorf("node %q: ineligible target %q is itself a discount offer", id, t))
			}
		}
	}
	return errs
}

func (g *Graph) checkSpecialNodes() []error {
	var errs []error
	for _, s := range []struct{ field, id string }{
		{"graph.entry", g.header.Entry},
		{"graph.hotline", g.header.Hotline},
		{"graph.fallback", g.header.Fallback},
	} {
		if _, ok := g.nodes[s.id]; !ok {
			errs = append(errs, fmt.Errorf("%s %q does not exist", s.field, s.id))
		}
	}
	if n, ok := g.nodes[g.header.Fallback]; ok && n.Base().Discount {
		errs = append(errs, fmt.Errorf("graph.fallback %q must not be a discount offer", g.header.Fallback))
	}
	// The entry line is returned before any guardrail has run.
	if n, ok := g.nodes[g.header.Entry]; ok && (n.Base().Pricing || n.Base().Discount) {
		errs = append(errs, fmt.Errorf("graph.entry %q must not be price-bearing or a discount offer", g.header.Entry))
	}

	pricing := false
	valueNodes := 0
	for _, n := range g.nodes {
		if n.Base().Pricing {
			pricing = true
		}
		if n.Base().Value {
			valueNodes++
		}
	}

	vc := g.header.ValueContinuation
	if vc == "" {
		if pricing {
			errs = append(errs, errors.New("graph.value_continuation is required when any node is price-bearing"))
		}
		return errs
	}
	n, ok := g.nodes[vc]
	if !ok {
		return append(errs, fmt.Errorf("graph.value_continuation %q does not exist", vc))
	}
	b := n.Base()
	if b.Pricing || b.Discount || n.Kind() == KindTerminal {
		errs = append(errs, fmt.Errorf("graph.value_continuation %q must be a non-terminal node without pricing or discount", vc))
	}
	if pricing && valueNodes == 0 {
		errs = append(errs, errors.New("graph has price-bearing nodes but no value nodes to complete the value window"))
	}
	return errs
}

// checkTierLadder requires the offered tiers to form a contiguous run of the
// step-down order, so the next lower tier of any offer is either present or
// past the end of the ladder.
func (g *Graph) checkTierLadder() []error {
	var errs []error
	started, gap := false, guardrail.TierNone
	for _, t := range guardrail.Tiers() {
		_, present := g.offers[t]
		switch {
		case present && gap != guardrail.TierNone:
			errs = append(errs, fmt.Errorf("offer tier %s is present but %s above it is missing", t, gap))
		case present:
			started = true
		case started && gap == guardrail.TierNone:
			gap = t
		}
	}
	return errs
}

// Reachable returns the ids of every node a call can visit, in document
// order. Besides authored edges this includes the hotline and fallback from
// every non-terminal node, the value continuation from price-bearing nodes,
// and the next lower offer from offer nodes.
func (g *Graph) Reachable() []string {
	seen := map[string]bool{g.header.Entry: true}
	queue := []string{g.header.Entry}
	push := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if _, ok := g.nodes[id]; !ok {
			return
		}
		seen[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[id]
		if !ok || n.Kind() == KindTerminal {
			continue
		}
		for _, t := range edges(n) {
			push(t)
		}
		push(g.header.Hotline)
		push(g.header.Fallback)
		b := n.Base()
		if b.Pricing {
			push(g.header.ValueContinuation)
		}
		if b.OfferTier.IsOffer() {
			if next, ok := g.offers[b.OfferTier.Next()]; ok {
				push(next)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for _, id := range g.order {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// checkLiveness verifies that every reachable non-terminal node resolves to
// an existing node for every intent, and that the call can end.
func (g *Graph) checkLiveness() []error {
	var errs []error
	terminal := false
	for _, id := range g.Reachable() {
		n := g.nodes[id]
		if n.Kind() == KindTerminal {
			terminal = true
			continue
		}
		for _, in := range intent.All() {
			target := g.header.Hotline
			if in != intent.Service {
				target = resolve(n, in, g.header.Fallback)
			}
			if _, ok := g.nodes[target]; !ok {
				errs = append(errs, fmt.Errorf("node %q dead-ends on intent %q", id, in))
			}
		}
	}
	if !terminal {
		errs = append(errs, errors.New("no terminal node is reachable from the entry node"))
	}
	return errs
}
