// Package flowgen splices authored value segments into a base flow graph.
//
// A [Plan] names an anchor node and a list of value lines. [Expand] turns the
// lines into a chain of linear value nodes inserted between the anchor and its
// successor, then builds the result with the same validation the server uses,
// so a generated document always loads.
package flowgen

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/callscript/internal/flow"
)

// Segment is one generated value line.
type Segment struct {
	Line    string `yaml:"line"`
	Tone    string `yaml:"tone,omitempty"`
	PauseMs int    `yaml:"pause_ms,omitempty"`
}

// Plan describes one expansion of a base document.
type Plan struct {
	// Name identifies the generated document. Defaults to the plan file's
	// base name when loaded through [Run].
	Name string `yaml:"name"`

	// Anchor is the linear node the segments are spliced after.
	Anchor string `yaml:"anchor"`

	// Prefix is the id prefix for generated nodes. Default: "<anchor>_value".
	Prefix string `yaml:"prefix"`

	Segments []Segment `yaml:"segments"`
}

// DecodePlan reads a YAML plan from r. Unknown fields are rejected.
func DecodePlan(r io.Reader) (Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("flowgen: decode plan: %w", err)
	}
	return p, nil
}

func (p Plan) prefix() string {
	if p.Prefix != "" {
		return p.Prefix
	}
	return p.Anchor + "_value"
}

// Expand returns a copy of base with p's segments chained after the anchor
// node. The base document is not modified. The returned document is built
// with [flow.Build] and any validation failure is returned.
func Expand(base flow.Document, p Plan) (flow.Document, error) {
	if p.Anchor == "" {
		return flow.Document{}, errors.New("flowgen: plan anchor is required")
	}
	if len(p.Segments) == 0 {
		return flow.Document{}, errors.New("flowgen: plan has no segments")
	}

	nodes := slices.Clone(base.Nodes)
	at := slices.IndexFunc(nodes, func(n flow.NodeSpec) bool { return n.ID == p.Anchor })
	if at < 0 {
		return flow.Document{}, fmt.Errorf("flowgen: anchor %q does not exist", p.Anchor)
	}
	anchor := nodes[at]
	if anchor.Terminal || len(anchor.Branches) > 0 || anchor.Next == "" {
		return flow.Document{}, fmt.Errorf("flowgen: anchor %q must be a linear node with next", p.Anchor)
	}

	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}

	prefix := p.prefix()
	generated := make([]flow.NodeSpec, len(p.Segments))
	for i, seg := range p.Segments {
		id := fmt.Sprintf("%s_%d", prefix, i+1)
		if ids[id] {
			return flow.Document{}, fmt.Errorf("flowgen: generated id %q collides with an existing node", id)
		}
		generated[i] = flow.NodeSpec{
			ID:      id,
			Line:    strings.TrimSpace(seg.Line),
			Tone:    seg.Tone,
			PauseMs: seg.PauseMs,
			Value:   true,
		}
	}
	for i := range generated {
		if i+1 < len(generated) {
			generated[i].Next = generated[i+1].ID
		} else {
			generated[i].Next = anchor.Next
		}
	}
	nodes[at].Next = generated[0].ID
	nodes = slices.Insert(nodes, at+1, generated...)

	out := flow.Document{Graph: base.Graph, Vars: base.Vars, Nodes: nodes}
	if _, err := flow.Build(out); err != nil {
		return flow.Document{}, fmt.Errorf("flowgen: plan %q: %w", p.Name, err)
	}
	return out, nil
}
