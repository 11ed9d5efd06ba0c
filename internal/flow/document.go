package flow

// Document is the authored, serialisable form of a flow graph. [Build]
// turns it into an immutable [Graph].
type Document struct {
	Graph Header            `yaml:"graph" json:"graph"`
	Vars  map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	Nodes []NodeSpec        `yaml:"nodes" json:"nodes"`
}

// Header names the graph's special nodes. Empty fields take the defaults
// "start", "hotline" and "fallback"; ValueContinuation has no default and is
// required once any node is price-bearing.
type Header struct {
	Entry             string `yaml:"entry,omitempty" json:"entry,omitempty"`
	Hotline           string `yaml:"hotline,omitempty" json:"hotline,omitempty"`
	Fallback          string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	ValueContinuation string `yaml:"value_continuation,omitempty" json:"value_continuation,omitempty"`
}

// Default special node ids.
const (
	DefaultEntry    = "start"
	DefaultHotline  = "hotline"
	DefaultFallback = "fallback"
)

// NodeSpec is one authored node.
type NodeSpec struct {
	ID         string            `yaml:"id" json:"id"`
	Line       string            `yaml:"line" json:"line"`
	Tone       string            `yaml:"tone,omitempty" json:"tone,omitempty"`
	PauseMs    int               `yaml:"pause_ms,omitempty" json:"pause_ms,omitempty"`
	Capture    string            `yaml:"capture,omitempty" json:"capture,omitempty"`
	Branches   map[string]string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Next       string            `yaml:"next,omitempty" json:"next,omitempty"`
	Terminal   bool              `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Value      bool              `yaml:"value,omitempty" json:"value,omitempty"`
	Pricing    bool              `yaml:"pricing,omitempty" json:"pricing,omitempty"`
	OfferTier  string            `yaml:"offer_tier,omitempty" json:"offer_tier,omitempty"`
	Discount   bool              `yaml:"discount,omitempty" json:"discount,omitempty"`
	Ineligible string            `yaml:"ineligible,omitempty" json:"ineligible,omitempty"`
	Objection  bool              `yaml:"objection,omitempty" json:"objection,omitempty"`
	Closing    bool              `yaml:"closing,omitempty" json:"closing,omitempty"`
	Sets       string            `yaml:"sets,omitempty" json:"sets,omitempty"`
}

func (d Document) header() Header {
	h := d.Graph
	if h.Entry == "" {
		h.Entry = DefaultEntry
	}
	if h.Hotline == "" {
		h.Hotline = DefaultHotline
	}
	if h.Fallback == "" {
		h.Fallback = DefaultFallback
	}
	return h
}
