package guardrail

import (
	"regexp"
	"strings"

	"github.com/MrWong99/callscript/internal/speech"
)

const (
	// DefaultDisclosureSentence is appended to closing lines that omit the
	// shipping window.
	DefaultDisclosureSentence = "Your order ships within five to seven business days."

	// DefaultDisclosureKey is the canonical phrase whose presence satisfies
	// the disclosure requirement.
	DefaultDisclosureKey = "five to seven business days"
)

// numericShippingWindow matches the digit spellings that normalize into the
// canonical key ("5-7 business days", "5–7 days", "5 to 7 days").
var numericShippingWindow = regexp.MustCompile(`(?i)\b5\s*(?:-|–|to)\s*7\s+(?:business\s+)?days\b`)

// Disclosure enforces the shipping-window phrase on closing lines.
type Disclosure struct {
	// Sentence is appended when the key phrase is missing.
	Sentence string

	// Key is matched case-insensitively to decide whether the line already
	// discloses the shipping window.
	Key string
}

// NewDisclosure returns a Disclosure, filling empty fields with defaults.
func NewDisclosure(sentence, key string) Disclosure {
	if strings.TrimSpace(sentence) == "" {
		sentence = DefaultDisclosureSentence
	}
	if strings.TrimSpace(key) == "" {
		key = DefaultDisclosureKey
	}
	return Disclosure{Sentence: strings.TrimSpace(sentence), Key: strings.TrimSpace(key)}
}

// Present reports whether the spoken part of line carries the shipping
// window. Stage directions and other control tokens are never spoken, so a
// phrase inside them does not count.
func (d Disclosure) Present(line string) bool {
	return d.present(speech.NormalizeInbound(line))
}

func (d Disclosure) present(spoken string) bool {
	if strings.Contains(strings.ToLower(spoken), strings.ToLower(d.Key)) {
		return true
	}
	return numericShippingWindow.MatchString(spoken)
}

// Enforce appends the disclosure sentence to line when it is missing,
// terminating the previous sentence first. A line that needs the sentence is
// returned in its spoken form, without control tokens. It reports whether
// line changed.
func (d Disclosure) Enforce(line string) (string, bool) {
	spoken := speech.NormalizeInbound(line)
	if d.present(spoken) {
		return line, false
	}
	trimmed := strings.TrimRight(spoken, " \t\n")
	if trimmed == "" {
		return d.Sentence, true
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
	default:
		trimmed = strings.TrimRight(trimmed, ",;:-") + "."
	}
	return trimmed + " " + d.Sentence, true
}
