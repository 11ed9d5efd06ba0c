package guardrail

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Substitution replaces a forbidden phrase with an approved one.
type Substitution struct {
	Phrase      string `yaml:"phrase"`
	Replacement string `yaml:"replacement"`
}

// DefaultSubstitutions is the built-in forbidden-phrase list used when the
// configuration does not provide one.
var DefaultSubstitutions = []Substitution{
	{Phrase: "100% guaranteed", Replacement: "backed by our satisfaction policy"},
	{Phrase: "guaranteed to work", Replacement: "designed to help"},
	{Phrase: "guaranteed results", Replacement: "results many customers enjoy"},
	{Phrase: "guaranteed", Replacement: "designed"},
	{Phrase: "risk-free", Replacement: "covered by our return policy"},
	{Phrase: "no risk", Replacement: "low commitment"},
	{Phrase: "miracle", Replacement: "remarkable"},
	{Phrase: "cure", Replacement: "support"},
}

type compiledSubstitution struct {
	re          *regexp.Regexp
	replacement string
}

// Substituter rewrites forbidden phrases in outbound lines. It is read-only
// after construction and safe for concurrent use.
type Substituter struct {
	subs []compiledSubstitution
}

// NewSubstituter compiles subs. Longer phrases are applied first so that
// "guaranteed to work" wins over "guaranteed". A replacement that itself
// contains a forbidden phrase is rejected, since applying the list twice
// would then change the line again.
func NewSubstituter(subs []Substitution) (*Substituter, error) {
	ordered := make([]Substitution, 0, len(subs))
	for i, s := range subs {
		if strings.TrimSpace(s.Phrase) == "" {
			return nil, fmt.Errorf("guardrail: substitution[%d]: phrase must not be empty", i)
		}
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Phrase) > len(ordered[j].Phrase)
	})

	out := &Substituter{subs: make([]compiledSubstitution, 0, len(ordered))}
	for _, s := range ordered {
		re, err := regexp.Compile(phrasePattern(s.Phrase))
		if err != nil {
			return nil, fmt.Errorf("guardrail: compile phrase %q: %w", s.Phrase, err)
		}
		out.subs = append(out.subs, compiledSubstitution{re: re, replacement: s.Replacement})
	}
	for _, s := range ordered {
		for _, c := range out.subs {
			if c.re.MatchString(s.Replacement) {
				return nil, fmt.Errorf("guardrail: replacement %q for %q contains forbidden phrase %q",
					s.Replacement, s.Phrase, c.re.String())
			}
		}
	}
	return out, nil
}

// Apply replaces every forbidden phrase in line. It reports whether anything
// was replaced.
func (s *Substituter) Apply(line string) (string, bool) {
	if s == nil {
		return line, false
	}
	changed := false
	for _, c := range s.subs {
		if !c.re.MatchString(line) {
			continue
		}
		line = c.re.ReplaceAllLiteralString(line, c.replacement)
		changed = true
	}
	return line, changed
}

// phrasePattern builds a case-insensitive pattern for phrase. Word boundaries
// are only added on sides that start or end with a word character, and
// internal whitespace matches any whitespace run.
func phrasePattern(phrase string) string {
	phrase = strings.TrimSpace(phrase)
	parts := strings.Fields(phrase)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	body := strings.Join(parts, `\s+`)

	first, _ := utf8.DecodeRuneInString(phrase)
	last, _ := utf8.DecodeLastRuneInString(phrase)
	prefix, suffix := "", ""
	if isWordRune(first) {
		prefix = `\b`
	}
	if isWordRune(last) {
		suffix = `\b`
	}
	return `(?i)` + prefix + body + suffix
}

func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
