// Package phonetic recovers keywords that speech recognition misheard, using
// Double Metaphone encoding combined with Jaro-Winkler similarity.
//
// A token matches a keyword only when both signals agree:
//
//  1. Phonetic overlap: at least one Double Metaphone code of the token
//     equals a code of the keyword.
//  2. Similarity: the case-insensitive Jaro-Winkler score reaches the
//     configured threshold (default 0.88).
//
// Requiring both keeps ordinary words that merely sound alike ("operation"
// vs "operator") from being promoted to keywords.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultThreshold = 0.88
	defaultMinLength = 6
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum Jaro-Winkler score. Default: 0.88.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithMinLength sets the shortest token considered. Short tokens have too
// little phonetic signal to be matched safely. Default: 6.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.minLength = n
		}
	}
}

// Matcher is a phonetic keyword matcher. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	threshold float64
	minLength int
	keywords  []keyword
}

type keyword struct {
	text  string
	codes map[string]struct{}
}

// New returns a [Matcher] for keywords. Keyword codes are computed once.
func New(keywords []string, opts ...Option) *Matcher {
	m := &Matcher{
		threshold: defaultThreshold,
		minLength: defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		m.keywords = append(m.keywords, keyword{text: k, codes: codesFor(k)})
	}
	return m
}

// Match returns the best keyword for token. When matched is false, keyword
// is empty and score is 0.
func (m *Matcher) Match(token string) (kw string, score float64, matched bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) < m.minLength || len(m.keywords) == 0 {
		return "", 0, false
	}
	codes := codesFor(token)
	for _, k := range m.keywords {
		if !codesOverlap(codes, k.codes) {
			continue
		}
		s := matchr.JaroWinkler(token, k.text, false)
		if s >= m.threshold && s > score {
			kw, score = k.text, s
		}
	}
	return kw, score, kw != ""
}

// MatchAny scans the whitespace-separated tokens of text and returns the
// first token-level match.
func (m *Matcher) MatchAny(text string) (kw string, matched bool) {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if k, _, ok := m.Match(tok); ok {
			return k, true
		}
	}
	return "", false
}

// codesFor returns the Double Metaphone codes of a single word. Empty codes
// are excluded.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
