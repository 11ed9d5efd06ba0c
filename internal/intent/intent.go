// Package intent maps a normalized caller utterance to one of a closed set
// of branch labels.
//
// Rules are evaluated in priority order and the first match wins:
//
//  1. service keywords (or a phonetically recovered service keyword)
//  2. affirmative keywords
//  3. negative keywords
//  4. empty input is silence
//
// Anything else is [Hesitate]. Keywords match on word boundaries, case
// insensitively, so "yes" never matches inside "yesterday".
package intent

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/callscript/internal/intent/phonetic"
)

// Intent is a classified branch label.
type Intent string

const (
	Yes      Intent = "yes"
	No       Intent = "no"
	Hesitate Intent = "hesitate"
	Silence  Intent = "silence"
	Service  Intent = "service-intent"
)

// All returns every intent label in priority order.
func All() []Intent {
	return []Intent{Service, Yes, No, Silence, Hesitate}
}

// IsValid reports whether i is a known intent label.
func (i Intent) IsValid() bool {
	return slices.Contains(All(), i)
}

// Keywords holds the phrase lists for each keyword rule.
type Keywords struct {
	Service     []string `yaml:"service"`
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
}

// DefaultKeywords returns the built-in phrase lists.
func DefaultKeywords() Keywords {
	return Keywords{
		Service: []string{
			"representative", "agent", "supervisor", "manager", "reorder", "re-order",
			"customer service", "real person", "human", "operator",
		},
		Affirmative: []string{
			"yes", "yeah", "yep", "sure", "okay", "ok", "correct", "absolutely",
			"definitely", "sounds good", "go ahead", "that's right", "of course",
			"please do", "mhm",
		},
		Negative: []string{
			"no", "nope", "nah", "not interested", "don't", "do not", "can't afford",
			"too expensive", "no thanks", "stop", "never",
		},
	}
}

// DefaultPhoneticKeywords are the service keywords long enough to be
// recovered phonetically when misheard.
var DefaultPhoneticKeywords = []string{"representative", "supervisor", "operator", "reorder"}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithPhoneticFallback overrides the keywords recovered phonetically. An
// empty list disables the fallback.
func WithPhoneticFallback(keywords []string) Option {
	return func(c *Classifier) {
		if len(keywords) == 0 {
			c.phonetic = nil
			return
		}
		c.phonetic = phonetic.New(keywords)
	}
}

// Classifier is a compiled keyword classifier. It is immutable and safe for
// concurrent use.
type Classifier struct {
	service     *regexp.Regexp
	affirmative *regexp.Regexp
	negatedYes  *regexp.Regexp
	negative    *regexp.Regexp
	phonetic    *phonetic.Matcher
}

// New compiles kw. Empty lists in kw are replaced with the defaults.
func New(kw Keywords, opts ...Option) (*Classifier, error) {
	def := DefaultKeywords()
	if len(kw.Service) == 0 {
		kw.Service = def.Service
	}
	if len(kw.Affirmative) == 0 {
		kw.Affirmative = def.Affirmative
	}
	if len(kw.Negative) == 0 {
		kw.Negative = def.Negative
	}

	c := &Classifier{phonetic: phonetic.New(DefaultPhoneticKeywords)}
	var err error
	if c.service, err = compileKeywords("service", kw.Service, ""); err != nil {
		return nil, err
	}
	if c.affirmative, err = compileKeywords("affirmative", kw.Affirmative, ""); err != nil {
		return nil, err
	}
	if c.negatedYes, err = compileKeywords("affirmative", kw.Affirmative, `\bnot\s+`); err != nil {
		return nil, err
	}
	if c.negative, err = compileKeywords("negative", kw.Negative, ""); err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// MustDefault returns a classifier with the built-in keywords.
func MustDefault() *Classifier {
	c, err := New(Keywords{})
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the intent of a normalized utterance. It never fails;
// anything unrecognised is [Hesitate].
func (c *Classifier) Classify(normalized string) Intent {
	text := strings.ToLower(strings.TrimSpace(normalized))
	if text == "" {
		return Silence
	}
	if c.service.MatchString(text) {
		return Service
	}
	if c.phonetic != nil {
		if _, ok := c.phonetic.MatchAny(text); ok {
			return Service
		}
	}
	// "not sure" is not agreement.
	if c.affirmative.MatchString(c.negatedYes.ReplaceAllLiteralString(text, " ")) {
		return Yes
	}
	if c.negative.MatchString(text) {
		return No
	}
	return Hesitate
}

// compileKeywords builds one case-insensitive alternation with word
// boundaries on the sides of each phrase that begin or end with a word
// character. Internal whitespace matches any run of whitespace.
func compileKeywords(rule string, phrases []string, prefix string) (*regexp.Regexp, error) {
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alt := strings.Join(words, `\s+`)
		if isWordByte(p[0]) {
			alt = `\b` + alt
		}
		if isWordByte(p[len(p)-1]) {
			alt += `\b`
		}
		alts = append(alts, alt)
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("intent: %s keyword list is empty", rule)
	}
	// Longer phrases first so "no thanks" wins over "no".
	slices.SortStableFunc(alts, func(a, b string) int { return len(b) - len(a) })
	re, err := regexp.Compile(`(?i)` + prefix + `(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("intent: compile %s keywords: %w", rule, err)
	}
	return re, nil
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
