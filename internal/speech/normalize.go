// Package speech turns raw caller transcripts and scripted lines into clean,
// unambiguous text, and wraps outbound text in speech-synthesizer markup.
//
// [NormalizeInbound] prepares a caller utterance for intent classification.
// [NormalizeOutbound] additionally expands addresses, currency, long digit
// runs and the shipping window so a TTS engine reads them the way a person
// would. Both are pure, total functions, and NormalizeOutbound is idempotent.
//
// [Compose] renders normalized text as SSML using a per-tone prosody table.
package speech

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// controlTokens match stage directions that must never be classified or
// spoken: bracketed cues, unresolved {{placeholders}}, raw tags, *actions*
// and parenthesised pause cues.
var controlTokens = []*regexp.Regexp{
	regexp.MustCompile(`\[[^\]]*\]`),
	regexp.MustCompile(`\{\{[^}]*\}\}`),
	regexp.MustCompile(`<[^>]*>`),
	regexp.MustCompile(`\*[^*\n]+\*`),
	regexp.MustCompile(`(?i)\(\s*(?:pause|beat|breath|sigh|laughs?|chuckles?)\b[^)]*\)`),
}

// fillers is the closed list of vocal fillers. Stretched spellings ("ummm")
// are matched directly so the letter-run stage cannot turn them into a new
// filler on a second pass.
var fillers = regexp.MustCompile(`(?i)\b(?:u+m+|u+h+m*|e+r+m*|a+h+|h+m+)\b`)

var whitespace = regexp.MustCompile(`\s+`)

// regionCode matches a two-letter code in address position (after a comma).
var regionCode = regexp.MustCompile(`,\s*[A-Z]{2}\b`)

// currencyPattern matches a dollar amount with optional thousands separators
// and an optional fractional part.
var currencyPattern = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?`)

var digitRun = regexp.MustCompile(`[0-9]+`)

var shippingWindow = regexp.MustCompile(`(?i)\b5\s*(?:-|–|to)\s*7\s+(?:business\s+)?days\b`)

// minSpokenDigitRun is the shortest free-standing digit run that is split
// into individually spoken digits.
const minSpokenDigitRun = 7

// NormalizeInbound cleans a raw caller utterance: control tokens and fillers
// are removed, stretched letters are collapsed, and whitespace is tidied.
func NormalizeInbound(raw string) string {
	if raw == "" {
		return ""
	}
	s := stripControlTokens(raw)
	s = fillers.ReplaceAllLiteralString(s, " ")
	s = collapseLetterRuns(s)
	return collapseSpaces(s)
}

// NormalizeOutbound cleans a scripted line for speech. It runs the inbound
// stages and then expands region codes, currency, long digit runs and the
// shipping window.
func NormalizeOutbound(raw string) string {
	s := NormalizeInbound(raw)
	if s == "" {
		return ""
	}
	s = expandRegions(s)
	s = expandCurrency(s)
	s = spaceDigitRuns(s)
	s = shippingWindow.ReplaceAllLiteralString(s, "five to seven business days")
	return collapseSpaces(s)
}

func stripControlTokens(s string) string {
	for {
		prev := s
		for _, re := range controlTokens {
			s = re.ReplaceAllLiteralString(s, " ")
		}
		if s == prev {
			return s
		}
	}
}

// collapseLetterRuns shortens any run of three or more identical letters to
// two.
func collapseLetterRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var last rune
	run := 0
	for _, r := range s {
		if r == last && unicode.IsLetter(r) {
			run++
		} else {
			last, run = r, 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllLiteralString(s, " "))
}

func expandRegions(s string) string {
	return regionCode.ReplaceAllStringFunc(s, func(m string) string {
		code := m[len(m)-2:]
		name, ok := postalRegions[code]
		if !ok {
			return m
		}
		return m[:len(m)-2] + name
	})
}

// expandCurrency spells every well-formed dollar amount. A match that runs
// straight into more digits or a separator followed by a digit ("$1,2345",
// "$1.50.2") is a malformed amount and is left untouched as a whole.
func expandCurrency(s string) string {
	locs := currencyPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) * 2)
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if continuesNumber(s, end) {
			continue
		}
		cents := ""
		if loc[4] >= 0 {
			cents = s[loc[4]:loc[5]]
		}
		spoken, ok := spellCurrency(s[loc[2]:loc[3]], cents)
		if !ok {
			continue
		}
		b.WriteString(s[prev:start])
		b.WriteString(spoken)
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

func continuesNumber(s string, end int) bool {
	if end >= len(s) {
		return false
	}
	switch c := s[end]; {
	case c >= '0' && c <= '9':
		return true
	case c == ',' || c == '.':
		return end+1 < len(s) && s[end+1] >= '0' && s[end+1] <= '9'
	}
	return false
}

// spellCurrency spells a dollar amount. cents may be empty, one digit
// (tenths) or two digits; anything else is rejected.
func spellCurrency(dollars, cents string) (string, bool) {
	d, err := strconv.ParseInt(strings.ReplaceAll(dollars, ",", ""), 10, 64)
	if err != nil {
		return "", false
	}
	var c int64
	switch len(cents) {
	case 0:
	case 1, 2:
		if len(cents) == 1 {
			cents += "0"
		}
		c, err = strconv.ParseInt(cents, 10, 64)
		if err != nil {
			return "", false
		}
	default:
		return "", false
	}

	dw, ok := SpellNumber(d)
	if !ok {
		return "", false
	}
	out := dw + " dollars"
	if d == 1 {
		out = dw + " dollar"
	}
	if c == 0 {
		return out, true
	}
	cw, _ := SpellNumber(c)
	if c == 1 {
		return out + " and " + cw + " cent", true
	}
	return out + " and " + cw + " cents", true
}

// spaceDigitRuns splits free-standing runs of minSpokenDigitRun or more
// digits into single digits. Runs touching a letter (SKUs) or belonging to a
// dollar amount the currency stage declined are left alone.
func spaceDigitRuns(s string) string {
	locs := digitRun.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) * 2)
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if end-start < minSpokenDigitRun || !freeStanding(s, start, end) {
			continue
		}
		b.WriteString(s[prev:start])
		for i := start; i < end; i++ {
			if i > start {
				b.WriteByte(' ')
			}
			b.WriteByte(s[i])
		}
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

func freeStanding(s string, start, end int) bool {
	if start > 0 && isASCIIAlnum(rune(s[start-1])) {
		return false
	}
	if end < len(s) && isASCIIAlnum(rune(s[end])) {
		return false
	}
	return !inAmount(s, start)
}

// inAmount reports whether the digits at start are part of a "$" token made
// of digits and separators, such as the cents of "$12.3456789".
func inAmount(s string, start int) bool {
	i := start
	for i > 0 {
		c := s[i-1]
		if (c < '0' || c > '9') && c != ',' && c != '.' {
			break
		}
		i--
	}
	return i > 0 && s[i-1] == '$'
}

func isASCIIAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
