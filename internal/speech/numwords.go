package speech

import "strings"

var ones = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tens = []string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

var scales = []struct {
	value int64
	name  string
}{
	{1_000_000_000_000, "trillion"},
	{1_000_000_000, "billion"},
	{1_000_000, "million"},
	{1_000, "thousand"},
}

// maxSpellable is the largest amount SpellNumber accepts.
const maxSpellable int64 = 999_999_999_999_999

// SpellNumber returns n in English words ("two hundred ninety-nine"). It
// reports false for negative values and values above one quadrillion.
func SpellNumber(n int64) (string, bool) {
	if n < 0 || n > maxSpellable {
		return "", false
	}
	if n == 0 {
		return ones[0], true
	}
	var parts []string
	for _, s := range scales {
		if n >= s.value {
			parts = append(parts, spellHundreds(int(n/s.value)), s.name)
			n %= s.value
		}
	}
	if n > 0 {
		parts = append(parts, spellHundreds(int(n)))
	}
	return strings.Join(parts, " "), true
}

// spellHundreds spells 1..999.
func spellHundreds(n int) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, ones[n/100], "hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, ones[n])
	case n%10 == 0:
		parts = append(parts, tens[n/10])
	default:
		parts = append(parts, tens[n/10]+"-"+ones[n%10])
	}
	return strings.Join(parts, " ")
}
