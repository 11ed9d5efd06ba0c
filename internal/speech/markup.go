package speech

import (
	"fmt"
	"regexp"
	"strings"
)

// Tone selects the prosody used for a scripted line.
type Tone string

const (
	ToneEnthusiastic  Tone = "enthusiastic"
	ToneEmpathetic    Tone = "empathetic"
	ToneAuthoritative Tone = "authoritative"
	ToneCalm          Tone = "calm"
	ToneCertainty     Tone = "certainty"
	ToneNeutral       Tone = "neutral"
)

// IsValid reports whether t is one of the known tones.
func (t Tone) IsValid() bool {
	_, ok := prosodyTable[t]
	return ok
}

// Prosody is the synthesizer parameter triple for a tone. Rate is a
// percentage of the engine's default speaking rate.
type Prosody struct {
	Rate   int
	Pitch  string
	Volume string
}

var prosodyTable = map[Tone]Prosody{
	ToneEnthusiastic:  {Rate: 108, Pitch: "+2st", Volume: "loud"},
	ToneEmpathetic:    {Rate: 92, Pitch: "-1st", Volume: "soft"},
	ToneAuthoritative: {Rate: 97, Pitch: "-2st", Volume: "loud"},
	ToneCalm:          {Rate: 90, Pitch: "-1st", Volume: "medium"},
	ToneCertainty:     {Rate: 100, Pitch: "+0st", Volume: "medium"},
	ToneNeutral:       {Rate: 100, Pitch: "+0st", Volume: "medium"},
}

// NumericSlowdown is subtracted from the tone's rate when the text carries
// spelled-out amounts or digit sequences.
const NumericSlowdown = 10

// ProsodyFor returns the prosody for t, falling back to [ToneNeutral].
func ProsodyFor(t Tone) Prosody {
	if p, ok := prosodyTable[t]; ok {
		return p
	}
	return prosodyTable[ToneNeutral]
}

var (
	spokenCurrency = regexp.MustCompile(`(?i)\b(?:dollars?|cents?)\b`)
	spokenDigits   = regexp.MustCompile(`\b\d(?: \d){6,}\b`)
	rawDigits      = regexp.MustCompile(`\d{7,}`)
)

// HasNumericArtifacts reports whether text contains a currency amount or a
// long digit sequence, in raw or expanded form.
func HasNumericArtifacts(text string) bool {
	return currencyPattern.MatchString(text) ||
		spokenCurrency.MatchString(text) ||
		spokenDigits.MatchString(text) ||
		rawDigits.MatchString(text)
}

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Compose wraps text in SSML. An unknown tone is rendered as neutral. A
// positive pauseMs inserts a break before the line.
func Compose(text string, tone Tone, pauseMs int) string {
	p := ProsodyFor(tone)
	if HasNumericArtifacts(text) {
		p.Rate -= NumericSlowdown
	}

	var b strings.Builder
	b.WriteString("<speak>")
	if pauseMs > 0 {
		fmt.Fprintf(&b, `<break time="%dms"/>`, pauseMs)
	}
	fmt.Fprintf(&b, `<prosody rate="%d%%" pitch="%s" volume="%s">`, p.Rate, p.Pitch, p.Volume)
	b.WriteString(markupEscaper.Replace(text))
	b.WriteString("</prosody></speak>")
	return b.String()
}
