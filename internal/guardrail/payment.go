package guardrail

import (
	"strconv"
	"strings"
	"time"
)

// Mode selects the payment instrument carried by an [Envelope].
type Mode string

const (
	ModeCard Mode = "card"
	ModeBank Mode = "bank"
)

// Brand is a card network detected from the IIN prefix.
type Brand string

const (
	BrandUnknown    Brand = ""
	BrandVisa       Brand = "visa"
	BrandMastercard Brand = "mastercard"
	BrandAmex       Brand = "amex"
	BrandDiscover   Brand = "discover"
)

// Reason names the specific check an envelope failed.
type Reason string

const (
	ReasonUnknownMode       Reason = "unknown_mode"
	ReasonCardNumberDigits  Reason = "card_number_not_digits"
	ReasonCardBrand         Reason = "card_brand_unrecognised"
	ReasonCardNumberLength  Reason = "card_number_length"
	ReasonCardChecksum      Reason = "card_checksum"
	ReasonCVVDigits         Reason = "cvv_not_digits"
	ReasonCVVLength         Reason = "cvv_length"
	ReasonExpiryFormat      Reason = "expiry_format"
	ReasonExpired           Reason = "card_expired"
	ReasonRoutingDigits     Reason = "routing_not_digits"
	ReasonRoutingLength     Reason = "routing_length"
	ReasonAccountDigits     Reason = "account_not_digits"
	ReasonAccountLength     Reason = "account_length"
	ReasonCheckNumberDigits Reason = "check_number_not_digits"
)

// Envelope carries payment details collected during a call. It is validated
// and handed to the payment gateway, never stored.
type Envelope struct {
	Mode Mode `json:"mode"`

	// Card mode.
	Number      string `json:"number,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	ExpiryMonth string `json:"expiry_month,omitempty"`
	ExpiryYear  string `json:"expiry_year,omitempty"`

	// Bank mode.
	Routing     string `json:"routing,omitempty"`
	Account     string `json:"account,omitempty"`
	CheckNumber string `json:"check_number,omitempty"`
}

// SetExpiry fills ExpiryMonth and ExpiryYear from an "MM/YY" string. Input
// that does not split on a single slash is stored as-is in ExpiryMonth so
// that [Validate] reports [ReasonExpiryFormat].
func (e *Envelope) SetExpiry(mmyy string) {
	month, year, ok := strings.Cut(strings.TrimSpace(mmyy), "/")
	if !ok {
		e.ExpiryMonth, e.ExpiryYear = mmyy, ""
		return
	}
	e.ExpiryMonth, e.ExpiryYear = strings.TrimSpace(month), strings.TrimSpace(year)
}

// Result is the outcome of [Validate]. When OK is false, Reason names the
// first failed check.
type Result struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason,omitempty"`

	// Brand is set for card envelopes whose brand could be detected.
	Brand Brand `json:"brand,omitempty"`

	// CheckNumber echoes the recorded check number for bank envelopes.
	CheckNumber string `json:"check_number,omitempty"`
}

func reject(r Reason) Result { return Result{Reason: r} }

// brandSpec describes the fixed shape of each supported card brand.
type brandSpec struct {
	length    int
	cvvLength int
}

var brandSpecs = map[Brand]brandSpec{
	BrandVisa:       {length: 16, cvvLength: 3},
	BrandMastercard: {length: 16, cvvLength: 3},
	BrandAmex:       {length: 15, cvvLength: 4},
	BrandDiscover:   {length: 16, cvvLength: 3},
}

// Validate checks env at time now and returns a [Result]. It never panics and
// never returns a partially accepted envelope.
func Validate(env Envelope, now time.Time) Result {
	switch env.Mode {
	case ModeCard:
		return validateCard(env, now)
	case ModeBank:
		return validateBank(env)
	default:
		return reject(ReasonUnknownMode)
	}
}

func validateCard(env Envelope, now time.Time) Result {
	number := stripSeparators(env.Number)
	if !isDigits(number) {
		return reject(ReasonCardNumberDigits)
	}
	brand := DetectBrand(number)
	if brand == BrandUnknown {
		return reject(ReasonCardBrand)
	}
	spec := brandSpecs[brand]
	res := Result{Brand: brand}
	if len(number) != spec.length {
		res.Reason = ReasonCardNumberLength
		return res
	}
	if !Luhn(number) {
		res.Reason = ReasonCardChecksum
		return res
	}
	cvv := strings.TrimSpace(env.CVV)
	if !isDigits(cvv) {
		res.Reason = ReasonCVVDigits
		return res
	}
	if len(cvv) != spec.cvvLength {
		res.Reason = ReasonCVVLength
		return res
	}
	month, year, ok := parseExpiry(env.ExpiryMonth, env.ExpiryYear)
	if !ok {
		res.Reason = ReasonExpiryFormat
		return res
	}
	if expired(month, year, now) {
		res.Reason = ReasonExpired
		return res
	}
	res.OK = true
	return res
}

func validateBank(env Envelope) Result {
	routing := stripSeparators(env.Routing)
	if !isDigits(routing) {
		return reject(ReasonRoutingDigits)
	}
	if len(routing) != 9 {
		return reject(ReasonRoutingLength)
	}
	account := stripSeparators(env.Account)
	if !isDigits(account) {
		return reject(ReasonAccountDigits)
	}
	if len(account) < 7 || len(account) > 12 {
		return reject(ReasonAccountLength)
	}
	check := strings.TrimSpace(env.CheckNumber)
	if check != "" && !isDigits(check) {
		return reject(ReasonCheckNumberDigits)
	}
	return Result{OK: true, CheckNumber: check}
}

// DetectBrand returns the card brand for a digits-only number, or
// [BrandUnknown].
func DetectBrand(number string) Brand {
	switch {
	case strings.HasPrefix(number, "4"):
		return BrandVisa
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return BrandAmex
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"):
		return BrandDiscover
	case prefixInRange(number, 3, 644, 649):
		return BrandDiscover
	case prefixInRange(number, 2, 51, 55), prefixInRange(number, 4, 2221, 2720):
		return BrandMastercard
	}
	return BrandUnknown
}

// Luhn reports whether a digits-only number passes the mod-10 checksum.
func Luhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// MaskNumber returns number with everything but the last four digits hidden.
func MaskNumber(number string) string {
	n := stripSeparators(number)
	if len(n) <= 4 {
		return strings.Repeat("*", len(n))
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

func prefixInRange(number string, width, lo, hi int) bool {
	if len(number) < width {
		return false
	}
	v, err := strconv.Atoi(number[:width])
	if err != nil {
		return false
	}
	return v >= lo && v <= hi
}

// parseExpiry accepts a two-digit month (01–12) and a two-digit year.
func parseExpiry(mm, yy string) (month, year int, ok bool) {
	mm, yy = strings.TrimSpace(mm), strings.TrimSpace(yy)
	if len(mm) != 2 || len(yy) != 2 || !isDigits(mm) || !isDigits(yy) {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(mm)
	year, _ = strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return month, 2000 + year, true
}

// expired reports whether the last day of the expiry month falls before the
// first day of now's month.
func expired(month, year int, now time.Time) bool {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	firstOfCurrent := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastDay.Before(firstOfCurrent)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
