package guardrail

// DefaultObjectionThreshold is the number of price objections after which a
// discount becomes permissible for callers who are neither seniors nor
// veterans.
const DefaultObjectionThreshold = 2

// Eligibility holds the discount-eligibility inputs tracked for a call.
type Eligibility struct {
	IsSenior   bool       `json:"is_senior"`
	IsVeteran  bool       `json:"is_veteran"`
	Objections Objections `json:"objections"`
}

// Eligible reports whether a discount or bonus offer may be made. threshold
// values below one fall back to [DefaultObjectionThreshold].
func (e Eligibility) Eligible(threshold int) bool {
	if threshold < 1 {
		threshold = DefaultObjectionThreshold
	}
	return e.IsSenior || e.IsVeteran || e.Objections.Count >= threshold
}

// Objections counts price objections, at most once per node visit.
type Objections struct {
	Count int `json:"count"`

	// LastVisit is the visit sequence number of the most recently counted
	// objection. Zero means none has been counted.
	LastVisit int `json:"last_visit"`
}

// Record counts an objection raised during the given node visit. A second
// signal for the same visit is ignored. It reports whether the count changed.
func (o *Objections) Record(visit int) bool {
	if visit <= o.LastVisit {
		return false
	}
	o.Count++
	o.LastVisit = visit
	return true
}
