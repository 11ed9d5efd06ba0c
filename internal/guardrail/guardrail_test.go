package guardrail_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/speech"
)

func TestCheckStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current guardrail.Tier
		target  guardrail.Tier
		wantErr error
	}{
		{name: "first offer any tier", current: guardrail.TierNone, target: guardrail.TierSixMonth},
		{name: "re-present same tier", current: guardrail.TierAnnual, target: guardrail.TierAnnual},
		{name: "annual to six month", current: guardrail.TierAnnual, target: guardrail.TierSixMonth},
		{name: "six month to three month", current: guardrail.TierSixMonth, target: guardrail.TierThreeMonth},
		{name: "three month to single", current: guardrail.TierThreeMonth, target: guardrail.TierSingle},
		{name: "upward", current: guardrail.TierSixMonth, target: guardrail.TierAnnual, wantErr: guardrail.ErrTierUpward},
		{name: "skip to single", current: guardrail.TierAnnual, target: guardrail.TierSingle, wantErr: guardrail.ErrTierSkip},
		{name: "non-offer target", current: guardrail.TierSingle, target: guardrail.TierNone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := guardrail.CheckStep(tc.current, tc.target)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("CheckStep(%s, %s) = %v, want nil", tc.current, tc.target, err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CheckStep(%s, %s) = %v, want %v", tc.current, tc.target, err, tc.wantErr)
			}
		})
	}
}

func TestTierNext(t *testing.T) {
	t.Parallel()
	want := map[guardrail.Tier]guardrail.Tier{
		guardrail.TierAnnual:     guardrail.TierSixMonth,
		guardrail.TierSixMonth:   guardrail.TierThreeMonth,
		guardrail.TierThreeMonth: guardrail.TierSingle,
		guardrail.TierSingle:     guardrail.TierNone,
		guardrail.TierNone:       guardrail.TierNone,
	}
	for in, out := range want {
		if got := in.Next(); got != out {
			t.Errorf("%s.Next() = %s, want %s", in, got, out)
		}
	}
}

func TestValueWindow(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	min, max := 60*time.Second, 5*time.Minute

	t.Run("blocked before min", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start, Engaged: true}
		if got := w.Check(start.Add(30*time.Second), min, max); got != guardrail.GateBlocked {
			t.Fatalf("Check = %v, want blocked", got)
		}
		if w.CompletedAt != nil {
			t.Fatal("CompletedAt set on blocked gate")
		}
	})

	t.Run("blocked at exactly min", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start, Engaged: true}
		if got := w.Check(start.Add(min), min, max); got != guardrail.GateBlocked {
			t.Fatalf("Check = %v, want blocked", got)
		}
	})

	t.Run("holds at exactly max", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start}
		if got := w.Check(start.Add(max), min, max); got != guardrail.GateBlocked {
			t.Fatalf("Check = %v, want blocked", got)
		}
	})

	t.Run("blocked without value engagement", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start}
		if got := w.Check(start.Add(2*time.Minute), min, max); got != guardrail.GateBlocked {
			t.Fatalf("Check = %v, want blocked", got)
		}
	})

	t.Run("open after min and engagement", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start, Engaged: true}
		now := start.Add(61 * time.Second)
		if got := w.Check(now, min, max); got != guardrail.GateOpen {
			t.Fatalf("Check = %v, want open", got)
		}
		if w.CompletedAt == nil || !w.CompletedAt.Equal(now) {
			t.Fatalf("CompletedAt = %v, want %v", w.CompletedAt, now)
		}
		// Once complete it stays open.
		if got := w.Check(start, min, max); got != guardrail.GateOpen {
			t.Fatalf("Check after completion = %v, want open", got)
		}
	})

	t.Run("fails open past max", func(t *testing.T) {
		t.Parallel()
		w := guardrail.ValueWindow{StartedAt: start}
		if got := w.Check(start.Add(6*time.Minute), min, max); got != guardrail.GateFailedOpen {
			t.Fatalf("Check = %v, want failed_open", got)
		}
		if w.CompletedAt == nil {
			t.Fatal("CompletedAt not set after failing open")
		}
	})
}

func TestEligibility(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		e    guardrail.Eligibility
		want bool
	}{
		{name: "nobody", e: guardrail.Eligibility{}, want: false},
		{name: "senior", e: guardrail.Eligibility{IsSenior: true}, want: true},
		{name: "veteran", e: guardrail.Eligibility{IsVeteran: true}, want: true},
		{name: "one objection", e: guardrail.Eligibility{Objections: guardrail.Objections{Count: 1}}, want: false},
		{name: "two objections", e: guardrail.Eligibility{Objections: guardrail.Objections{Count: 2}}, want: true},
	}
	for _, tc := range tests {
		if got := tc.e.Eligible(2); got != tc.want {
			t.Errorf("%s: Eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestObjectionsIdempotentPerVisit(t *testing.T) {
	t.Parallel()
	var o guardrail.Objections
	if !o.Record(3) {
		t.Fatal("first objection in visit 3 not recorded")
	}
	if o.Record(3) {
		t.Fatal("duplicate objection in visit 3 recorded")
	}
	if !o.Record(5) {
		t.Fatal("objection in visit 5 not recorded")
	}
	if o.Count != 2 {
		t.Fatalf("Count = %d, want 2", o.Count)
	}
}

func TestSubstituter(t *testing.T) {
	t.Parallel()
	s, err := guardrail.NewSubstituter(guardrail.DefaultSubstitutions)
	if err != nil {
		t.Fatalf("NewSubstituter: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"It is GUARANTEED to work for you.", "It is designed to help for you."},
		{"Results are guaranteed.", "Results are designed."},
		{"Totally risk-free trial.", "Totally covered by our return policy trial."},
		{"Your account is secure.", "Your account is secure."},
	}
	for _, tc := range tests {
		got, _ := s.Apply(tc.in)
		if got != tc.want {
			t.Errorf("Apply(%q) = %q, want %q", tc.in, got, tc.want)
		}
		again, changed := s.Apply(got)
		if changed || again != got {
			t.Errorf("Apply is not stable on %q: %q", got, again)
		}
	}
}

func TestNewSubstituter_RejectsSelfReferentialReplacement(t *testing.T) {
	t.Parallel()
	_, err := guardrail.NewSubstituter([]guardrail.Substitution{
		{Phrase: "promise", Replacement: "we promise nothing"},
	})
	if err == nil {
		t.Fatal("expected error for replacement containing the forbidden phrase")
	}
}

func TestDisclosureEnforce(t *testing.T) {
	t.Parallel()
	d := guardrail.NewDisclosure("", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "appended after period",
			in:   "Great, your order is confirmed.",
			want: "Great, your order is confirmed. " + guardrail.DefaultDisclosureSentence,
		},
		{
			name: "terminates sentence first",
			in:   "Great, your order is confirmed",
			want: "Great, your order is confirmed. " + guardrail.DefaultDisclosureSentence,
		},
		{
			name: "already present",
			in:   "Confirmed! It arrives in five to seven business days.",
			want: "Confirmed! It arrives in five to seven business days.",
		},
		{
			name: "numeric form counts",
			in:   "Confirmed, delivery takes 5-7 business days.",
			want: "Confirmed, delivery takes 5-7 business days.",
		},
		{
			name: "phrase inside stage direction does not count",
			in:   "Thanks for your order [it arrives in five to seven business days]",
			want: "Thanks for your order. " + guardrail.DefaultDisclosureSentence,
		},
		{
			name: "phrase inside action does not count",
			in:   "Thanks! *mentions five to seven business days*",
			want: "Thanks! " + guardrail.DefaultDisclosureSentence,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, _ := d.Enforce(tc.in)
			if got != tc.want {
				t.Fatalf("Enforce(%q) = %q, want %q", tc.in, got, tc.want)
			}
			twice, _ := d.Enforce(got)
			if n := strings.Count(strings.ToLower(twice), guardrail.DefaultDisclosureKey); n > 1 {
				t.Fatalf("disclosure duplicated %d times in %q", n, twice)
			}
			if !d.Present(twice) {
				t.Fatalf("disclosure missing from %q", twice)
			}
			spoken := strings.ToLower(speech.NormalizeOutbound(got))
			if !strings.Contains(spoken, guardrail.DefaultDisclosureKey) {
				t.Fatalf("spoken line %q lacks the disclosure", spoken)
			}
		})
	}
}

func TestRulesCheckLine(t *testing.T) {
	t.Parallel()
	r, err := guardrail.NewRules(guardrail.DefaultConfig())
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}
	line, applied := r.CheckLine("Your results are guaranteed", true)
	if strings.Contains(strings.ToLower(line), "guaranteed") {
		t.Errorf("forbidden phrase survived: %q", line)
	}
	if strings.Count(line, guardrail.DefaultDisclosureKey) != 1 {
		t.Errorf("disclosure missing or duplicated: %q", line)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %v, want forbidden_phrase and shipping_disclosure", applied)
	}

	line, applied = r.CheckLine("Thanks for your time.", false)
	if line != "Thanks for your time." || len(applied) != 0 {
		t.Errorf("non-closing clean line changed: %q %v", line, applied)
	}
}

func TestNewRules_RejectsInvertedWindow(t *testing.T) {
	t.Parallel()
	cfg := guardrail.DefaultConfig()
	cfg.ValueWindowMax = time.Second
	if _, err := guardrail.NewRules(cfg); err == nil {
		t.Fatal("expected error when max < min")
	}
}
