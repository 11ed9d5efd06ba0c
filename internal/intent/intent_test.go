package intent_test

import (
	"testing"

	"github.com/MrWong99/callscript/internal/intent"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := intent.MustDefault()

	tests := []struct {
		in   string
		want intent.Intent
	}{
		{"", intent.Silence},
		{"   ", intent.Silence},
		{"yes please", intent.Yes},
		{"Yeah, that's right", intent.Yes},
		{"mhm", intent.Yes},
		{"Yesterday I was out", intent.Hesitate},
		{"I want to speak to a representative", intent.Service},
		{"yes, get me a supervisor", intent.Service},
		{"can I talk to your superviser", intent.Service},
		{"I'd like to RE-ORDER", intent.Service},
		{"no thanks", intent.No},
		{"not interested", intent.No},
		{"that's too expensive", intent.No},
		{"I'm not sure", intent.Hesitate},
		{"let me think about it", intent.Hesitate},
		{"you know what", intent.Hesitate},
		{"agenda", intent.Hesitate},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			if got := c.Classify(tc.in); got != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassify_CustomKeywords(t *testing.T) {
	t.Parallel()

	c, err := intent.New(intent.Keywords{Affirmative: []string{"aye"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classify("aye captain"); got != intent.Yes {
		t.Errorf("Classify(aye captain) = %q, want yes", got)
	}
	if got := c.Classify("yes"); got != intent.Hesitate {
		t.Errorf("Classify(yes) = %q with a replaced affirmative list, want hesitate", got)
	}
	// Lists left empty keep their defaults.
	if got := c.Classify("nope"); got != intent.No {
		t.Errorf("Classify(nope) = %q, want no", got)
	}
}

func TestClassify_PhoneticFallbackDisabled(t *testing.T) {
	t.Parallel()

	c, err := intent.New(intent.Keywords{}, intent.WithPhoneticFallback(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classify("superviser"); got != intent.Hesitate {
		t.Fatalf("Classify(superviser) = %q, want hesitate", got)
	}
}

func TestIntentIsValid(t *testing.T) {
	t.Parallel()
	for _, i := range intent.All() {
		if !i.IsValid() {
			t.Errorf("%q.IsValid() = false", i)
		}
	}
	if intent.Intent("maybe").IsValid() {
		t.Error(`"maybe".IsValid() = true`)
	}
}
