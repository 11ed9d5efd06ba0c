package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/callscript/internal/config"
	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/payment"
	"github.com/MrWong99/callscript/internal/resilience"
)

func cardHandoff() payment.Handoff {
	return payment.Handoff{
		CallID: "call-7",
		Brand:  guardrail.BrandVisa,
		Envelope: guardrail.Envelope{
			Mode:        guardrail.ModeCard,
			Number:      "4111111111111111",
			CVV:         "123",
			ExpiryMonth: "12",
			ExpiryYear:  "29",
		},
	}
}

func TestLogGateway_MasksNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handoff payment.Handoff
		want    string
		secret  string
	}{
		{name: "card", handoff: cardHandoff(), want: "************1111", secret: "4111111111111111"},
		{
			name: "bank",
			handoff: payment.Handoff{CallID: "call-8", Envelope: guardrail.Envelope{
				Mode: guardrail.ModeBank, Routing: "021000021", Account: "123456789012",
			}},
			want:   "********9012",
			secret: "123456789012",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			gw := payment.NewLogGateway(slog.New(slog.NewTextHandler(&buf, nil)))
			if err := gw.Submit(context.Background(), tc.handoff); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			out := buf.String()
			if !strings.Contains(out, tc.want) {
				t.Errorf("log %q does not contain masked value %q", out, tc.want)
			}
			if strings.Contains(out, tc.secret) {
				t.Errorf("log %q leaks %q", out, tc.secret)
			}
			if strings.Contains(strings.ToLower(out), "cvv") {
				t.Errorf("log %q mentions the CVV", out)
			}
		})
	}
}

func TestWebhookGateway_Submit(t *testing.T) {
	t.Parallel()

	var got payment.Handoff
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	gw := payment.NewWebhookGateway(srv.URL, srv.Client())
	if err := gw.Submit(context.Background(), cardHandoff()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.CallID != "call-7" || got.Envelope.Number != "4111111111111111" {
		t.Errorf("received %+v", got)
	}
}

func TestWebhookGateway_ErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	gw := payment.NewWebhookGateway(srv.URL, srv.Client())
	err := gw.Submit(context.Background(), cardHandoff())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := payment.DefaultRegistry()
	if got := r.Names(); !slices.Equal(got, []string{"log", "webhook"}) {
		t.Errorf("Names = %v", got)
	}

	if _, err := r.Create("log", config.PaymentConfig{}); err != nil {
		t.Errorf("Create(log): %v", err)
	}
	if _, err := r.Create("webhook", config.PaymentConfig{}); err == nil {
		t.Error("Create(webhook) without URL should fail")
	}
	if _, err := r.Create("webhook", config.PaymentConfig{WebhookURL: "http://localhost/pay"}); err != nil {
		t.Errorf("Create(webhook): %v", err)
	}
	if _, err := r.Create("stripe", config.PaymentConfig{}); !errors.Is(err, payment.ErrGatewayNotRegistered) {
		t.Errorf("Create(stripe) err = %v, want ErrGatewayNotRegistered", err)
	}

	r.Register("stripe", func(config.PaymentConfig) (payment.Gateway, error) {
		return payment.NewLogGateway(nil), nil
	})
	if _, err := r.Create("stripe", config.PaymentConfig{}); err != nil {
		t.Errorf("Create(stripe) after Register: %v", err)
	}
}

func TestRegistry_CoversConfiguredGateways(t *testing.T) {
	t.Parallel()
	names := payment.DefaultRegistry().Names()
	for _, gw := range config.PaymentGateways {
		if !slices.Contains(names, gw) {
			t.Errorf("config accepts gateway %q that the registry cannot build", gw)
		}
	}
}

type failingGateway struct {
	calls int
	err   error
	block bool
}

func (f *failingGateway) Submit(ctx context.Context, _ payment.Handoff) error {
	f.calls++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	t.Parallel()
	inner := &failingGateway{err: errors.New("gateway down")}
	g := payment.NewGuarded(inner, resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}, 0)

	for range 2 {
		_ = g.Submit(context.Background(), cardHandoff())
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", g.State())
	}
	if err := g.Submit(context.Background(), cardHandoff()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestGuarded_TimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()
	inner := &failingGateway{block: true}
	g := payment.NewGuarded(inner, resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}, 10*time.Millisecond)

	err := g.Submit(context.Background(), cardHandoff())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open after a timed-out hand-off", g.State())
	}
}
