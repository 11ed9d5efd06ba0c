package payment

import (
	"context"
	"time"

	"github.com/MrWong99/callscript/internal/resilience"
)

// DefaultTimeout bounds a single hand-off when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Guarded wraps a [Gateway] with a per-call timeout and a circuit breaker.
// While the breaker is open, Submit fails fast with
// [resilience.ErrCircuitOpen].
type Guarded struct {
	gw      Gateway
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

// NewGuarded wraps gw. A non-positive timeout selects [DefaultTimeout].
func NewGuarded(gw Gateway, breaker resilience.CircuitBreakerConfig, timeout time.Duration) *Guarded {
	if breaker.Name == "" {
		breaker.Name = "payment"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guarded{
		gw:      gw,
		breaker: resilience.NewCircuitBreaker(breaker),
		timeout: timeout,
	}
}

// Submit implements [Gateway]. A hand-off that times out counts against the
// breaker; one abandoned by the caller does not.
func (g *Guarded) Submit(ctx context.Context, h Handoff) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.gw.Submit(ctx, h)
	})
}

// State reports the breaker state.
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}

var _ Gateway = (*Guarded)(nil)
