package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/callscript/internal/observe"
	"github.com/MrWong99/callscript/internal/resilience"
)

// DefaultWriteTimeout bounds a single write when no timeout is configured.
const DefaultWriteTimeout = 2 * time.Second

// Guard wraps a [Recorder] and makes every write non-fatal. A failing write
// is logged and swallowed and the guard is marked as degraded; the next
// successful write clears the flag.
//
// Writes run through a [resilience.CircuitBreaker], so while the backend is
// down they are skipped immediately instead of waiting for the timeout.
//
// All methods are safe for concurrent use.
type Guard struct {
	rec      Recorder
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	metrics  *observe.Metrics
	degraded atomic.Bool
}

// GuardOption is a functional option for [NewGuard].
type GuardOption func(*Guard)

// WithWriteTimeout bounds each write. Non-positive values keep the default.
func WithWriteTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker replaces the default circuit breaker configuration.
func WithBreaker(cfg resilience.CircuitBreakerConfig) GuardOption {
	return func(g *Guard) {
		if cfg.Name == "" {
			cfg.Name = "audit"
		}
		g.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithGuardMetrics records write latency and failures to m.
func WithGuardMetrics(m *observe.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

// NewGuard creates a [Guard] around rec. A nil rec is treated as [Nop].
func NewGuard(rec Recorder, opts ...GuardOption) *Guard {
	if rec == nil {
		rec = Nop{}
	}
	g := &Guard{
		rec:     rec,
		timeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	if g.breaker == nil {
		g.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "audit"})
	}
	return g
}

// Record writes turn to the wrapped recorder. It never returns an error. The
// write is detached from ctx's cancellation so a caller hanging up does not
// lose the last turn, but it is still bounded by the write timeout. A write
// that times out counts against the breaker.
func (g *Guard) Record(ctx context.Context, turn Turn) error {
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.rec.Record(ctx, turn)
	})
	if g.metrics != nil {
		g.metrics.RecordAuditWrite(ctx, time.Since(start), err)
	}
	if err != nil {
		g.degraded.Store(true)
		log := observe.CallLogger(ctx, turn.CallID)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			log.Debug("audit guard: breaker open, turn skipped", "node_id", turn.NodeID)
		} else {
			log.Warn("audit guard: write failed, swallowing error", "node_id", turn.NodeID, "err", err)
		}
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the most recent write failed or was skipped.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

// Check probes the backend for readiness. Backends without a [Pinger] are
// healthy as long as writes succeed.
func (g *Guard) Check(ctx context.Context) error {
	if p, ok := g.rec.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("audit: ping: %w", err)
		}
		return nil
	}
	if g.IsDegraded() {
		return errors.New("audit: last write failed")
	}
	return nil
}

// Compile-time check that Guard satisfies Recorder.
var _ Recorder = (*Guard)(nil)
