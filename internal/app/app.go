// Package app wires all callscript subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads the flow graph and
// connects the collaborators, Run serves HTTP until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithAuditRecorder,
// WithPaymentRegistry, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/callscript/internal/api"
	"github.com/MrWong99/callscript/internal/audit"
	auditpg "github.com/MrWong99/callscript/internal/audit/postgres"
	"github.com/MrWong99/callscript/internal/config"
	"github.com/MrWong99/callscript/internal/flow"
	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/health"
	"github.com/MrWong99/callscript/internal/intent"
	"github.com/MrWong99/callscript/internal/observe"
	"github.com/MrWong99/callscript/internal/payment"
	"github.com/MrWong99/callscript/internal/session"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	level    *slog.LevelVar
	metrics  *observe.Metrics
	watcher  *config.Watcher
	store    session.Store
	recorder audit.Recorder
	registry *payment.Registry

	// Subsystems, initialised in New.
	engine  *flow.Engine
	guard   *audit.Guard
	handler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLevelVar lets config reloads change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects the metric instruments instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithWatcher runs w alongside the server and applies its reloads.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithSessionStore injects a session store instead of a [session.MemStore].
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.store = s }
}

// WithAuditRecorder injects an audit backend instead of creating one from
// config.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithPaymentRegistry replaces [payment.DefaultRegistry].
func WithPaymentRegistry(r *payment.Registry) Option {
	return func(a *App) { a.registry = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It fails if the flow
// graph does not load; a call must never run on a graph that can dead-end.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.store == nil {
		a.store = session.NewMemStore()
	}
	if a.registry == nil {
		a.registry = payment.DefaultRegistry()
	}

	// ── 1. Flow engine ───────────────────────────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	// ── 2. Audit log ─────────────────────────────────────────────────────
	if err := a.initAudit(ctx); err != nil {
		return nil, fmt.Errorf("app: init audit: %w", err)
	}

	// ── 3. Payment gateway ───────────────────────────────────────────────
	gw, err := a.registry.Create(cfg.PaymentGateway(), cfg.Payment)
	if err != nil {
		return nil, fmt.Errorf("app: init payment: %w", err)
	}
	payments := payment.NewGuarded(gw, cfg.Payment.Breaker.Breaker("payment"), cfg.PaymentTimeout())

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.New(a.engine,
		api.WithAudit(a.guard),
		api.WithPaymentGateway(payments),
		api.WithMetrics(a.metrics),
	).Register(mux)
	health.New(
		health.Checker{Name: "flow", Critical: true, Check: a.checkFlow},
		health.Checker{Name: "audit", Check: a.guard.Check},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics)(mux)

	slog.Info("app initialised",
		"graph", cfg.Flow.GraphPath,
		"nodes", a.engine.Graph().Len(),
		"payment_gateway", cfg.PaymentGateway(),
		"audit", cfg.Audit.PostgresDSN != "" || a.recorder != nil,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEngine loads the graph and builds the traversal engine.
func (a *App) initEngine() error {
	g, err := flow.Load(a.cfg.Flow.GraphPath)
	if err != nil {
		return err
	}
	rules, err := guardrail.NewRules(a.cfg.GuardrailConfig())
	if err != nil {
		return err
	}
	kw, kwOpts := a.cfg.ClassifierOptions()
	classifier, err := intent.New(kw, kwOpts...)
	if err != nil {
		return err
	}

	opts := []flow.Option{
		flow.WithClassifier(classifier),
		flow.WithMetrics(a.metrics),
	}
	if n := a.cfg.Flow.MaxSilenceReasks; n != nil {
		opts = append(opts, flow.WithMaxSilenceReasks(*n))
	}
	a.engine, err = flow.NewEngine(g, a.store, rules, opts...)
	return err
}

// initAudit connects the audit backend, or records nothing when none is
// configured.
func (a *App) initAudit(ctx context.Context) error {
	if a.recorder == nil {
		a.recorder = audit.Nop{}
		if dsn := a.cfg.Audit.PostgresDSN; dsn != "" {
			store, err := auditpg.NewStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.recorder = store
			a.closers = append(a.closers, func() error {
				store.Close()
				return nil
			})
		}
	}

	a.guard = audit.NewGuard(a.recorder,
		audit.WithWriteTimeout(a.cfg.AuditTimeout()),
		audit.WithBreaker(a.cfg.Audit.Breaker.Breaker("audit")),
		audit.WithGuardMetrics(a.metrics),
	)
	return nil
}

func (a *App) checkFlow(context.Context) error {
	if a.engine == nil || a.engine.Graph() == nil {
		return errors.New("no flow graph loaded")
	}
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Engine returns the flow engine.
func (a *App) Engine() *flow.Engine { return a.engine }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts the server down gracefully. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It takes ownership of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed configuration:
// the log level, the guardrail rules and the intent keywords. Settings that
// need a restart are logged. It is the [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.GuardrailsChanged {
		rules, err := guardrail.NewRules(new.GuardrailConfig())
		if err != nil {
			// Validate already built these rules once, so this is unexpected.
			slog.Error("guardrail reload rejected", "err", err)
		} else {
			a.engine.SetRules(rules)
			slog.Info("guardrail rules reloaded")
		}
	}

	if d.IntentChanged {
		kw, kwOpts := new.ClassifierOptions()
		c, err := intent.New(kw, kwOpts...)
		if err != nil {
			slog.Error("intent keyword reload rejected", "err", err)
		} else {
			a.engine.SetClassifier(c)
			slog.Info("intent keywords reloaded")
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to a slog level. Unknown values map to
// info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every resource New acquired. It is safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
