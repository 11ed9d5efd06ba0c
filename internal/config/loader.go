package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/intent"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Flow
	if cfg.Flow.GraphPath == "" {
		errs = append(errs, errors.New("flow.graph_path is required"))
	}
	if n := cfg.Flow.MaxSilenceReasks; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("flow.max_silence_reasks %d must not be negative", *n))
	}

	// Guardrails
	g := cfg.Guardrails
	if g.ValueWindowMin < 0 {
		errs = append(errs, fmt.Errorf("guardrails.value_window_min %v must not be negative", g.ValueWindowMin))
	}
	if g.ValueWindowMax < 0 {
		errs = append(errs, fmt.Errorf("guardrails.value_window_max %v must not be negative", g.ValueWindowMax))
	}
	if g.ObjectionThreshold < 0 {
		errs = append(errs, fmt.Errorf("guardrails.objection_threshold %d must not be negative", g.ObjectionThreshold))
	}
	if _, err := guardrail.NewRules(cfg.GuardrailConfig()); err != nil {
		errs = append(errs, fmt.Errorf("guardrails: %w", err))
	}

	// Intent
	kw, opts := cfg.ClassifierOptions()
	if _, err := intent.New(kw, opts...); err != nil {
		errs = append(errs, fmt.Errorf("intent: %w", err))
	}

	// Audit
	errs = append(errs, validateBreaker("audit.breaker", cfg.Audit.Breaker)...)
	if cfg.Audit.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("audit.write_timeout %v must not be negative", cfg.Audit.WriteTimeout))
	}
	if cfg.Audit.PostgresDSN == "" {
		slog.Info("audit.postgres_dsn is empty; call turns will not be recorded")
	}

	// Payment
	if gw := cfg.Payment.Gateway; gw != "" && !slices.Contains(PaymentGateways, gw) {
		errs = append(errs, fmt.Errorf("payment.gateway %q is invalid; valid values: %v", gw, PaymentGateways))
	}
	if cfg.Payment.Gateway == "webhook" && cfg.Payment.WebhookURL == "" {
		errs = append(errs, errors.New("payment.webhook_url is required when payment.gateway is webhook"))
	}
	if cfg.Payment.Timeout < 0 {
		errs = append(errs, fmt.Errorf("payment.timeout %v must not be negative", cfg.Payment.Timeout))
	}
	errs = append(errs, validateBreaker("payment.breaker", cfg.Payment.Breaker)...)

	// Telemetry
	if exp := cfg.Telemetry.MetricsExporter; exp != "" && !slices.Contains(MetricsExporters, exp) {
		errs = append(errs, fmt.Errorf("telemetry.metrics_exporter %q is invalid; valid values: %v", exp, MetricsExporters))
	}

	return errors.Join(errs...)
}

func validateBreaker(prefix string, b BreakerConfig) []error {
	var errs []error
	if b.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("%s.max_failures %d must not be negative", prefix, b.MaxFailures))
	}
	if b.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s.reset_timeout %v must not be negative", prefix, b.ResetTimeout))
	}
	return errs
}
