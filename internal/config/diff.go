package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; the rest are
// reported so the caller can ask for a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GuardrailsChanged is true if any guardrail parameter changed.
	GuardrailsChanged bool

	// IntentChanged is true if the classifier keywords changed.
	IntentChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart (e.g. "flow.graph_path").
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GuardrailsChanged || d.IntentChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.GuardrailsChanged = !guardrailsEqual(old.Guardrails, new.Guardrails)
	d.IntentChanged = !intentEqual(old.Intent, new.Intent)

	// Settings wired once at startup.
	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !tlsEqual(old.Server.TLS, new.Server.TLS))
	restart("flow.graph_path", old.Flow.GraphPath != new.Flow.GraphPath)
	restart("flow.max_silence_reasks", !intPtrEqual(old.Flow.MaxSilenceReasks, new.Flow.MaxSilenceReasks))
	restart("audit", old.Audit != new.Audit)
	restart("payment", old.Payment != new.Payment)
	restart("telemetry", !telemetryEqual(old.Telemetry, new.Telemetry))

	return d
}

func guardrailsEqual(a, b GuardrailsConfig) bool {
	return a.ValueWindowMin == b.ValueWindowMin &&
		a.ValueWindowMax == b.ValueWindowMax &&
		a.ObjectionThreshold == b.ObjectionThreshold &&
		a.Disclosure == b.Disclosure &&
		(a.Substitutions == nil) == (b.Substitutions == nil) &&
		slices.Equal(a.Substitutions, b.Substitutions)
}

func intentEqual(a, b IntentConfig) bool {
	return slices.Equal(a.Keywords.Service, b.Keywords.Service) &&
		slices.Equal(a.Keywords.Affirmative, b.Keywords.Affirmative) &&
		slices.Equal(a.Keywords.Negative, b.Keywords.Negative) &&
		(a.Phonetic == nil) == (b.Phonetic == nil) &&
		slices.Equal(a.Phonetic, b.Phonetic)
}

func telemetryEqual(a, b TelemetryConfig) bool {
	return a.ServiceName == b.ServiceName &&
		a.Environment == b.Environment &&
		a.MetricsExporter == b.MetricsExporter &&
		maps.Equal(a.ResourceAttributes, b.ResourceAttributes)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
