package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/callscript/internal/config"
	"github.com/MrWong99/callscript/internal/guardrail"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Flow:   config.FlowConfig{GraphPath: "flows/default.yaml"},
		Guardrails: config.GuardrailsConfig{
			ValueWindowMin: 90 * time.Second,
			Substitutions:  []guardrail.Substitution{{Phrase: "miracle", Replacement: "remarkable"}},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.GuardrailsChanged || len(d.RestartRequired) > 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_GuardrailsChanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "value window", mutate: func(c *config.Config) { c.Guardrails.ValueWindowMin = time.Minute }},
		{name: "threshold", mutate: func(c *config.Config) { c.Guardrails.ObjectionThreshold = 4 }},
		{name: "substitution text", mutate: func(c *config.Config) { c.Guardrails.Substitutions[0].Replacement = "notable" }},
		{name: "substitutions cleared", mutate: func(c *config.Config) { c.Guardrails.Substitutions = []guardrail.Substitution{} }},
		{name: "substitutions defaulted", mutate: func(c *config.Config) { c.Guardrails.Substitutions = nil }},
		{name: "disclosure", mutate: func(c *config.Config) { c.Guardrails.Disclosure.Key = "ships soon" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			if d := config.Diff(baseConfig(), new); !d.GuardrailsChanged {
				t.Errorf("expected GuardrailsChanged=true, got %+v", d)
			}
		})
	}
}

func TestDiff_IntentChanged(t *testing.T) {
	t.Parallel()
	new := baseConfig()
	new.Intent.Keywords.Service = []string{"manager"}
	if d := config.Diff(baseConfig(), new); !d.IntentChanged {
		t.Error("expected IntentChanged=true")
	}

	disabled := baseConfig()
	disabled.Intent.Phonetic = []string{}
	if d := config.Diff(baseConfig(), disabled); !d.IntentChanged {
		t.Error("expected IntentChanged=true when phonetic matching is disabled")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Flow.GraphPath = "flows/other.yaml"
	new.Server.ListenAddr = ":9090"
	reasks := 0
	new.Flow.MaxSilenceReasks = &reasks
	new.Audit.PostgresDSN = "postgres://localhost/callscript"
	new.Telemetry.ResourceAttributes = map[string]string{"callscript.site": "dublin"}

	d := config.Diff(old, new)
	for _, field := range []string{"flow.graph_path", "server.listen_addr", "flow.max_silence_reasks", "audit", "telemetry"} {
		if !slices.Contains(d.RestartRequired, field) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, field)
		}
	}
	if d.GuardrailsChanged || d.LogLevelChanged {
		t.Errorf("unexpected hot-reload changes: %+v", d)
	}
}
