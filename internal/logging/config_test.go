package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"diagnostics", zerolog.TraceLevel, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = (%v,%v), want (%v,%v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("level=%v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("timestamp should be disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("nocolor should be enabled")
	}
}

func TestNewWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("module", "o").Msg("repl.Server.loadAction done")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "repl.Server.loadAction done") || !strings.Contains(out, "module=o") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestApplyLevelDefersToEnvironment(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	if ApplyLevel("error") {
		t.Fatalf("config level must not override %s", EnvLogLevel)
	}
	t.Setenv(EnvLogLevel, "")
	if ApplyLevel("loud") {
		t.Fatalf("unknown level must be ignored")
	}
}
