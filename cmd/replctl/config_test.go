package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/replctl/internal/testutil/testlog"
)

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
port = 9400
module = "from_file"

[loader]
load_argv = ["python3", "{artifact}"]
artifact_dir = "/var/lib/replctl"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := resolveConfig(flagOverrides{ConfigPath: path, Module: "from_flag"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Port != 9400 {
		t.Fatalf("expected file port, got %d", cfg.Port)
	}
	if cfg.Module != "from_flag" {
		t.Fatalf("expected flag module, got %q", cfg.Module)
	}
	if cfg.Loader.ArtifactDir != "/var/lib/replctl" || cfg.Loader.LoadArgv[0] != "python3" {
		t.Fatalf("unexpected loader config: %+v", cfg.Loader)
	}
}

func TestResolveConfigRequiresPort(t *testing.T) {
	testlog.Start(t)
	if _, err := resolveConfig(flagOverrides{Module: "o"}); err == nil {
		t.Fatalf("expected missing port error")
	}
	cfg, err := resolveConfig(flagOverrides{Port: 9500, LoadArgv: []string{"sh", "{artifact}"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Module != "o" || cfg.Loader.LoadArgv[0] != "sh" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := resolveConfig(flagOverrides{Port: 9500, Module: "bad-name"}); err == nil {
		t.Fatalf("expected invalid module error")
	}
}
