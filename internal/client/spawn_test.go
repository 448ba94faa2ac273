package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"testing"

	"github.com/danmuck/replctl/internal/loader"
	"github.com/danmuck/replctl/internal/repl"
	"github.com/danmuck/replctl/internal/testutil/testlog"
)

const helperEnv = "REPLCTL_CLIENT_HELPER=1"

// TestHelperProcess runs a replctl-equivalent server when re-executed by
// Spawn; it is a no-op in the normal test run.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("REPLCTL_CLIENT_HELPER") != "1" {
		return
	}
	port, module := 0, ""
	args := os.Args
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "--port":
			port, _ = strconv.Atoi(args[i+1])
		case "--module":
			module = args[i+1]
		}
	}

	reg := loader.NewRegistry()
	_ = reg.Register(loader.ModuleFunc{
		ID:       module,
		OnImport: func(w io.Writer) error { fmt.Fprintf(w, "spawned %s", module); return nil },
	})
	srv, err := repl.NewServer(repl.Config{Port: port, Module: module}, reg)
	if err != nil {
		os.Exit(2)
	}
	if err := srv.Serve(context.Background()); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestSpawnDialExit(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	p, err := Spawn(ctx, SpawnConfig{
		ServerPath: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$", "--"},
		Module:     "o",
		Env:        []string{helperEnv},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer p.Kill()
	if p.Port == 0 {
		t.Fatalf("expected a chosen port")
	}

	c, err := Dial(ctx, p.Addr(), Config{MaxAttempts: 50})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	res, err := c.Load(ctx)
	if err != nil || res.Kind != Printed || res.Text != "spawned o" {
		t.Fatalf("load: res=%+v err=%v", res, err)
	}
	if err := c.Exit(ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("child exit: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
}

func TestSpawnValidation(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	if _, err := Spawn(ctx, SpawnConfig{Module: "o"}); !errors.Is(err, ErrServerPathRequired) {
		t.Fatalf("expected ErrServerPathRequired, got %v", err)
	}
	if _, err := Spawn(ctx, SpawnConfig{ServerPath: "replctl"}); !errors.Is(err, repl.ErrModuleRequired) {
		t.Fatalf("expected ErrModuleRequired, got %v", err)
	}
	if _, err := Spawn(ctx, SpawnConfig{ServerPath: "/nonexistent/replctl", Module: "o"}); err == nil {
		t.Fatalf("expected start failure")
	}
}

func TestFreePort(t *testing.T) {
	testlog.Start(t)
	port, err := FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Fatalf("unexpected port %d", port)
	}
}
