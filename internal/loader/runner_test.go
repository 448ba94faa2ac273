package loader

import (
	"context"
	"io"
	"testing"

	"github.com/danmuck/replctl/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestJoinCommandEscaping(t *testing.T) {
	testlog.Start(t)
	got := joinCommand("python3", []string{"a b", "quote'v"})
	want := "'python3' 'a b' 'quote'\"'\"'v'"
	if got != want {
		t.Fatalf("unexpected joined command\nwant: %s\ngot:  %s", want, got)
	}
	log.Debug().Msgf("runner/join-command: %s", got)
}

func TestSSHRunnerAddressValidation(t *testing.T) {
	testlog.Start(t)
	r := SSHRunner{}
	if _, err := r.address(); err == nil {
		t.Fatalf("expected host validation error")
	}

	r.Host = "build-a"
	addr, err := r.address()
	if err != nil {
		t.Fatalf("unexpected address error: %v", err)
	}
	if addr != "build-a:22" {
		t.Fatalf("expected default ssh port, got %q", addr)
	}

	r.Port = "2222"
	if addr, _ := r.address(); addr != "build-a:2222" {
		t.Fatalf("expected explicit port, got %q", addr)
	}
}

func TestSSHRunnerRunFailsWithoutUser(t *testing.T) {
	testlog.Start(t)
	r := SSHRunner{Host: "127.0.0.1:1"}
	if _, err := r.clientConfig(); err == nil {
		t.Fatalf("expected missing user validation error")
	}
	code, err := r.Run(context.Background(), "true", nil, io.Discard, io.Discard)
	if err == nil || code != -1 {
		t.Fatalf("expected start failure, code=%d err=%v", code, err)
	}
}

func TestLocalRunnerExitCodes(t *testing.T) {
	testlog.Start(t)
	r := LocalRunner{}
	if code, err := r.Run(context.Background(), "sh", []string{"-c", "exit 0"}, io.Discard, io.Discard); code != 0 || err != nil {
		t.Fatalf("code=%d err=%v", code, err)
	}
	if code, err := r.Run(context.Background(), "sh", []string{"-c", "exit 7"}, io.Discard, io.Discard); code != 7 || err == nil {
		t.Fatalf("code=%d err=%v", code, err)
	}
	if code, err := r.Run(context.Background(), "/nonexistent/replctl-bin", nil, io.Discard, io.Discard); code != -1 || err == nil {
		t.Fatalf("code=%d err=%v", code, err)
	}
}
