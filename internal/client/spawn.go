package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/replctl/internal/repl"
	"github.com/rs/zerolog/log"
)

var ErrServerPathRequired = errors.New("client: server path required")

// SpawnConfig describes the replctl child process.
type SpawnConfig struct {
	ServerPath string
	// Args precede the generated --port/--module flags.
	Args   []string
	Module string
	// Port 0 picks a free loopback port.
	Port   int
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running replctl child.
type Process struct {
	Port int

	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

// FreePort returns a loopback TCP port that was free at the time of the call.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(repl.LoopbackHost, "0"))
	if err != nil {
		return 0, fmt.Errorf("client: free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Spawn starts replctl for cfg.Module on cfg.Port. The child is killed when
// ctx ends.
func Spawn(ctx context.Context, cfg SpawnConfig) (*Process, error) {
	if strings.TrimSpace(cfg.ServerPath) == "" {
		return nil, ErrServerPathRequired
	}
	if strings.TrimSpace(cfg.Module) == "" {
		return nil, repl.ErrModuleRequired
	}
	port := cfg.Port
	if port == 0 {
		p, err := FreePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	args := append([]string(nil), cfg.Args...)
	args = append(args, "--port", strconv.Itoa(port), "--module", cfg.Module)
	cmd := exec.CommandContext(ctx, cfg.ServerPath, args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("client: spawn %s: %w", cfg.ServerPath, err)
	}
	log.Info().Msgf("client.Spawn pid=%d port=%d module=%q", cmd.Process.Pid, port, cfg.Module)

	p := &Process{Port: port, cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *Process) Addr() string {
	return net.JoinHostPort(repl.LoopbackHost, strconv.Itoa(p.Port))
}

// Wait blocks until the child exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Kill stops the child if it is still running.
func (p *Process) Kill() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
	})
	return err
}
