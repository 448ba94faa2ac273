package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/replctl/internal/client"
	"github.com/danmuck/replctl/internal/config"
	"github.com/danmuck/replctl/internal/loader"
	"github.com/danmuck/replctl/internal/observability"
	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	promptMain = "> "
	promptCont = "... "
)

var (
	configPath = kingpin.Flag("config", "Path to a replclient TOML config").
			Short('c').
			String()
	serverPath = kingpin.Flag("server", "replctl binary to spawn").
			String()
	serverArgs = kingpin.Flag("server-arg", "Extra argument passed to the spawned replctl; repeatable").
			Strings()
	addr = kingpin.Flag("addr", "Attach to a running replctl instead of spawning one").
		String()
	module = kingpin.Flag("module", "Module name the session loads").
		String()
	artifactDir = kingpin.Flag("artifact-dir", "Directory artifacts are written to").
			String()
	artifactExt = kingpin.Flag("artifact-ext", "Artifact file extension").
			String()
	history = kingpin.Flag("history", "Line history file").
		String()
)

func main() {
	kingpin.Parse()
	observability.InitLogger("replclient")
	os.Exit(run())
}

func run() int {
	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replclient: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	target := cfg.Addr
	var proc *client.Process
	if target == "" {
		args := []string{"--artifact-dir", cfg.ArtifactDir}
		if cfg.ArtifactExt != "" {
			args = append(args, "--artifact-ext", cfg.ArtifactExt)
		}
		proc, err = client.Spawn(ctx, client.SpawnConfig{
			ServerPath: cfg.ServerPath,
			Args:       append(args, *serverArgs...),
			Module:     cfg.Module,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "replclient: %v\n", err)
			return 1
		}
		defer proc.Kill()
		target = proc.Addr()
	}

	c, err := client.Dial(ctx, target, client.Config{
		MaxAttempts: cfg.DialAttempts,
		Backoff: client.BackoffConfig{
			InitialDelay: cfg.DialBackoff,
			Multiplier:   2.0,
			MaxDelay:     cfg.DialMaxDelay,
			Jitter:       true,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replclient: %v\n", err)
		return 1
	}
	defer c.Close()

	artifact := loader.ArtifactPath(cfg.ArtifactDir, cfg.Module, cfg.ArtifactExt)
	session := client.NewSession(c, artifact)
	log.Info().Msgf("replclient attached addr=%q module=%q artifact=%q", target, cfg.Module, artifact)

	code := loop(ctx, session, cfg.HistoryPath)

	exitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Exit(exitCtx); err != nil && !errors.Is(err, client.ErrClosed) {
		log.Warn().Msgf("replclient exit handshake err=%v", err)
	}
	if proc != nil {
		select {
		case <-proc.Done():
		case <-exitCtx.Done():
		}
	}
	return code
}

func loop(ctx context.Context, session *client.Session, historyPath string) int {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(historyPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	for {
		chunk, err := readChunk(ln)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "replclient: read input: %v\n", err)
			return 1
		}
		trimmed := strings.TrimSpace(chunk)
		switch trimmed {
		case "":
			continue
		case ":quit", ":exit":
			return 0
		case ":clear":
			session.Reset()
			continue
		case ":source":
			fmt.Println(string(session.Source()))
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(chunk, "\n", " "))

		res, err := session.Submit(ctx, []byte(chunk))
		if err != nil {
			fmt.Fprintf(os.Stderr, "replclient: %v\n", err)
			if errors.Is(err, client.ErrUnexpectedResponse) {
				continue
			}
			return 1
		}
		switch res.Kind {
		case client.Printed:
			if res.Text != "" {
				fmt.Println(res.Text)
			}
		case client.Reinitialize:
			fmt.Fprintln(os.Stderr, res.Text)
		case client.Raised:
			return 0
		}
	}
}

// prompter is the part of *liner.State readChunk needs.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// readChunk reads one logical input; a trailing backslash continues it on
// the next line. End of input and an aborted prompt return io.EOF; any
// other terminal error is returned as is.
func readChunk(p prompter) (string, error) {
	var b strings.Builder
	prompt := promptMain
	for {
		line, err := p.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if cont, found := strings.CutSuffix(line, "\\"); found {
			b.WriteString(cont)
			b.WriteByte('\n')
			prompt = promptCont
			continue
		}
		b.WriteString(line)
		return b.String(), nil
	}
}

func resolveConfig() (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(*serverPath); v != "" {
		cfg.ServerPath = v
	}
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(*module); v != "" {
		cfg.Module = v
	}
	if v := strings.TrimSpace(*artifactDir); v != "" {
		cfg.ArtifactDir = v
	}
	if v := strings.TrimSpace(*artifactExt); v != "" {
		cfg.ArtifactExt = v
	}
	if v := strings.TrimSpace(*history); v != "" {
		cfg.HistoryPath = v
	}
	if dir, err := filepath.Abs(cfg.ArtifactDir); err == nil {
		cfg.ArtifactDir = dir
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
