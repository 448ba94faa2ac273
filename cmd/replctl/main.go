package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/replctl/internal/admin"
	"github.com/danmuck/replctl/internal/logging"
	"github.com/danmuck/replctl/internal/observability"
	"github.com/danmuck/replctl/internal/repl"
	"github.com/pkg/profile"
	"github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	port = kingpin.Flag("port", "Loopback TCP port to accept the driver on").
		Int()
	module = kingpin.Flag("module", "Name of the module the session loads").
		String()
	configPath = kingpin.Flag("config", "Path to a replctl TOML config").
			Short('c').
			String()
	adminAddr = kingpin.Flag("admin-addr", "Serve /health, /status and /metrics on this address").
			String()
	artifactDir = kingpin.Flag("artifact-dir", "Directory the driver writes artifacts into").
			String()
	artifactExt = kingpin.Flag("artifact-ext", "Artifact file extension").
			String()
	loadCmd = kingpin.Flag("load-cmd", "Command argv that evaluates an artifact ({module}, {artifact} substituted); repeatable").
		Strings()
	memProfile = kingpin.Flag("memprofile", "Enable memory profiling").
			Bool()
)

func main() {
	kingpin.Parse()
	observability.InitLogger("replctl")
	os.Exit(realMain())
}

// realMain keeps deferred profile writes ahead of os.Exit.
func realMain() int {
	if *memProfile {
		defer profile.Start(profile.MemProfile, profile.Quiet).Stop()
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "replctl: %v\n", err)
		return 1
	}
	return 0
}

func run() error {
	cfg, err := resolveConfig(flagOverrides{
		ConfigPath: *configPath,
		Port:       *port,
		Module:     *module,
		AdminAddr:  *adminAddr,
		LoadArgv:   *loadCmd,
		Artifacts:  *artifactDir,
		Extension:  *artifactExt,
	})
	if err != nil {
		return err
	}
	logging.ApplyLevel(cfg.LogLevel)

	l, err := cfg.Loader.BuildLoader()
	if err != nil {
		return err
	}
	srv, err := repl.NewServer(repl.Config{Port: cfg.Port, Module: cfg.Module}, l)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AdminAddr != "" {
		adm, err := admin.New(cfg.AdminAddr, srv, admin.Options{
			CorsOrigins: cfg.CorsOrigins,
			Token:       cfg.AdminToken,
		})
		if err != nil {
			return err
		}
		adminCtx, cancelAdmin := context.WithCancel(ctx)
		defer cancelAdmin()
		go func() {
			if err := adm.Serve(adminCtx); err != nil {
				log.Error().Msgf("replctl admin server stopped err=%v", err)
			}
		}()
	}

	log.Info().Msgf(
		"replctl ready addr=%q module=%q artifact=%q runner=%s",
		srv.Addr(),
		cfg.Module,
		l.ArtifactPath(cfg.Module),
		cfg.Loader.Runner,
	)
	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("replctl interrupted")
		return nil
	}
	return err
}
