package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/danmuck/replctl/internal/loader"
)

const (
	RunnerLocal = "local"
	RunnerSSH   = "ssh"
)

// ServerConfig is the runtime configuration of one replctl process.
type ServerConfig struct {
	Port        int
	Module      string
	AdminAddr   string
	AdminToken  string
	CorsOrigins []string
	LogLevel    string
	Loader      LoaderConfig
}

// LoaderConfig selects how artifacts are evaluated.
type LoaderConfig struct {
	LoadArgv    []string
	ReloadArgv  []string
	ArtifactDir string
	ArtifactExt string
	Runner      string
	WorkDir     string
	Env         []string
	SSH         SSHConfig
}

type SSHConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
	// PassphraseEnv names the environment variable holding the key
	// passphrase; the passphrase itself never lives in the config file.
	PassphraseEnv string
}

// ClientConfig is the runtime configuration of the interactive front end.
type ClientConfig struct {
	ServerPath   string
	Addr         string
	Module       string
	ArtifactDir  string
	ArtifactExt  string
	HistoryPath  string
	DialAttempts int
	DialBackoff  time.Duration
	DialMaxDelay time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Module:   "o",
		LogLevel: "info",
		Loader: LoaderConfig{
			LoadArgv:    []string{"{artifact}"},
			ArtifactDir: ".",
			Runner:      RunnerLocal,
			SSH: SSHConfig{
				Timeout: 10 * time.Second,
			},
		},
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerPath:   "replctl",
		Module:       "o",
		ArtifactDir:  ".",
		DialAttempts: 10,
		DialBackoff:  50 * time.Millisecond,
		DialMaxDelay: time.Second,
	}
}

func ValidateServerConfig(cfg ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("server config port out of range: %d", cfg.Port)
	}
	if !loader.ValidModuleName(strings.TrimSpace(cfg.Module)) {
		return fmt.Errorf("server config invalid module name: %q", cfg.Module)
	}
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("server config invalid admin_addr %q: %w", addr, err)
		}
	}
	if err := ValidateLoaderConfig(cfg.Loader); err != nil {
		return fmt.Errorf("loader invalid: %w", err)
	}
	return nil
}

func ValidateLoaderConfig(cfg LoaderConfig) error {
	if err := cfg.CommandConfig().Validate(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Runner)) {
	case "", RunnerLocal:
		return nil
	case RunnerSSH:
		if strings.TrimSpace(cfg.SSH.Host) == "" {
			return fmt.Errorf("ssh host is required")
		}
		if strings.TrimSpace(cfg.SSH.User) == "" {
			return fmt.Errorf("ssh user is required")
		}
		if strings.TrimSpace(cfg.SSH.KeyPath) == "" {
			return fmt.Errorf("ssh key_path is required")
		}
		if env := strings.TrimSpace(cfg.SSH.PassphraseEnv); env != "" && strings.ContainsAny(env, "= \t") {
			return fmt.Errorf("ssh passphrase_env is not a variable name: %q", env)
		}
		if cfg.SSH.Timeout < 0 {
			return fmt.Errorf("ssh timeout must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("unknown runner: %s", cfg.Runner)
	}
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.ServerPath) == "" && strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("client config requires server_path or addr")
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("client config invalid addr %q: %w", addr, err)
		}
	}
	if !loader.ValidModuleName(strings.TrimSpace(cfg.Module)) {
		return fmt.Errorf("client config invalid module name: %q", cfg.Module)
	}
	if cfg.DialAttempts < 1 {
		return fmt.Errorf("client config dial_attempts must be >= 1")
	}
	if cfg.DialBackoff <= 0 {
		return fmt.Errorf("client config dial_backoff must be > 0")
	}
	if cfg.DialMaxDelay < cfg.DialBackoff {
		return fmt.Errorf("client config dial_max_delay must be >= dial_backoff")
	}
	return nil
}
