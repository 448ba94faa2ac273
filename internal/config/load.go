package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// replctl config.toml key mapping to ServerConfig.
type serverFile struct {
	Port        int        `toml:"port"`
	Module      string     `toml:"module"`
	AdminAddr   string     `toml:"admin_addr"`
	AdminToken  string     `toml:"admin_token,omitempty"`
	CorsOrigins []string   `toml:"cors_origins"`
	LogLevel    string     `toml:"log_level"`
	Loader      loaderFile `toml:"loader"`
}

type loaderFile struct {
	LoadArgv    []string `toml:"load_argv"`
	ReloadArgv  []string `toml:"reload_argv,omitempty"`
	ArtifactDir string   `toml:"artifact_dir"`
	ArtifactExt string   `toml:"artifact_ext,omitempty"`
	Runner      string   `toml:"runner"`
	WorkDir     string   `toml:"work_dir,omitempty"`
	Env         []string `toml:"env,omitempty"`
	SSH         sshFile  `toml:"ssh"`
}

type sshFile struct {
	Host                        string `toml:"host,omitempty"`
	Port                        string `toml:"port,omitempty"`
	User                        string `toml:"user,omitempty"`
	KeyPath                     string `toml:"key_path,omitempty"`
	KnownHostsPath              string `toml:"known_hosts_path,omitempty"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
	PassphraseEnv               string `toml:"passphrase_env,omitempty"`
}

// replclient config.toml key mapping to ClientConfig.
type clientFile struct {
	ServerPath   string `toml:"server_path"`
	Addr         string `toml:"addr,omitempty"`
	Module       string `toml:"module"`
	ArtifactDir  string `toml:"artifact_dir"`
	ArtifactExt  string `toml:"artifact_ext,omitempty"`
	HistoryPath  string `toml:"history_path,omitempty"`
	DialAttempts int    `toml:"dial_attempts"`
	DialBackoff  string `toml:"dial_backoff"`
	DialMaxDelay string `toml:"dial_max_delay"`
}

// LoadServerConfig overlays the file at path on DefaultServerConfig.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServerConfig{}, fmt.Errorf("server config unknown key: %s", undecoded[0])
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("module") {
		cfg.Module = strings.TrimSpace(raw.Module)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("loader", "load_argv") {
		cfg.Loader.LoadArgv = raw.Loader.LoadArgv
	}
	if meta.IsDefined("loader", "reload_argv") {
		cfg.Loader.ReloadArgv = raw.Loader.ReloadArgv
	}
	if meta.IsDefined("loader", "artifact_dir") {
		cfg.Loader.ArtifactDir = strings.TrimSpace(raw.Loader.ArtifactDir)
	}
	if meta.IsDefined("loader", "artifact_ext") {
		cfg.Loader.ArtifactExt = strings.TrimSpace(raw.Loader.ArtifactExt)
	}
	if meta.IsDefined("loader", "runner") {
		cfg.Loader.Runner = strings.ToLower(strings.TrimSpace(raw.Loader.Runner))
	}
	if meta.IsDefined("loader", "work_dir") {
		cfg.Loader.WorkDir = strings.TrimSpace(raw.Loader.WorkDir)
	}
	if meta.IsDefined("loader", "env") {
		cfg.Loader.Env = raw.Loader.Env
	}
	if meta.IsDefined("loader", "ssh", "host") {
		cfg.Loader.SSH.Host = strings.TrimSpace(raw.Loader.SSH.Host)
	}
	if meta.IsDefined("loader", "ssh", "port") {
		cfg.Loader.SSH.Port = strings.TrimSpace(raw.Loader.SSH.Port)
	}
	if meta.IsDefined("loader", "ssh", "user") {
		cfg.Loader.SSH.User = strings.TrimSpace(raw.Loader.SSH.User)
	}
	if meta.IsDefined("loader", "ssh", "key_path") {
		cfg.Loader.SSH.KeyPath = strings.TrimSpace(raw.Loader.SSH.KeyPath)
	}
	if meta.IsDefined("loader", "ssh", "known_hosts_path") {
		cfg.Loader.SSH.KnownHostsPath = strings.TrimSpace(raw.Loader.SSH.KnownHostsPath)
	}
	if meta.IsDefined("loader", "ssh", "insecure_skip_host_key_checking") {
		cfg.Loader.SSH.InsecureSkipHostKeyChecking = raw.Loader.SSH.InsecureSkipHostKeyChecking
	}
	if meta.IsDefined("loader", "ssh", "passphrase_env") {
		cfg.Loader.SSH.PassphraseEnv = strings.TrimSpace(raw.Loader.SSH.PassphraseEnv)
	}
	if meta.IsDefined("loader", "ssh", "timeout") {
		d, err := parseDuration("loader.ssh.timeout", raw.Loader.SSH.Timeout)
		if err != nil {
			return ServerConfig{}, err
		}
		cfg.Loader.SSH.Timeout = d
	}

	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfig overlays the file at path on DefaultClientConfig.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("client config unknown key: %s", undecoded[0])
	}

	if meta.IsDefined("server_path") {
		cfg.ServerPath = strings.TrimSpace(raw.ServerPath)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("module") {
		cfg.Module = strings.TrimSpace(raw.Module)
	}
	if meta.IsDefined("artifact_dir") {
		cfg.ArtifactDir = strings.TrimSpace(raw.ArtifactDir)
	}
	if meta.IsDefined("artifact_ext") {
		cfg.ArtifactExt = strings.TrimSpace(raw.ArtifactExt)
	}
	if meta.IsDefined("history_path") {
		cfg.HistoryPath = strings.TrimSpace(raw.HistoryPath)
	}
	if meta.IsDefined("dial_attempts") {
		cfg.DialAttempts = raw.DialAttempts
	}
	if meta.IsDefined("dial_backoff") {
		d, err := parseDuration("dial_backoff", raw.DialBackoff)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.DialBackoff = d
	}
	if meta.IsDefined("dial_max_delay") {
		d, err := parseDuration("dial_max_delay", raw.DialMaxDelay)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.DialMaxDelay = d
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
