package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/replctl/internal/config"
)

// flagOverrides holds command-line values; zero values leave the file or
// default setting in place.
type flagOverrides struct {
	ConfigPath string
	Port       int
	Module     string
	AdminAddr  string
	LoadArgv   []string
	Artifacts  string
	Extension  string
}

// replctl settings resolution: defaults, then config file, then flags.
func resolveConfig(flags flagOverrides) (config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path := strings.TrimSpace(flags.ConfigPath); path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return config.ServerConfig{}, err
		}
		cfg = loaded
	}

	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	if module := strings.TrimSpace(flags.Module); module != "" {
		cfg.Module = module
	}
	if addr := strings.TrimSpace(flags.AdminAddr); addr != "" {
		cfg.AdminAddr = addr
	}
	if len(flags.LoadArgv) > 0 {
		cfg.Loader.LoadArgv = flags.LoadArgv
	}
	if dir := strings.TrimSpace(flags.Artifacts); dir != "" {
		cfg.Loader.ArtifactDir = dir
	}
	if ext := strings.TrimSpace(flags.Extension); ext != "" {
		cfg.Loader.ArtifactExt = ext
	}

	if cfg.Port == 0 {
		return config.ServerConfig{}, fmt.Errorf("replctl: port is required (--port or config port)")
	}
	if err := config.ValidateServerConfig(cfg); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}
