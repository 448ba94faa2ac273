package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	KindServer = "server"
	KindClient = "client"
)

// Template renders the default config of kind as TOML.
func Template(kind string) (string, error) {
	var doc any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		doc = serverTemplate()
	case KindClient:
		doc = clientTemplate()
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Load validates the config file at path as kind.
func Load(kind, path string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		_, err := LoadServerConfig(path)
		return err
	case KindClient:
		_, err := LoadClientConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func serverTemplate() serverFile {
	cfg := DefaultServerConfig()
	cfg.Port = 9400
	cfg.AdminAddr = "127.0.0.1:9401"
	cfg.CorsOrigins = []string{"http://localhost:3000"}
	return serverFile{
		Port:        cfg.Port,
		Module:      cfg.Module,
		AdminAddr:   cfg.AdminAddr,
		CorsOrigins: cfg.CorsOrigins,
		LogLevel:    cfg.LogLevel,
		Loader: loaderFile{
			LoadArgv:    cfg.Loader.LoadArgv,
			ArtifactDir: cfg.Loader.ArtifactDir,
			ArtifactExt: cfg.Loader.ArtifactExt,
			Runner:      cfg.Loader.Runner,
			SSH: sshFile{
				Timeout: cfg.Loader.SSH.Timeout.String(),
			},
		},
	}
}

func clientTemplate() clientFile {
	cfg := DefaultClientConfig()
	return clientFile{
		ServerPath:   cfg.ServerPath,
		Module:       cfg.Module,
		ArtifactDir:  cfg.ArtifactDir,
		ArtifactExt:  cfg.ArtifactExt,
		HistoryPath:  ".replclient_history",
		DialAttempts: cfg.DialAttempts,
		DialBackoff:  cfg.DialBackoff.String(),
		DialMaxDelay: cfg.DialMaxDelay.String(),
	}
}
