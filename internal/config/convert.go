package config

import (
	"os"
	"strings"

	"github.com/danmuck/replctl/internal/loader"
)

// CommandConfig maps loader settings to the subprocess loader.
func (c LoaderConfig) CommandConfig() loader.CommandConfig {
	return loader.CommandConfig{
		LoadArgv:    append([]string(nil), c.LoadArgv...),
		ReloadArgv:  append([]string(nil), c.ReloadArgv...),
		ArtifactDir: c.ArtifactDir,
		ArtifactExt: c.ArtifactExt,
	}
}

// BuildRunner returns the Runner named by c.Runner. The SSH key passphrase
// is read from the environment variable named by SSH.PassphraseEnv.
func (c LoaderConfig) BuildRunner() loader.Runner {
	if strings.EqualFold(strings.TrimSpace(c.Runner), RunnerSSH) {
		var passphrase []byte
		if env := strings.TrimSpace(c.SSH.PassphraseEnv); env != "" {
			if v := os.Getenv(env); v != "" {
				passphrase = []byte(v)
			}
		}
		return loader.SSHRunner{
			Host:                        c.SSH.Host,
			Port:                        c.SSH.Port,
			User:                        c.SSH.User,
			KeyPath:                     c.SSH.KeyPath,
			Passphrase:                  passphrase,
			KnownHostsPath:              c.SSH.KnownHostsPath,
			InsecureSkipHostKeyChecking: c.SSH.InsecureSkipHostKeyChecking,
			Timeout:                     c.SSH.Timeout,
		}
	}
	return loader.LocalRunner{Dir: c.WorkDir, Env: append([]string(nil), c.Env...)}
}

// BuildLoader assembles the CommandLoader described by c.
func (c LoaderConfig) BuildLoader() (*loader.CommandLoader, error) {
	return loader.NewCommandLoader(c.CommandConfig(), c.BuildRunner())
}
