package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	PlaceholderModule   = "{module}"
	PlaceholderArtifact = "{artifact}"
)

var ErrEmptyCommand = errors.New("loader: command argv is empty")

// CommandConfig describes how to run a module artifact as a subprocess.
type CommandConfig struct {
	// LoadArgv runs the artifact the first time. Placeholders {module} and
	// {artifact} are substituted per argument.
	LoadArgv []string
	// ReloadArgv runs it afterwards; empty means LoadArgv.
	ReloadArgv  []string
	ArtifactDir string
	ArtifactExt string
}

func (c CommandConfig) Validate() error {
	if len(c.LoadArgv) == 0 || strings.TrimSpace(c.LoadArgv[0]) == "" {
		return fmt.Errorf("%w: load", ErrEmptyCommand)
	}
	if len(c.ReloadArgv) > 0 && strings.TrimSpace(c.ReloadArgv[0]) == "" {
		return fmt.Errorf("%w: reload", ErrEmptyCommand)
	}
	return nil
}

// CommandLoader evaluates a module by running its artifact through a Runner.
// Each load is a fresh process, so module state does not survive between
// actions; the session still distinguishes import from reload through argv.
//
// Exit status mapping: 0 is success, non-zero with empty stderr is a
// termination request, non-zero with stderr output is an evaluation error
// whose trace is that output. An artifact that exits with status 0 on its
// own (exit(0), sys.exit(0)) cannot be told apart from one that ran to the
// end, so it is reported as success rather than as a termination request.
type CommandLoader struct {
	cfg    CommandConfig
	runner Runner
}

var _ Loader = (*CommandLoader)(nil)

func NewCommandLoader(cfg CommandConfig, runner Runner) (*CommandLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = LocalRunner{}
	}
	return &CommandLoader{cfg: cfg, runner: runner}, nil
}

// ArtifactPath is where the driver is expected to write module.
func (l *CommandLoader) ArtifactPath(module string) string {
	return ArtifactPath(l.cfg.ArtifactDir, module, l.cfg.ArtifactExt)
}

func (l *CommandLoader) Load(ctx context.Context, module string, stdout io.Writer) error {
	return l.run(ctx, module, l.cfg.LoadArgv, stdout)
}

func (l *CommandLoader) Reload(ctx context.Context, module string, stdout io.Writer) error {
	argv := l.cfg.ReloadArgv
	if len(argv) == 0 {
		argv = l.cfg.LoadArgv
	}
	return l.run(ctx, module, argv, stdout)
}

func (l *CommandLoader) run(ctx context.Context, module string, argv []string, stdout io.Writer) error {
	argv = ExpandArgv(argv, module, l.ArtifactPath(module))
	var stderr bytes.Buffer
	code, err := l.runner.Run(ctx, argv[0], argv[1:], stdout, &stderr)
	if err == nil && code == 0 {
		if stderr.Len() > 0 {
			log.Debug().Msgf("loader.CommandLoader.run stderr module=%q bytes=%d", module, stderr.Len())
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &EvalError{Module: module, Err: ctxErr}
	}

	trace := strings.TrimRight(stderr.String(), " \t\r\n")
	if code > 0 && trace == "" {
		return ExitRequest{Code: code}
	}
	if err == nil {
		err = fmt.Errorf("exit status %d", code)
	}
	if trace == "" {
		trace = typeAndMessage(err)
	}
	return &EvalError{Module: module, Trace: trace, Err: err}
}

// ArtifactPath joins dir, module and ext into the artifact location.
func ArtifactPath(dir, module, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, module+ext)
}

// ExpandArgv substitutes placeholders in a copy of argv.
func ExpandArgv(argv []string, module, artifact string) []string {
	r := strings.NewReplacer(PlaceholderModule, module, PlaceholderArtifact, artifact)
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = r.Replace(arg)
	}
	return out
}
