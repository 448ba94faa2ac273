package loader

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes one command and reports its exit code. A command that
// could not be started returns exit code -1 and a non-nil error.
type Runner interface {
	Run(ctx context.Context, cmd string, args []string, stdout, stderr io.Writer) (int, error)
}

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// LocalRunner runs commands on this host.
type LocalRunner struct {
	Dir string
	Env []string
}

func (r LocalRunner) Run(ctx context.Context, cmd string, args []string, stdout, stderr io.Writer) (int, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	command.Dir = r.Dir
	if len(r.Env) > 0 {
		command.Env = append(os.Environ(), r.Env...)
	}
	command.Stdout = stdout
	command.Stderr = stderr

	err := command.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}
	return -1, err
}
