// Package loader defines how a REPL session imports and reloads the module
// produced by the compiler driver, and how evaluation failures are reported.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrExitRequested  = errors.New("loader: exit requested")
	ErrModuleNotFound = errors.New("loader: module not found")
)

// Loader is the load/reload capability used by a session. Implementations
// write module standard output to stdout and report failures as
// *EvalError or ExitRequest values.
type Loader interface {
	Load(ctx context.Context, module string, stdout io.Writer) error
	Reload(ctx context.Context, module string, stdout io.Writer) error
}

// ExitRequest reports that evaluated code asked the process to terminate.
type ExitRequest struct {
	Code int
}

func (e ExitRequest) Error() string {
	return fmt.Sprintf("loader: exit requested (code %d)", e.Code)
}

func (e ExitRequest) Is(target error) bool {
	return target == ErrExitRequested
}

func IsExitRequest(err error) bool {
	return errors.Is(err, ErrExitRequested)
}

// Exit aborts an in-process module evaluation with a termination request.
func Exit(code int) {
	panic(ExitRequest{Code: code})
}

// EvalError is an error raised while importing, reloading or running a module.
// Trace is the user-visible report; when empty it is derived from Err.
type EvalError struct {
	Module string
	Trace  string
	Err    error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loader: evaluate %s: %v", e.Module, e.Err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(e.Trace), "\n")
	return fmt.Sprintf("loader: evaluate %s: %s", e.Module, first)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// FormatTrace renders err for the client. It prefers an explicit trace,
// then a pkg/errors stack, and falls back to the error type and message.
func FormatTrace(err error) string {
	if err == nil {
		return ""
	}
	var evalErr *EvalError
	if errors.As(err, &evalErr) && strings.TrimSpace(evalErr.Trace) != "" {
		return strings.TrimRight(evalErr.Trace, " \t\r\n")
	}

	var st stackTracer
	if errors.As(err, &st) {
		// fmt reports a panicking Format method inline instead of propagating it.
		if out := fmt.Sprintf("%+v", err); !strings.Contains(out, "(PANIC=") {
			return strings.TrimRight(out, " \t\r\n")
		}
	}
	return typeAndMessage(err)
}

func typeAndMessage(err error) string {
	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	return fmt.Sprintf("%T: %s", cause, err.Error())
}

// Recovered converts a value recovered from a panicking module into an error.
func Recovered(module string, r any) error {
	switch v := r.(type) {
	case ExitRequest:
		return v
	case *ExitRequest:
		return *v
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	return &EvalError{
		Module: module,
		Trace:  fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()),
		Err:    err,
	}
}
