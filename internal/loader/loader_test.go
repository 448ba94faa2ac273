package loader

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/danmuck/replctl/internal/testutil/testlog"
	pkgerrors "github.com/pkg/errors"
)

type badFormatter struct{}

func (badFormatter) Error() string { return "bad formatter" }

func (badFormatter) StackTrace() pkgerrors.StackTrace { return nil }

func (badFormatter) Format(fmt.State, rune) { panic("cannot format") }

func TestFormatTracePrefersExplicitTrace(t *testing.T) {
	testlog.Start(t)
	err := &EvalError{Module: "o", Trace: "Traceback:\n  line 1\nValueError: bad\n\n", Err: errors.New("x")}
	if got := FormatTrace(err); got != "Traceback:\n  line 1\nValueError: bad" {
		t.Fatalf("unexpected trace: %q", got)
	}
}

func TestFormatTraceUsesStackWhenAvailable(t *testing.T) {
	testlog.Start(t)
	err := pkgerrors.Wrap(errors.New("division by zero"), "evaluate o")
	got := FormatTrace(err)
	if !strings.HasPrefix(got, "division by zero") {
		t.Fatalf("trace should start with the cause: %q", got)
	}
	if !strings.Contains(got, "TestFormatTraceUsesStackWhenAvailable") {
		t.Fatalf("trace should include the stack: %q", got)
	}
}

func TestFormatTraceFallsBackToTypeAndMessage(t *testing.T) {
	testlog.Start(t)
	err := fmt.Errorf("evaluate o: %w", errors.New("boom"))
	if got := FormatTrace(err); got != "*errors.errorString: evaluate o: boom" {
		t.Fatalf("unexpected fallback: %q", got)
	}
	if got := FormatTrace(badFormatter{}); got != "loader.badFormatter: bad formatter" {
		t.Fatalf("unexpected fallback after format panic: %q", got)
	}
	if got := FormatTrace(nil); got != "" {
		t.Fatalf("nil error should format empty, got %q", got)
	}
}

func TestExitRequestMatchesSentinel(t *testing.T) {
	testlog.Start(t)
	err := fmt.Errorf("wrapped: %w", ExitRequest{Code: 3})
	if !IsExitRequest(err) {
		t.Fatalf("expected exit request")
	}
	if IsExitRequest(&EvalError{Module: "o", Err: errors.New("x")}) {
		t.Fatalf("eval error must not look like an exit request")
	}
}

func TestRecovered(t *testing.T) {
	testlog.Start(t)
	if err := Recovered("o", ExitRequest{Code: 2}); !IsExitRequest(err) {
		t.Fatalf("exit panic should stay an exit request, got %v", err)
	}

	err := Recovered("o", "index out of range")
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %T", err)
	}
	if !strings.HasPrefix(evalErr.Trace, "panic: index out of range") {
		t.Fatalf("unexpected trace: %q", evalErr.Trace)
	}
	if !strings.Contains(evalErr.Trace, "goroutine") {
		t.Fatalf("trace should carry the stack: %q", evalErr.Trace)
	}
}
