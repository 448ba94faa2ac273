package repl

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/danmuck/replctl/internal/capture"
	"github.com/danmuck/replctl/internal/loader"
	"github.com/danmuck/replctl/internal/observability"
	"github.com/danmuck/replctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// SystemExitPayload is the EXCEPTION payload for a termination request.
const SystemExitPayload = "SystemExit"

const (
	actionImport = "import"
	actionReload = "reload"
)

// loadAction imports the module on the first successful load and reloads it
// afterwards, capturing stdout for the duration. It never returns an error:
// every evaluation failure becomes the response.
func (s *Server) loadAction(ctx context.Context) (frame.Instruction, string) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()

	kind := actionImport
	if loaded {
		kind = actionReload
	}
	start := time.Now()

	var (
		out string
		err error
	)
	sink, err := capture.Begin()
	if err == nil {
		defer sink.Close()
		err = s.evaluate(ctx, loaded, sink)
		out = sink.Output()
	}

	inst, payload := Respond(out, err)
	s.record(kind, inst, err)
	observability.RecordAction(s.cfg.Module, kind, inst.String(), time.Since(start))

	if len(payload) > frame.MaxPayloadLen {
		log.Warn().Msgf("repl.Server.loadAction payload truncated module=%q bytes=%d", s.cfg.Module, len(payload))
		payload = frame.TruncatePayload(payload)
	}
	log.Info().Msgf(
		"repl.Server.loadAction module=%q kind=%s response=%s bytes=%d duration=%s",
		s.cfg.Module,
		kind,
		inst,
		len(payload),
		time.Since(start),
	)
	return inst, payload
}

func (s *Server) evaluate(ctx context.Context, loaded bool, stdout io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = loader.Recovered(s.cfg.Module, r)
		}
	}()
	if loaded {
		return s.loader.Reload(ctx, s.cfg.Module, stdout)
	}
	return s.loader.Load(ctx, s.cfg.Module, stdout)
}

func (s *Server) record(kind string, inst frame.Instruction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.loaded = true
		if kind == actionImport {
			s.imports++
		} else {
			s.reloads++
		}
	case inst == frame.Exception:
		s.exits++
	default:
		s.failures++
	}
}

// Respond maps the captured output and evaluation result of one load to
// the response instruction and payload.
func Respond(output string, err error) (frame.Instruction, string) {
	switch {
	case err == nil:
		return frame.Print, ComposePayload(output, "")
	case loader.IsExitRequest(err):
		return frame.Exception, SystemExitPayload
	default:
		return frame.Initialize, ComposePayload(output, loader.FormatTrace(err))
	}
}

// ComposePayload joins captured output and an exception trace. One trailing
// newline is dropped from output; a newline separates the two parts only
// when both are non-empty.
func ComposePayload(output, trace string) string {
	output = strings.TrimSuffix(output, "\n")
	trace = strings.TrimRight(trace, " \t\r\n")
	if output != "" && trace != "" {
		return output + "\n" + trace
	}
	return output + trace
}
