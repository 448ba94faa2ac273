package repl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/replctl/internal/loader"
	"github.com/danmuck/replctl/internal/observability"
	"github.com/danmuck/replctl/internal/protocol/frame"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const LoopbackHost = "127.0.0.1"

var (
	ErrModuleRequired = errors.New("repl: module name is required")
	ErrInvalidPort    = errors.New("repl: port out of range")
	ErrLoaderRequired = errors.New("repl: loader is required")
	ErrAlreadyServed  = errors.New("repl: session already served")
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseAwaitingConnection Phase = "awaiting_connection"
	PhaseReady              Phase = "ready"
	PhaseTerminated         Phase = "terminated"
)

// Config fixes the port and module for the lifetime of one server process.
type Config struct {
	Port   int
	Module string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Module) == "" {
		return ErrModuleRequired
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// Status is a point-in-time view of the session for the admin surface.
type Status struct {
	SessionID string    `json:"session_id,omitempty"`
	Module    string    `json:"module"`
	Addr      string    `json:"addr,omitempty"`
	Remote    string    `json:"remote,omitempty"`
	Phase     Phase     `json:"phase"`
	Loaded    bool      `json:"loaded"`
	Imports   uint64    `json:"imports"`
	Reloads   uint64    `json:"reloads"`
	Failures  uint64    `json:"failures"`
	Exits     uint64    `json:"exits"`
	StartedAt time.Time `json:"started_at"`
}

// Server is the single-connection REPL session controller.
type Server struct {
	cfg    Config
	loader loader.Loader

	mu        sync.Mutex
	phase     Phase
	loaded    bool
	sessionID string
	remote    string
	served    bool
	imports   uint64
	reloads   uint64
	failures  uint64
	exits     uint64
	startedAt time.Time

	listener  net.Listener
	conn      net.Conn
	closeOnce sync.Once
}

func NewServer(cfg Config, l loader.Loader) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLoaderRequired
	}
	cfg.Module = strings.TrimSpace(cfg.Module)
	return &Server{
		cfg:       cfg,
		loader:    l,
		phase:     PhaseAwaitingConnection,
		startedAt: time.Now(),
	}, nil
}

// Listen binds the loopback port. Serve calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(LoopbackHost, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("repl: listen: %w", err)
	}
	s.listener = ln
	log.Info().Msgf("repl.Server.Listen addr=%q module=%q", ln.Addr().String(), s.cfg.Module)
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(s.cfg.Port))
}

// Serve accepts exactly one connection and processes its messages until
// EXIT, peer close, or ctx cancellation. Both the connection and the
// listener are closed on return.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	s.mu.Unlock()

	if err := s.Listen(); err != nil {
		s.terminate()
		return err
	}
	defer s.terminate()
	stop := context.AfterFunc(ctx, s.terminate)
	defer stop()

	conn, err := s.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("repl: accept: %w", err)
	}
	if !s.ready(conn) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return net.ErrClosed
	}

	stream := frame.NewStream(conn)
	for {
		msg, err := stream.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, frame.ErrConnectionClosed) {
				log.Info().Msgf("repl.Server.Serve peer closed session=%s", s.SessionID())
				return nil
			}
			return fmt.Errorf("repl: receive: %w", err)
		}
		observability.RecordMessage("in", msg.Inst.String())

		done, err := s.dispatch(ctx, stream, msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, frame.ErrConnectionClosed) || isPeerGone(err) {
				log.Warn().Msgf("repl.Server.Serve send failed, peer gone session=%s err=%v", s.SessionID(), err)
				return nil
			}
			return fmt.Errorf("repl: send: %w", err)
		}
		if done {
			log.Info().Msgf("repl.Server.Serve exit acknowledged session=%s", s.SessionID())
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, stream *frame.Stream, msg frame.Message) (bool, error) {
	switch msg.Inst {
	case frame.Exit:
		return true, s.send(stream, frame.Exit, "")
	case frame.Load:
		inst, payload := s.loadAction(ctx)
		return false, s.send(stream, inst, payload)
	default:
		log.Warn().Msgf("repl.Server.dispatch unknown instruction=%s session=%s", msg.Inst, s.SessionID())
		return false, s.send(stream, frame.Unknown, "")
	}
}

func (s *Server) send(stream *frame.Stream, inst frame.Instruction, payload string) error {
	if err := stream.Send(inst, payload); err != nil {
		return err
	}
	observability.RecordMessage("out", inst.String())
	return nil
}

// ready moves the session to PhaseReady and stops listening. It reports
// false and closes conn when the session was terminated while accepting.
func (s *Server) ready(conn net.Conn) bool {
	id, err := uuid.NewV4()
	sessionID := id.String()
	if err != nil {
		sessionID = fmt.Sprintf("session.%d", time.Now().UnixNano())
	}

	s.mu.Lock()
	if s.phase == PhaseTerminated {
		s.mu.Unlock()
		_ = conn.Close()
		return false
	}
	s.conn = conn
	s.phase = PhaseReady
	s.sessionID = sessionID
	s.remote = conn.RemoteAddr().String()
	remote := s.remote
	// One driver per process: later dials are refused instead of queued.
	_ = s.listener.Close()
	s.mu.Unlock()
	log.Info().Msgf("repl.Server.Serve accepted remote=%q session=%s", remote, sessionID)
	return true
}

// terminate closes the connection and the listener once.
func (s *Server) terminate() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.phase = PhaseTerminated
		if s.conn != nil {
			_ = s.conn.Close()
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// Close terminates the session from outside Serve.
func (s *Server) Close() error {
	s.terminate()
	return nil
}

func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		SessionID: s.sessionID,
		Module:    s.cfg.Module,
		Remote:    s.remote,
		Phase:     s.phase,
		Loaded:    s.loaded,
		Imports:   s.imports,
		Reloads:   s.reloads,
		Failures:  s.failures,
		Exits:     s.exits,
		StartedAt: s.startedAt,
	}
	if s.listener != nil {
		st.Addr = s.listener.Addr().String()
	}
	return st
}

func isPeerGone(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) || errors.Is(err, net.ErrClosed)
}
