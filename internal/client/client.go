// Package client is the compiler-driver side of a REPL session: it spawns or
// attaches to a replctl process, writes artifacts and drives LOAD/EXIT.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/replctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired    = errors.New("client: address required")
	ErrClosed             = errors.New("client: session closed")
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

// ResultKind classifies the server response to one LOAD.
type ResultKind string

const (
	Printed      ResultKind = "printed"
	Raised       ResultKind = "raised"
	Reinitialize ResultKind = "reinitialize"
	Unknown      ResultKind = "unknown"
)

// Result is one LOAD outcome. Text is the response payload.
type Result struct {
	Kind ResultKind
	Text string
}

// Config defines dial and retry behavior.
type Config struct {
	ConnectTimeout time.Duration
	MaxAttempts    int
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 2 * time.Second,
		MaxAttempts:    10,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Client holds the one connection to a replctl session.
type Client struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	stream *frame.Stream
	closed bool
}

// Dial connects to addr, retrying with exponential backoff until
// cfg.MaxAttempts dials have failed or ctx ends.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.Debug().Msgf("client.Dial connected addr=%q attempt=%d", addr, attempt)
			return &Client{addr: addr, conn: conn, stream: frame.NewStream(conn)}, nil
		}
		log.Debug().Msgf("client.Dial attempt=%d addr=%q err=%v", attempt, addr, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= cfg.MaxAttempts {
			return nil, fmt.Errorf("client: dial %s after %d attempts: %w", addr, attempt, err)
		}
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func sleepBackoff(ctx context.Context, cfg BackoffConfig, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(NextBackoffDelay(cfg, attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) Addr() string {
	return c.addr
}

// Load asks the server to import or reload its module and waits for the
// single response.
func (c *Client) Load(ctx context.Context) (Result, error) {
	msg, err := c.roundTrip(ctx, frame.Load)
	if err != nil {
		return Result{}, err
	}
	switch msg.Inst {
	case frame.Print:
		return Result{Kind: Printed, Text: msg.Payload}, nil
	case frame.Exception:
		return Result{Kind: Raised, Text: msg.Payload}, nil
	case frame.Initialize:
		return Result{Kind: Reinitialize, Text: msg.Payload}, nil
	case frame.Unknown:
		return Result{Kind: Unknown, Text: msg.Payload}, nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnexpectedResponse, msg.Inst)
	}
}

// Eval writes src to artifactPath and loads it.
func (c *Client) Eval(ctx context.Context, artifactPath string, src []byte) (Result, error) {
	if err := WriteArtifact(artifactPath, src); err != nil {
		return Result{}, err
	}
	return c.Load(ctx)
}

// Exit requests termination, waits for the EXIT acknowledgement and closes
// the connection.
func (c *Client) Exit(ctx context.Context) error {
	msg, err := c.roundTrip(ctx, frame.Exit)
	_ = c.Close()
	if err != nil {
		return err
	}
	if msg.Inst != frame.Exit {
		return fmt.Errorf("%w: %s", ErrUnexpectedResponse, msg.Inst)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, inst frame.Instruction) (frame.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return frame.Message{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return frame.Message{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}()

	if err := c.stream.Send(inst, ""); err != nil {
		return frame.Message{}, c.ctxErr(ctx, err)
	}
	msg, err := c.stream.Receive()
	if err != nil {
		return frame.Message{}, c.ctxErr(ctx, err)
	}
	log.Debug().Msgf("client.Client.roundTrip sent=%s received=%s bytes=%d", inst, msg.Inst, len(msg.Payload))
	return msg, nil
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The conn deadline can fire just before ctx observes its own.
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return err
}

// WriteArtifact replaces path with src through a rename so the server never
// observes a partially written file.
func WriteArtifact(path string, src []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("client: artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("client: artifact temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("client: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("client: write artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("client: chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("client: install artifact: %w", err)
	}
	return nil
}
