// Package capture redirects process standard output into an in-memory sink
// for the duration of one evaluation.
//
// A Sink is a guard: Begin points file descriptor 1 at a pipe, Close points
// it back. The os.Stdout variable itself is never reassigned, so loggers and
// other goroutines may keep reading it. Only one sink can be installed at a
// time; Begin blocks until the current one is closed.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var installMu sync.Mutex

// Sink collects everything written to file descriptor 1, or to the sink
// itself, while it is installed.
type Sink struct {
	saved int
	r     *os.File
	w     *os.File
	done  chan struct{}

	mu     sync.Mutex
	buf    bytes.Buffer
	once   sync.Once
	closed bool
}

// Begin redirects standard output into a pipe drained into a fresh buffer.
func Begin() (*Sink, error) {
	installMu.Lock()
	r, w, err := os.Pipe()
	if err != nil {
		installMu.Unlock()
		return nil, fmt.Errorf("capture: open pipe: %w", err)
	}
	saved, err := unix.Dup(unix.Stdout)
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		installMu.Unlock()
		return nil, fmt.Errorf("capture: save stdout: %w", err)
	}
	if err := unix.Dup2(int(w.Fd()), unix.Stdout); err != nil {
		_ = unix.Close(saved)
		_ = r.Close()
		_ = w.Close()
		installMu.Unlock()
		return nil, fmt.Errorf("capture: redirect stdout: %w", err)
	}
	s := &Sink{
		saved: saved,
		r:     r,
		w:     w,
		done:  make(chan struct{}),
	}
	go s.drain()
	return s, nil
}

// Write appends p through the same pipe as standard output so both sources
// keep their relative order.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	return s.w.Write(p)
}

// Close restores the previous standard output and waits for buffered
// output to drain. It is safe to call more than once.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// fd 1 must stop referring to the pipe before the drain can see EOF.
		err = unix.Dup2(s.saved, unix.Stdout)
		if cerr := unix.Close(s.saved); err == nil {
			err = cerr
		}
		if werr := s.w.Close(); err == nil {
			err = werr
		}
		<-s.done
		if rerr := s.r.Close(); err == nil {
			err = rerr
		}
		installMu.Unlock()
	})
	return err
}

// Output closes the sink and returns everything it captured.
func (s *Sink) Output() string {
	_ = s.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *Sink) drain() {
	defer close(s.done)
	_, _ = io.Copy(bufferWriter{s}, s.r)
}

type bufferWriter struct{ s *Sink }

func (b bufferWriter) Write(p []byte) (int, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.s.buf.Write(p)
}
