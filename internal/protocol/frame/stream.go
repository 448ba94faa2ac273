package frame

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Stream delimits messages on a byte stream that may deliver partial reads.
// It is not safe for concurrent use.
type Stream struct {
	rw    io.ReadWriter
	buf   []byte
	chunk []byte
}

func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{
		rw:    rw,
		buf:   make([]byte, 0, ReadChunkSize),
		chunk: make([]byte, ReadChunkSize),
	}
}

// Receive blocks until one complete message is buffered and returns it.
// The accumulation buffer is reset on every call; bytes past the first
// message are dropped.
func (s *Stream) Receive() (Message, error) {
	s.buf = s.buf[:0]
	if err := s.fill(HeaderLen); err != nil {
		return Message{}, err
	}
	if err := s.fill(HeaderLen + PayloadLen(s.buf)); err != nil {
		return Message{}, err
	}
	return Decode(s.buf)
}

// Send writes inst and payload as one buffer.
func (s *Stream) Send(inst Instruction, payload string) error {
	raw, err := Encode(inst, payload)
	if err != nil {
		return err
	}
	_, err = s.rw.Write(raw)
	return err
}

func (s *Stream) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Stream) fill(want int) error {
	for len(s.buf) < want {
		n, err := s.rw.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		if len(s.buf) >= want {
			return nil
		}
		if err != nil {
			if isClosed(err) {
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: empty read", ErrConnectionClosed)
		}
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
