package client

import (
	"bytes"
	"context"
	"fmt"
)

// Session accumulates accepted source chunks and rebuilds the artifact from
// them on every submission. A chunk whose load answers Reinitialize is
// dropped so the next artifact starts from the last good state.
type Session struct {
	client   *Client
	artifact string
	chunks   [][]byte
}

func NewSession(c *Client, artifactPath string) *Session {
	return &Session{client: c, artifact: artifactPath}
}

// Submit evaluates the accepted chunks plus chunk.
func (s *Session) Submit(ctx context.Context, chunk []byte) (Result, error) {
	src := s.source(chunk)
	res, err := s.client.Eval(ctx, s.artifact, src)
	if err != nil {
		return Result{}, err
	}
	switch res.Kind {
	case Printed, Raised:
		s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	case Reinitialize:
	case Unknown:
		return res, fmt.Errorf("%w: UNKNOWN for LOAD", ErrUnexpectedResponse)
	}
	return res, nil
}

// Source returns the artifact contents built from accepted chunks.
func (s *Session) Source() []byte {
	return s.source(nil)
}

func (s *Session) Len() int {
	return len(s.chunks)
}

// Reset forgets every accepted chunk.
func (s *Session) Reset() {
	s.chunks = nil
}

func (s *Session) source(extra []byte) []byte {
	parts := s.chunks
	if extra != nil {
		parts = append(parts[:len(parts):len(parts)], extra)
	}
	return bytes.Join(parts, []byte("\n"))
}
