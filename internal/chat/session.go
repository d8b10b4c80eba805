// Package chat implements the session registry and message routing core of
// the chat server: sessions, the name-keyed registry, the line command
// processor, and the per-connection worker that ties them together.
package chat

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// LineWriter is the outbound half of a connection. WriteLine appends the
// transport's line terminator and flushes.
type LineWriter interface {
	WriteLine(text string) error
}

// Session is the runtime state of one connected participant.
// It is owned by exactly one worker; the Registry only references it.
type Session struct {
	id         uuid.UUID
	remoteAddr string
	name       atomic.Pointer[string]

	mu     sync.Mutex
	out    LineWriter
	closed bool
}

// NewSession creates a session writing to out.
//
// Precondition: out must be non-nil.
// Postcondition: Returns an open session with an empty name and a fresh ID.
func NewSession(out LineWriter, remoteAddr string) *Session {
	s := &Session{
		id:         uuid.New(),
		remoteAddr: remoteAddr,
		out:        out,
	}
	empty := ""
	s.name.Store(&empty)
	return s
}

// ID returns the session's connection identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// RemoteAddr returns the peer address the session was created for.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Name returns the current display name.
func (s *Session) Name() string {
	return *s.name.Load()
}

func (s *Session) setName(name string) {
	s.name.Store(&name)
}

// Send writes one line to the peer. Concurrent calls are serialized so the
// bytes of two lines never interleave. Embedded CR/LF are replaced with spaces
// because newlines delimit messages on the wire.
//
// Postcondition: Returns ErrSessionClosed after Close, or the transport error.
func (s *Session) Send(line string) error {
	line = sanitizeLine(line)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sending to %s: %w", s.id, ErrSessionClosed)
	}
	return s.out.WriteLine(line)
}

// Close marks the session closed. Further Send calls fail without touching the transport.
//
// Postcondition: Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func sanitizeLine(line string) string {
	if !strings.ContainsAny(line, "\r\n") {
		return line
	}
	return lineBreaks.Replace(line)
}
