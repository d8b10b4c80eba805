package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is a LineWriter that keeps every written line.
type recorder struct {
	mu    sync.Mutex
	lines []string
	fail  atomic.Bool
}

func (r *recorder) WriteLine(text string) error {
	if r.fail.Load() {
		return errors.New("broken pipe")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	return nil
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) Last() string {
	lines := r.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func (r *recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func newRecordedSession(name string) (*Session, *recorder) {
	rec := &recorder{}
	s := NewSession(rec, "127.0.0.1:5000")
	s.setName(name)
	return s, rec
}

// fakeConn is an in-memory Conn fed line by line through In.
type fakeConn struct {
	recorder
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func (c *fakeConn) Send(line string) {
	c.in <- line
}

func waitForLine(t *testing.T, r interface{ Contains(string) bool }, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Contains(substr) },
		2*time.Second, 5*time.Millisecond, "line containing %q never arrived", substr)
}
