// Package websocket provides a websocket frontend that speaks the same
// newline-delimited chat protocol as the TCP frontend, one text frame per
// outbound line.
package websocket

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a websocket connection to line reads and writes.
// Inbound text frames are split on \n, so a frame may carry several lines.
type Conn struct {
	ws      *websocket.Conn
	pending []string
	mu      sync.Mutex

	writeTimeout  time.Duration
	maxLineLength int
}

// NewConn wraps an upgraded websocket connection.
//
// Precondition: ws must be open; maxLineLength must be > 0.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration, maxLineLength int) *Conn {
	return &Conn{
		ws:            ws,
		writeTimeout:  writeTimeout,
		maxLineLength: maxLineLength,
	}
}

// ReadLine returns the next line received from the peer.
// A normal close by the peer is reported as io.EOF.
//
// Postcondition: The returned line contains no \r or \n and at most maxLineLength bytes.
func (c *Conn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return "", io.EOF
			}
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		text := strings.TrimSuffix(string(data), "\n")
		c.pending = strings.Split(text, "\n")
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	line = strings.TrimSuffix(line, "\r")
	if len(line) > c.maxLineLength {
		line = line[:c.maxLineLength]
	}
	return line, nil
}

// WriteLine sends text as a single text frame.
//
// Precondition: text should not contain newline characters.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame, best effort, and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()

	err := c.ws.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}
