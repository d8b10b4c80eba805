package tcp

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"time"
)

// Conn wraps a TCP connection with newline-delimited line reading and
// mutex-guarded line writing.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout   time.Duration
	writeTimeout  time.Duration
	maxLineLength int
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection; maxLineLength must be > 0.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxLineLength int) *Conn {
	return &Conn{
		raw:           raw,
		reader:        bufio.NewReaderSize(raw, 4096),
		readTimeout:   readTimeout,
		writeTimeout:  writeTimeout,
		maxLineLength: maxLineLength,
	}
}

// ReadLine reads a single line of input. The returned line does not include
// the trailing \n or \r\n. Control characters other than tab are dropped, and
// bytes past maxLineLength are discarded up to the next newline.
//
// Postcondition: Returns the next line of text input, or an error (including io.EOF).
// On io.EOF the partial final line, if any, is returned with the error.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var line bytes.Buffer
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line.String(), err
		}

		if b == '\n' {
			break
		}
		if b == '\r' {
			next, err := c.reader.Peek(1)
			if err == nil && len(next) > 0 && next[0] == '\n' {
				_, _ = c.reader.ReadByte()
			}
			break
		}

		if b < 32 && b != '\t' {
			continue
		}
		if line.Len() >= c.maxLineLength {
			continue
		}

		line.WriteByte(b)
	}

	return line.String(), nil
}

// WriteLine sends a line of text followed by \n to the client.
//
// Precondition: text should not contain newline characters.
// Postcondition: text + \n is written to the connection.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, '\n')
	_, err := c.raw.Write(buf)
	return err
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
