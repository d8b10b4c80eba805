// Package client implements the interactive line client for the chat server.
//
// The shell reads commands from its input, validates server commands locally,
// and prints every line received from the server prefixed with "< ".
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/gookit/color"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chat/internal/chat"
	"github.com/cory-johannsen/chat/internal/config"
)

// Local shell commands.
const (
	CommandConnect = "start-conection"
	CommandHelp    = "help"
)

// ErrNotConnected is returned when a server command is issued before start-conection.
var ErrNotConnected = errors.New("not connected. Use: start-conection <IP>")

// DialFunc opens a connection to the server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Shell.
type Option func(*Shell)

// WithDialer replaces the dialer used by start-conection.
func WithDialer(dial DialFunc) Option {
	return func(s *Shell) { s.dial = dial }
}

// WithColor forces colored output on or off.
func WithColor(enabled bool) Option {
	return func(s *Shell) { s.colored = enabled }
}

// Shell is an interactive chat client bound to one input and one output.
type Shell struct {
	cfg     config.ClientConfig
	in      io.Reader
	logger  *zap.Logger
	dial    DialFunc
	colored bool

	outMu sync.Mutex
	out   io.Writer

	connMu sync.Mutex
	conn   net.Conn
	reader sync.WaitGroup
}

// NewShell creates a Shell reading commands from in and writing to out.
//
// Precondition: in, out, and logger must be non-nil.
func NewShell(cfg config.ClientConfig, in io.Reader, out io.Writer, logger *zap.Logger, opts ...Option) *Shell {
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	s := &Shell{
		cfg:     cfg,
		in:      in,
		out:     out,
		logger:  logger,
		dial:    d.DialContext,
		colored: color.SupportColor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and executes commands until salir, end of input, or ctx is cancelled.
//
// Postcondition: Any open connection is closed and the reader goroutine has exited.
func (s *Shell) Run(ctx context.Context) error {
	defer s.disconnect()

	s.println(s.paint(color.FgGreen, "chat client"))
	s.printHelp()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		s.print("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			if s.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one input line.
//
// Postcondition: Returns true when the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	fields := strings.Fields(line)

	switch {
	case fields[0] == CommandConnect:
		if len(fields) < 2 {
			s.println(s.paint(color.FgYellow, "usage: start-conection <IP>"))
			return false
		}
		if err := s.connect(ctx, fields[1]); err != nil {
			s.println(s.paint(color.FgRed, "connection error: "+err.Error()))
		}
	case strings.EqualFold(line, chat.KeywordQuit):
		if conn := s.current(); conn != nil {
			_, _ = fmt.Fprintf(conn, "%s\n", chat.KeywordQuit)
		}
		s.disconnect()
		s.println("session ended.")
		return true
	case strings.EqualFold(line, CommandHelp):
		s.printHelp()
	default:
		if _, ok := chat.Lookup(fields[0]); !ok {
			line = chat.KeywordBroadcast + " " + line
		}
		if err := s.sendCommand(line); err != nil {
			s.println(s.paint(color.FgRed, "error: "+err.Error()))
		}
	}
	return false
}

// Connected reports whether the shell holds an open server connection.
func (s *Shell) Connected() bool {
	return s.current() != nil
}

func (s *Shell) connect(ctx context.Context, host string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.println("already connected.")
		return nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
	s.println("connecting to " + addr + "...")
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.logger.Debug("connected", zap.String("addr", addr))

	s.reader.Add(1)
	go s.readLoop(conn)
	return nil
}

// readLoop prints server lines until the connection ends.
func (s *Shell) readLoop(conn net.Conn) {
	defer s.reader.Done()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.println("< " + s.paint(color.FgCyan, scanner.Text()))
	}

	s.connMu.Lock()
	lost := s.conn == conn
	if lost {
		s.conn = nil
	}
	s.connMu.Unlock()
	if lost {
		_ = conn.Close()
		s.println(s.paint(color.FgRed, "connection lost."))
	}
}

// sendCommand validates a server command locally and writes it to the server.
// A usage error is printed, not returned, and nothing is sent.
func (s *Shell) sendCommand(line string) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}

	fields := strings.Fields(line)
	if def, ok := chat.Lookup(fields[0]); ok && len(fields) < def.Parts {
		s.println(s.paint(color.FgYellow, "usage: "+def.Usage))
		return nil
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		s.disconnect()
		return fmt.Errorf("sending: %w", err)
	}
	return nil
}

func (s *Shell) current() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// disconnect closes the connection, if any, and waits for the reader.
func (s *Shell) disconnect() {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.reader.Wait()
}

func (s *Shell) printHelp() {
	s.println("available commands:")
	s.println(fmt.Sprintf("  %-34s # connect to the server (port %d)", CommandConnect+" <IP>", s.cfg.Port))
	for _, def := range chat.BuiltinCommands() {
		if def.Kind == chat.KindQuit {
			continue
		}
		s.println(fmt.Sprintf("  %-34s # %s", def.Usage, def.Help))
	}
	s.println(fmt.Sprintf("  %-34s # shortcut for %s", "<any other text>", chat.KeywordBroadcast))
	s.println(fmt.Sprintf("  %-34s # show this help", CommandHelp))
	s.println(fmt.Sprintf("  %-34s # end the session", chat.KeywordQuit))
}

func (s *Shell) paint(c color.Color, text string) string {
	if !s.colored {
		return text
	}
	return c.Render(text)
}

func (s *Shell) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = io.WriteString(s.out, text)
}

func (s *Shell) println(text string) {
	s.print(text + "\n")
}
