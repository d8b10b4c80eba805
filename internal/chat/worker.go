package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chat/internal/config"
	"github.com/cory-johannsen/chat/internal/observability"
)

// Conn is a line-oriented transport driven by a connection worker.
type Conn interface {
	LineWriter
	// ReadLine returns the next line without its terminator.
	ReadLine() (string, error)
	Close() error
	RemoteAddr() net.Addr
}

// Handler runs the connection worker for each accepted connection.
// One Handler is shared by all connections of a server.
type Handler struct {
	registry  *Registry
	processor *Processor
	cfg       config.ChatConfig
	logger    *zap.Logger
	counter   atomic.Uint64
}

// NewHandler creates a Handler that registers sessions in registry.
//
// Precondition: registry and logger must be non-nil; cfg must be valid.
func NewHandler(registry *Registry, cfg config.ChatConfig, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		processor: NewProcessor(registry, cfg.SystemLabel, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Registry returns the registry sessions are registered in.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// HandleSession runs the full lifecycle of one connection: placeholder
// registration, welcome and join notices, the read loop, and cleanup.
// Cancelling ctx closes conn, which ends the read loop.
//
// Postcondition: conn is closed and the session is no longer registered.
// Returns nil on quit, end of stream, or cancellation, and the read error otherwise.
func (h *Handler) HandleSession(ctx context.Context, conn Conn) error {
	start := time.Now()
	sess := NewSession(conn, conn.RemoteAddr().String())
	name := h.claimPlaceholder(sess)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer h.cleanup(sess, conn, start)

	h.logger.Info("client connected",
		append(observability.SessionFields(sess.ID(), name, sess.RemoteAddr()),
			zap.Int("active_sessions", h.registry.Len()),
		)...,
	)

	_ = sess.Send(h.processor.System("welcome. Your temporary name is '%s'.", name))
	h.registry.BroadcastExcept(h.processor.System("%s joined the chat", name), sess)

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				h.processor.Handle(sess, line)
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading from %s: %w", sess.RemoteAddr(), err)
		}
		if h.processor.Handle(sess, line) {
			return nil
		}
	}
}

// claimPlaceholder registers sess under the next free placeholder name.
func (h *Handler) claimPlaceholder(sess *Session) string {
	for {
		name := fmt.Sprintf("%s%d", h.cfg.PlaceholderPrefix, h.counter.Add(1))
		if h.registry.Register(name, sess) {
			sess.setName(name)
			return name
		}
	}
}

func (h *Handler) cleanup(sess *Session, conn Conn, start time.Time) {
	name := sess.Name()
	h.registry.Unregister(name, sess)
	sess.Close()
	n := h.registry.BroadcastExcept(h.processor.System("%s left the chat", name), sess)
	_ = conn.Close()

	h.logger.Info("client disconnected",
		append(observability.SessionFields(sess.ID(), name, sess.RemoteAddr()),
			zap.Int("notified", n),
			zap.Int("active_sessions", h.registry.Len()),
			zap.Duration("duration", time.Since(start)),
		)...,
	)
}
