// Package main provides the chat server. It accepts newline-protocol clients
// over TCP and, when enabled, over websocket, all sharing one session registry.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chat/internal/chat"
	"github.com/cory-johannsen/chat/internal/config"
	"github.com/cory-johannsen/chat/internal/frontend/tcp"
	"github.com/cory-johannsen/chat/internal/frontend/websocket"
	"github.com/cory-johannsen/chat/internal/observability"
	"github.com/cory-johannsen/chat/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (defaults and CHAT_* environment only when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chat server",
		zap.String("name", cfg.Server.Name),
		zap.String("tcp_addr", cfg.TCP.Addr()),
		zap.Bool("websocket_enabled", cfg.WebSocket.Enabled),
	)

	registry := chat.NewRegistry(logger)
	handler := chat.NewHandler(registry, cfg.Chat, logger)

	lifecycle := server.NewLifecycle(logger)

	tcpAcceptor := tcp.NewAcceptor(cfg.TCP, cfg.Chat.MaxLineLength,
		tcp.SessionHandlerFunc(func(ctx context.Context, conn *tcp.Conn) error {
			return handler.HandleSession(ctx, conn)
		}), logger)
	lifecycle.Add("tcp", &server.FuncService{
		StartFn: tcpAcceptor.ListenAndServe,
		StopFn:  tcpAcceptor.Stop,
	})

	if cfg.WebSocket.Enabled {
		wsAcceptor := websocket.NewAcceptor(cfg.WebSocket, cfg.TCP.WriteTimeout, cfg.Chat.MaxLineLength,
			websocket.SessionHandlerFunc(func(ctx context.Context, conn *websocket.Conn) error {
				return handler.HandleSession(ctx, conn)
			}), logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: wsAcceptor.ListenAndServe,
			StopFn:  wsAcceptor.Stop,
		})
	}

	logger.Info("chat server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("chat server stopped", zap.Int("sessions_remaining", registry.Len()))
}
