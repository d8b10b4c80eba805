// Package main provides the interactive chat client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cory-johannsen/chat/internal/client"
	"github.com/cory-johannsen/chat/internal/config"
	"github.com/cory-johannsen/chat/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults and CHAT_* environment only when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// The shell owns stdout; diagnostics go to the logger at warn and above.
	logCfg := cfg.Logging
	logCfg.Level = "warn"
	logCfg.Format = "console"
	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shell := client.NewShell(cfg.Client, os.Stdin, os.Stdout, logger)
	if err := shell.Run(ctx); err != nil {
		log.Fatalf("client: %v", err)
	}
}
