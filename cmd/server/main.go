// Package main is the entry point for the feed-core API server.
//
// MAIN PACKAGE IN GO:
// main() should stay minimal. Its job is to:
// 1. Read configuration (internal/config: env vars + optional .env file)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...).
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/feed-core/internal/config"
	"github.com/sakif/feed-core/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// A missing or weak secret stops the process here, before any socket
	// is opened.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// LOG_LEVEL picks the floor; the default is Info.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
