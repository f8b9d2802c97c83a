// Relay server: accepts invocation requests, streams model turns back
// to clients over SSE, and buffers events for reconnect replay.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/relay/pkg/api"
	"github.com/codeready-toolchain/relay/pkg/config"
	"github.com/codeready-toolchain/relay/pkg/database"
	"github.com/codeready-toolchain/relay/pkg/events"
	"github.com/codeready-toolchain/relay/pkg/session"
	"github.com/codeready-toolchain/relay/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("RELAY_CONFIG", "relay.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env before config so env overrides and secret lookups see it
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("Starting relay",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Event buffer and router
	buffer := events.NewBuffer(events.BufferConfig{
		MaxSize:         cfg.Buffer.MaxSize,
		TTL:             cfg.BufferTTL(),
		CleanupInterval: cfg.BufferCleanupInterval(),
	}, logger)
	router := events.NewRouter(cfg.Session.SubscriberQueueCap, logger)

	// 3. Optional event persistence
	var sink session.EventSink
	var dbClient *database.Client
	retentionCtx, retentionCancel := context.WithCancel(ctx)
	defer retentionCancel()
	if cfg.Database.DSN != "" {
		dbClient, err = database.NewClient(ctx, database.DefaultConfig(cfg.Database.DSN))
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()

		store := database.NewEventStore(dbClient, logger)
		sink = store
		go store.RunRetention(retentionCtx, time.Hour, cfg.DatabaseRetention())
		slog.Info("Event persistence enabled", "retention", cfg.DatabaseRetention())
	}

	// 4. Upstream turn source
	if cfg.Upstream.URL == "" {
		slog.Error("No upstream configured (set upstream.url or UPSTREAM_URL)")
		os.Exit(1)
	}
	source := session.NewHTTPSource(cfg.Upstream.URL, cfg.Upstream.Model,
		os.Getenv(cfg.Upstream.APIKeyEnv))

	// 5. Session coordinator
	coordinator := session.NewCoordinator(session.Config{
		IdleTTL:       cfg.SessionIdleTTL(),
		SweepInterval: time.Minute,
	}, buffer, router, source, sink, logger)

	// 6. HTTP server
	server := api.NewServer(coordinator, nil, cfg.HeartbeatInterval(), logger)
	server.SetAllowInternal(!cfg.FilterInternalByDefault())

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("Relay started", "upstream", cfg.Upstream.URL, "model", cfg.Upstream.Model)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown. Order matters: the coordinator refuses new
	// turns and cancels running ones, whose terminal events end the SSE
	// handlers; the router then closes any subscription still attached.
	// Only after that can the HTTP drain complete without waiting out the
	// full timeout on live streams.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		slog.Error("Coordinator shutdown error", "error", err)
	}
	router.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	retentionCancel()
	buffer.Shutdown()

	slog.Info("Relay stopped")
}
