// Command server runs the bruecke chat-completions bridge.
//
// Configuration is layered: built-in defaults, a YAML config file (the
// -config flag, BRUECKE_CONFIG, ./config.yaml, or /etc/bruecke/config.yaml),
// and BRUECKE_* environment variable overrides. See pkg/config for the full
// list of settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/config"
	"github.com/bruecke-ai/bruecke/pkg/marker"
	"github.com/bruecke-ai/bruecke/pkg/marker/memstore"
	"github.com/bruecke-ai/bruecke/pkg/marker/postgres"
	"github.com/bruecke-ai/bruecke/pkg/tools"
	"github.com/bruecke-ai/bruecke/pkg/tools/mcp"
	"github.com/bruecke-ai/bruecke/pkg/transport"
	"github.com/bruecke-ai/bruecke/pkg/upstream"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Marker store.
	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating marker store: %w", err)
	}
	defer store.Close()

	// Upstream client.
	client := upstream.NewClient(upstream.Config{
		BaseURL:             cfg.Upstream.BaseURL,
		APIKey:              cfg.Upstream.APIKey,
		Timeout:             cfg.Upstream.Timeout,
		MaxIdleConns:        cfg.Upstream.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnsPerHost,
	})
	defer client.Close()

	// Tool registry, populated from configured MCP servers.
	registry := tools.NewRegistry()
	closers, err := connectMCPServers(cfg.MCP.Servers, registry, logger)
	defer closers()
	if err != nil {
		return err
	}

	handler := transport.NewHandler(cfg, client, store, registry, logger)
	srv := transport.NewServer(handler.Handler(), cfg.Server, logger)

	logger.Info("bridge configured",
		"upstream", cfg.Upstream.BaseURL,
		"storage", cfg.Storage.Type,
		"tools", registry.Len(),
		"max_loops", cfg.Run.MaxLoops)
	return srv.ListenAndServe()
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newStore creates the configured marker store.
func newStore(cfg *config.Config, logger *slog.Logger) (marker.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Storage.Postgres.DSN,
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			MaxConnLifetime: cfg.Storage.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memstore.New(cfg.Storage.MaxSize), nil
	}
}

// connectMCPServers connects each configured MCP server and registers its
// tools. The returned function closes every session that was established.
func connectMCPServers(servers []mcp.ServerConfig, reg *tools.Registry, logger *slog.Logger) (func(), error) {
	var clients []*mcp.Client
	closeAll := func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				logger.Warn("closing MCP session", "error", err)
			}
		}
	}

	for _, sc := range servers {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client := mcp.NewClient(sc)
		if err := client.Connect(ctx); err != nil {
			cancel()
			return closeAll, fmt.Errorf("connecting MCP server %q: %w", sc.Name, err)
		}
		clients = append(clients, client)

		n, err := client.RegisterAll(ctx, reg)
		cancel()
		if err != nil {
			return closeAll, fmt.Errorf("registering tools from %q: %w", sc.Name, err)
		}
		logger.Info("MCP server connected", "server", sc.Name, "tools", n)
	}
	return closeAll, nil
}
