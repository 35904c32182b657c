// relay watches the child accounts of a vault and posts their fills to a chat webhook.
// Usage: go run ./cmd/relay --config configs/relay.example.yaml
//
// Environment variables:
//
//	DISCORD_WEBHOOK_URL - Webhook destination (overrides notify.webhook_url)
//	VAULT_ADDRESS       - Parent vault to resolve (overrides venue.vault_address)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/vault-relay/internal/api"
	"github.com/rickgao/vault-relay/internal/config"
	"github.com/rickgao/vault-relay/internal/connection"
	"github.com/rickgao/vault-relay/internal/database"
	"github.com/rickgao/vault-relay/internal/ingest"
	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/notify"
	"github.com/rickgao/vault-relay/internal/subscription"
	"github.com/rickgao/vault-relay/internal/version"
	"github.com/rickgao/vault-relay/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	envPath := flag.String("env", ".env", "path to .env file (optional)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(*envPath); err != nil {
		bootLogger.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		bootLogger.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"vault", cfg.Venue.VaultAddress,
		"mode", cfg.Notify.Mode,
		"failure_policy", cfg.Notify.FailurePolicy,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}

// run wires the components and blocks until ctx is done or a fatal error
// occurs. Startup failures are returned before any loop starts.
func run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	m := metrics.New()

	// Resolve the watched accounts
	apiClient := api.NewClient(cfg.Venue.InfoURL,
		api.WithTimeout(cfg.Venue.Timeout),
		api.WithRetries(cfg.Venue.MaxRetries, time.Second),
		api.WithLogger(logger),
	)

	accounts, err := apiClient.ResolveChildAccounts(ctx, cfg.Venue.VaultAddress)
	if err != nil {
		return err
	}
	logger.Info("resolved child accounts", "count", len(accounts))

	// Open the event stream
	source := connection.NewSource(connection.SourceConfig{
		Client: connection.ClientConfig{
			URL:          cfg.Venue.WSURL,
			PingInterval: cfg.Stream.PingInterval,
			ReadTimeout:  cfg.Stream.ReadTimeout,
			WriteTimeout: cfg.Stream.WriteTimeout,
			BufferSize:   cfg.Stream.BufferSize,
		},
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
		MessageBufferSize: cfg.Stream.BufferSize,
	}, m, logger)

	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start event source: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		source.Stop(stopCtx)
	}()

	// Subscribe every account once
	manager := subscription.NewManager(subscription.Config{
		RefreshInterval: cfg.Subscriptions.RefreshInterval,
	}, source, m, logger)

	if slots := manager.Initialize(ctx, accounts); len(slots) == 0 {
		return errors.New("initial subscription setup failed for every account")
	}

	// Delivery pipeline
	dispatcher, err := newDispatcher(cfg.Notify, m, logger)
	if err != nil {
		return err
	}

	handlers := []ingest.Handler{}

	var journal *writer.FillWriter
	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		journal = writer.NewFillWriter(writer.WriterConfig{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, m, logger)

		if err := journal.EnsureSchema(ctx); err != nil {
			return err
		}
		// Journal first so a fatal delivery still leaves a record.
		handlers = append(handlers, journal)
	}
	handlers = append(handlers, dispatcher)

	ingestor := ingest.New(source.Messages(), m, logger, handlers...)

	// Health and metrics server
	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(healthSources{
			stream:        source.Stats,
			subscriptions: manager.Stats,
			ingest:        ingestor.Stats,
			dispatcher:    dispatcher.Stats,
		}, m, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return ingestor.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	if journal != nil {
		g.Go(func() error { return journal.Run(gctx) })
	}

	logger.Info("relay running",
		"accounts", len(accounts),
		"active", manager.Stats().Active,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}

// newDispatcher builds the webhook sink and dispatcher from config.
func newDispatcher(cfg config.NotifyConfig, m *metrics.Metrics, logger *slog.Logger) (*notify.Dispatcher, error) {
	minSize := decimal.Zero
	if cfg.MinSize != "" {
		d, err := decimal.NewFromString(cfg.MinSize)
		if err != nil {
			return nil, fmt.Errorf("parse notify.min_size: %w", err)
		}
		minSize = d
	}

	sink := notify.NewSink(cfg.WebhookURL,
		notify.WithSinkTimeout(cfg.Timeout),
		notify.WithSinkLogger(logger),
	)

	dcfg := notify.DefaultConfig()
	dcfg.Mode = notify.Mode(cfg.Mode)
	dcfg.FailurePolicy = notify.FailurePolicy(cfg.FailurePolicy)
	dcfg.FlushInterval = cfg.FlushInterval
	dcfg.PaceInterval = cfg.PaceInterval
	dcfg.MinSize = minSize

	return notify.NewDispatcher(dcfg, sink, m, logger), nil
}

// newLogger builds the root logger from config.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
