// streamtest subscribes to user events and prints decoded fills to the console.
// No webhook deliveries are made.
// Usage: go run ./cmd/streamtest --address 0xabc...,0xdef...
//
// Without --address the child accounts of venue.vault_address are resolved and watched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/vault-relay/internal/api"
	"github.com/rickgao/vault-relay/internal/config"
	"github.com/rickgao/vault-relay/internal/connection"
	"github.com/rickgao/vault-relay/internal/ingest"
	"github.com/rickgao/vault-relay/internal/model"
	"github.com/rickgao/vault-relay/internal/notify"
	"github.com/rickgao/vault-relay/internal/subscription"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	addresses := flag.String("address", "", "comma-separated accounts to watch (default: resolve vault children)")
	verbose := flag.Bool("verbose", false, "print full fill JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	config.LoadDotEnv()

	// Load config; the webhook is not needed here so Validate is skipped.
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	accounts, err := watchList(ctx, cfg, *addresses, logger)
	if err != nil {
		logger.Error("failed to determine accounts", "error", err)
		os.Exit(1)
	}
	logger.Info("watching accounts", "count", len(accounts))

	sourceCfg := connection.DefaultSourceConfig()
	sourceCfg.Client.URL = cfg.Venue.WSURL
	source := connection.NewSource(sourceCfg, nil, logger)

	if err := source.Start(ctx); err != nil {
		logger.Error("failed to start event source", "error", err)
		os.Exit(1)
	}

	manager := subscription.NewManager(subscription.Config{
		RefreshInterval: cfg.Subscriptions.RefreshInterval,
	}, source, nil, logger)
	manager.Initialize(ctx, accounts)
	go manager.Run(ctx)

	printer := ingest.HandlerFunc(func(_ context.Context, fills []model.FillEvent) error {
		for _, f := range fills {
			if *verbose {
				data, _ := json.MarshalIndent(f, "", "  ")
				fmt.Printf("[FILL] %s\n", data)
				continue
			}
			fmt.Printf("[FILL] %s  account=%s px=%s dir=%q tid=%d\n",
				notify.Format(f), model.WireAccount(f.Account), f.Price, f.Dir, f.TradeID)
		}
		return nil
	})

	ingestor := ingest.New(source.Messages(), nil, logger, printer)
	go ingestor.Run(ctx)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				streamStats := source.Stats()
				subStats := manager.Stats()
				ingestStats := ingestor.Stats()
				logger.Info("stats",
					"connected", streamStats.Connected,
					"reconnects", streamStats.Reconnects,
					"active", subStats.Active,
					"failed", subStats.Failed,
					"messages", ingestStats.MessagesReceived,
					"fills", ingestStats.FillsIngested,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	source.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

// watchList parses --address or falls back to resolving the vault.
func watchList(ctx context.Context, cfg *config.RelayConfig, addresses string, logger *slog.Logger) ([]model.Account, error) {
	if addresses == "" {
		client := api.NewClient(cfg.Venue.InfoURL, api.WithLogger(logger))
		return client.ResolveChildAccounts(ctx, cfg.Venue.VaultAddress)
	}

	var accounts []model.Account
	for _, s := range strings.Split(addresses, ",") {
		a, err := model.ParseAccount(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}
