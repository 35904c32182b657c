// resolve prints the child accounts of a vault, one per line.
// Usage: go run ./cmd/resolve --vault 0xdfc24b077bc1425ad1dea75bcb6f8158e10df303
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/vault-relay/internal/api"
	"github.com/rickgao/vault-relay/internal/config"
	"github.com/rickgao/vault-relay/internal/model"
)

func main() {
	vault := flag.String("vault", "", "vault address (default: $VAULT_ADDRESS or the built-in vault)")
	infoURL := flag.String("info-url", config.DefaultInfoURL, "info endpoint URL")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	config.LoadDotEnv()

	address := *vault
	if address == "" {
		address = os.Getenv(config.EnvVaultAddress)
	}
	if address == "" {
		address = config.DefaultVaultAddress
	}
	if _, err := model.ParseAccount(address); err != nil {
		logger.Error("invalid vault address", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := api.NewClient(*infoURL, api.WithLogger(logger))

	accounts, err := client.ResolveChildAccounts(ctx, address)
	if err != nil {
		logger.Error("resolution failed", "error", err)
		os.Exit(1)
	}

	for _, a := range accounts {
		fmt.Println(model.WireAccount(a))
	}
	logger.Info("resolved", "vault", address, "children", len(accounts))
}
