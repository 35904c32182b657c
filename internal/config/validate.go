package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/vault-relay/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Notify.WebhookURL == "" {
		return errors.New("notify.webhook_url is required")
	}
	if err := validateURL("notify.webhook_url", c.Notify.WebhookURL, "http", "https"); err != nil {
		return err
	}

	if err := validateURL("venue.info_url", c.Venue.InfoURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("venue.ws_url", c.Venue.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if _, err := model.ParseAccount(c.Venue.VaultAddress); err != nil {
		return fmt.Errorf("venue.vault_address: %w", err)
	}
	if c.Venue.MaxRetries < 0 {
		return errors.New("venue.max_retries must be >= 0")
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if c.Stream.ReconnectBaseDelay <= 0 {
		return errors.New("stream.reconnect_base_delay must be > 0")
	}
	if c.Stream.ReconnectMaxDelay <= 0 {
		return errors.New("stream.reconnect_max_delay must be > 0")
	}
	if c.Stream.ReconnectMaxDelay < c.Stream.ReconnectBaseDelay {
		return fmt.Errorf("stream.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Stream.ReconnectMaxDelay, c.Stream.ReconnectBaseDelay)
	}
	if c.Stream.ReadTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.read_timeout (%s) must exceed ping_interval (%s)",
			c.Stream.ReadTimeout, c.Stream.PingInterval)
	}

	if c.Subscriptions.RefreshInterval <= 0 {
		return errors.New("subscriptions.refresh_interval must be > 0")
	}

	switch c.Notify.Mode {
	case ModeBatched, ModeImmediate:
	default:
		return fmt.Errorf("notify.mode must be %q or %q, got %q", ModeBatched, ModeImmediate, c.Notify.Mode)
	}
	switch c.Notify.FailurePolicy {
	case PolicyDrop, PolicyExit:
	default:
		return fmt.Errorf("notify.failure_policy must be %q or %q, got %q", PolicyDrop, PolicyExit, c.Notify.FailurePolicy)
	}
	if c.Notify.MinSize != "" {
		d, err := decimal.NewFromString(c.Notify.MinSize)
		if err != nil {
			return fmt.Errorf("notify.min_size: %w", err)
		}
		if d.IsNegative() {
			return errors.New("notify.min_size must be >= 0")
		}
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
