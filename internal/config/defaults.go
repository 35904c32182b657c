package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInfoURL            = "https://api.hyperliquid.xyz/info"
	DefaultWSURL              = "wss://api.hyperliquid.xyz/ws"
	DefaultVaultAddress       = "0xdfc24b077bc1425ad1dea75bcb6f8158e10df303"
	DefaultVenueTimeout       = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultPingInterval       = 50 * time.Second
	DefaultReadTimeout        = 2 * time.Minute
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultStreamBufferSize   = 1000
	DefaultRefreshInterval    = 30 * time.Second
	DefaultMode               = ModeBatched
	DefaultFlushInterval      = 1 * time.Second
	DefaultPaceInterval       = 5 * time.Second
	DefaultNotifyTimeout      = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultJournalBatchSize   = 500
	DefaultJournalFlush       = 5 * time.Second
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *RelayConfig) applyDefaults() {
	// Venue defaults
	if c.Venue.InfoURL == "" {
		c.Venue.InfoURL = DefaultInfoURL
	}
	if c.Venue.WSURL == "" {
		c.Venue.WSURL = DefaultWSURL
	}
	if c.Venue.VaultAddress == "" {
		c.Venue.VaultAddress = DefaultVaultAddress
	}
	if c.Venue.Timeout == 0 {
		c.Venue.Timeout = DefaultVenueTimeout
	}
	if c.Venue.MaxRetries == 0 {
		c.Venue.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	if c.Subscriptions.RefreshInterval == 0 {
		c.Subscriptions.RefreshInterval = DefaultRefreshInterval
	}

	// Notify defaults
	if c.Notify.Mode == "" {
		c.Notify.Mode = DefaultMode
	}
	if c.Notify.FailurePolicy == "" {
		// Batched delivery tolerates lost batches; immediate delivery does not.
		if c.Notify.Mode == ModeImmediate {
			c.Notify.FailurePolicy = PolicyExit
		} else {
			c.Notify.FailurePolicy = PolicyDrop
		}
	}
	if c.Notify.FlushInterval == 0 {
		c.Notify.FlushInterval = DefaultFlushInterval
	}
	if c.Notify.PaceInterval == 0 {
		c.Notify.PaceInterval = DefaultPaceInterval
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
