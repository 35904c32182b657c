package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Venue         VenueConfig         `yaml:"venue"`
	Stream        StreamConfig        `yaml:"stream"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Notify        NotifyConfig        `yaml:"notify"`
	Journal       JournalConfig       `yaml:"journal"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// VenueConfig holds the venue endpoints and the parent account to resolve.
type VenueConfig struct {
	InfoURL      string        `yaml:"info_url"`
	WSURL        string        `yaml:"ws_url"`
	VaultAddress string        `yaml:"vault_address"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// StreamConfig holds WebSocket event source settings.
type StreamConfig struct {
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BufferSize         int           `yaml:"buffer_size"`
}

// SubscriptionsConfig holds subscription manager settings.
type SubscriptionsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Delivery modes.
const (
	ModeBatched   = "batched"
	ModeImmediate = "immediate"
)

// Delivery failure policies.
const (
	PolicyDrop = "drop"
	PolicyExit = "exit"
)

// NotifyConfig holds webhook delivery settings.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	Mode          string        `yaml:"mode"`           // "batched" or "immediate"
	FailurePolicy string        `yaml:"failure_policy"` // "drop" or "exit"; default depends on mode
	FlushInterval time.Duration `yaml:"flush_interval"` // batched only
	PaceInterval  time.Duration `yaml:"pace_interval"`  // immediate only
	MinSize       string        `yaml:"min_size"`       // decimal; empty or "0" disables
	Timeout       time.Duration `yaml:"timeout"`
}

// JournalConfig holds the optional fill journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
