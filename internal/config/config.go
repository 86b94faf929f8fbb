package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/halcyonchat/gateway/internal/store"
)

// Config is the full gateway configuration.
type Config struct {
	// Token authenticates Identify and REST calls. May also be set
	// via the GATEWAY_TOKEN environment variable.
	Token string `yaml:"token"`

	// Intents is the event-subscription bitmask sent with Identify.
	Intents int `yaml:"intents"`

	Gateway GatewayConfig `yaml:"gateway"`
	Shards  ShardsConfig  `yaml:"shards"`
	Rest    RestConfig    `yaml:"rest"`
	Store   store.Config  `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`

	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// GatewayConfig tunes the connection core. The fixed protocol values
// (backoff schedule, zombie threshold, batch delay) are configuration
// with the historical constants as defaults.
type GatewayConfig struct {
	// Version is the protocol version in the `v` query parameter.
	Version int `yaml:"version"`

	// Encoding selects the payload codec: "json" or "cbor".
	Encoding string `yaml:"encoding"`

	// Compression selects the transport compression: "" (none),
	// "zlib-stream" or "zstd-stream".
	Compression string `yaml:"compression"`

	// AutoReconnect enables the reconnect/resume policy after a
	// socket close. Defaults to true.
	AutoReconnect *bool `yaml:"auto_reconnect"`

	// BackoffSchedule is the reconnect delay per attempt, clamping to
	// the last entry.
	BackoffSchedule []time.Duration `yaml:"backoff_schedule"`

	// MaxMissedHeartbeats is the zombied-connection threshold.
	MaxMissedHeartbeats int `yaml:"max_missed_heartbeats"`

	// HeartbeatInitialDelay fixes the delay before the first beat;
	// zero selects a jittered delay.
	HeartbeatInitialDelay time.Duration `yaml:"heartbeat_initial_delay"`

	// LatencyCeiling is the unhealthy-latency bound.
	LatencyCeiling time.Duration `yaml:"latency_ceiling"`

	// SessionBatchDelay is the pause between identify batches when
	// multiple shards connect.
	SessionBatchDelay time.Duration `yaml:"session_batch_delay"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`

	Identify IdentifyConfig `yaml:"identify"`
}

// IdentifyConfig describes the client in the Identify handshake.
type IdentifyConfig struct {
	OS      string `yaml:"os"`
	Browser string `yaml:"browser"`
	Device  string `yaml:"device"`
}

// ShardsConfig sizes the shard set.
type ShardsConfig struct {
	// Count forces a shard count; zero means derive it from the
	// server recommendation and the guild count.
	Count int `yaml:"count"`

	// GuildsPerShard bounds how many guilds one shard serves when
	// deriving the count.
	GuildsPerShard int `yaml:"guilds_per_shard"`
}

// RestConfig configures the bootstrap REST collaborator.
type RestConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// MetricsConfig configures the metrics/health HTTP server.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig configures trace export.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// AutoReconnectEnabled resolves the AutoReconnect default.
func (g *GatewayConfig) AutoReconnectEnabled() bool {
	return g.AutoReconnect == nil || *g.AutoReconnect
}

// Load loads configuration from file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// SetDefaults fills zero values with the defaults.
func SetDefaults(cfg *Config) {
	if cfg.Gateway.Version == 0 {
		cfg.Gateway.Version = 10
	}
	if cfg.Gateway.Encoding == "" {
		cfg.Gateway.Encoding = "json"
	}
	if len(cfg.Gateway.BackoffSchedule) == 0 {
		cfg.Gateway.BackoffSchedule = []time.Duration{
			1 * time.Second,
			5 * time.Second,
			10 * time.Second,
		}
	}
	if cfg.Gateway.MaxMissedHeartbeats == 0 {
		cfg.Gateway.MaxMissedHeartbeats = 2
	}
	if cfg.Gateway.LatencyCeiling == 0 {
		cfg.Gateway.LatencyCeiling = 30 * time.Second
	}
	if cfg.Gateway.SessionBatchDelay == 0 {
		cfg.Gateway.SessionBatchDelay = 5 * time.Second
	}
	if cfg.Gateway.HandshakeTimeout == 0 {
		cfg.Gateway.HandshakeTimeout = 30 * time.Second
	}
	if cfg.Gateway.WriteTimeout == 0 {
		cfg.Gateway.WriteTimeout = 10 * time.Second
	}
	if cfg.Gateway.Identify.OS == "" {
		cfg.Gateway.Identify.OS = "linux"
	}
	if cfg.Gateway.Identify.Browser == "" {
		cfg.Gateway.Identify.Browser = "halcyon"
	}
	if cfg.Gateway.Identify.Device == "" {
		cfg.Gateway.Identify.Device = "halcyon"
	}

	if cfg.Shards.GuildsPerShard == 0 {
		cfg.Shards.GuildsPerShard = 2500
	}

	if cfg.Rest.BaseURL == "" {
		cfg.Rest.BaseURL = "https://chat.example.com/api/v10"
	}
	if cfg.Rest.Timeout == 0 {
		cfg.Rest.Timeout = 15 * time.Second
	}
	if cfg.Rest.MaxRetries == 0 {
		cfg.Rest.MaxRetries = 3
	}
	if cfg.Rest.RetryDelay == 0 {
		cfg.Rest.RetryDelay = 500 * time.Millisecond
	}

	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "chat-gateway:"
	}
	if cfg.Store.Addr == "" {
		cfg.Store.Addr = "localhost:6379"
	}
	if cfg.Store.PoolSize == 0 {
		cfg.Store.PoolSize = 10
	}
	if cfg.Store.DialTimeout == 0 {
		cfg.Store.DialTimeout = 5 * time.Second
	}
	if cfg.Store.ReadTimeout == 0 {
		cfg.Store.ReadTimeout = 3 * time.Second
	}
	if cfg.Store.WriteTimeout == 0 {
		cfg.Store.WriteTimeout = 3 * time.Second
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = 5 * time.Minute
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}

	if cfg.GracefulShutdownTimeout == 0 {
		cfg.GracefulShutdownTimeout = 30 * time.Second
	}
}

// Validate rejects configurations the gateway cannot run with.
func Validate(cfg *Config) error {
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}
	if cfg.Gateway.Version <= 0 {
		return fmt.Errorf("gateway.version must be greater than 0")
	}
	switch cfg.Gateway.Encoding {
	case "json", "cbor":
	default:
		return fmt.Errorf("gateway.encoding must be json or cbor, got %q", cfg.Gateway.Encoding)
	}
	switch cfg.Gateway.Compression {
	case "", "zlib-stream", "zstd-stream":
	default:
		return fmt.Errorf("gateway.compression must be zlib-stream or zstd-stream, got %q", cfg.Gateway.Compression)
	}
	if cfg.Gateway.MaxMissedHeartbeats <= 0 {
		return fmt.Errorf("gateway.max_missed_heartbeats must be greater than 0")
	}
	for i, d := range cfg.Gateway.BackoffSchedule {
		if d <= 0 {
			return fmt.Errorf("gateway.backoff_schedule[%d] must be greater than 0", i)
		}
	}
	if cfg.Shards.Count < 0 {
		return fmt.Errorf("shards.count must not be negative")
	}
	if cfg.Shards.GuildsPerShard <= 0 {
		return fmt.Errorf("shards.guilds_per_shard must be greater than 0")
	}
	if cfg.Rest.BaseURL == "" {
		return fmt.Errorf("rest.base_url is required")
	}
	if cfg.Store.Enabled && cfg.Store.Addr == "" {
		return fmt.Errorf("store.addr is required when the store is enabled")
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be greater than 0")
	}
	return nil
}
