// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/fd1az/poolsync/business/statesync/domain"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string            `mapstructure:"websocket_url"`
	HTTPURL        string            `mapstructure:"http_url"`
	ChainID        uint64            `mapstructure:"chain_id"`
	PollInterval   time.Duration     `mapstructure:"poll_interval"`
	MaxLogRange    uint64            `mapstructure:"max_log_range"`
	RequestsPerSec float64           `mapstructure:"requests_per_sec"`
	Burst          int               `mapstructure:"burst"`
	RPCTimeout     time.Duration     `mapstructure:"rpc_timeout"`
	RPCHeaders     map[string]string `mapstructure:"rpc_headers"`
}

// SyncConfig holds state synchronization settings.
type SyncConfig struct {
	Role             string        `mapstructure:"role"` // standalone, primary or replica
	NeedsSharedState bool          `mapstructure:"needs_shared_state"`
	HistoryWindow    uint64        `mapstructure:"history_window"`
	CacheBackend     string        `mapstructure:"cache_backend"` // redis or memory
	MarkerKey        string        `mapstructure:"marker_key"`
	NewObjectChannel string        `mapstructure:"new_object_channel"`
	StartBlock       uint64        `mapstructure:"start_block"` // 0 = latest
	RestartLag       uint64        `mapstructure:"restart_lag"`
	MaxReorgDepth    uint64        `mapstructure:"max_reorg_depth"`
	WriteQueueSize   int           `mapstructure:"write_queue_size"`
	WriteWorkers     int           `mapstructure:"write_workers"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// ParsedRole returns the configured role.
func (c *SyncConfig) ParsedRole() domain.Role {
	r, _ := domain.ParseRole(c.Role)
	return r
}

// PoolConfig holds the tracked pairs and quoting parameters.
type PoolConfig struct {
	Namespace string   `mapstructure:"namespace"`
	Pairs     []string `mapstructure:"pairs"`
	FeeBps    int64    `mapstructure:"fee_bps"`
	SwapGas   uint64   `mapstructure:"swap_gas"`

	// Sample quotes of QuoteAmount token0 are reported every ReportInterval.
	QuoteAmount    string        `mapstructure:"quote_amount"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

// PairAddresses returns the configured pairs as addresses.
func (c *PoolConfig) PairAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, common.HexToAddress(p))
	}
	return out
}

// RedisConfig holds shared cache connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	Provider       string  `mapstructure:"provider"` // zipkin, otlp-grpc, otlp-http, console
	Endpoint       string  `mapstructure:"endpoint"`
	Insecure       bool    `mapstructure:"insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	MetricsOTLP    bool    `mapstructure:"metrics_otlp"` // also push metrics to Endpoint
	PrometheusPort int     `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("POOLSYNC")
	v.AutomaticEnv()
	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "POOLSYNC_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "POOLSYNC_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "POOLSYNC_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.health_port", "POOLSYNC_HEALTH_PORT")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "POOLSYNC_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "POOLSYNC_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "POOLSYNC_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Sync
	v.BindEnv("sync.role", "POOLSYNC_ROLE")
	v.BindEnv("sync.needs_shared_state", "POOLSYNC_NEEDS_SHARED_STATE")
	v.BindEnv("sync.cache_backend", "POOLSYNC_CACHE_BACKEND")
	v.BindEnv("sync.start_block", "POOLSYNC_START_BLOCK")

	// Pool
	v.BindEnv("pool.pairs", "POOLSYNC_PAIRS")

	// Redis
	v.BindEnv("redis.addr", "POOLSYNC_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "POOLSYNC_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "POOLSYNC_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "POOLSYNC_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.endpoint", "POOLSYNC_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "poolsync")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8080)

	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.poll_interval", "4s")
	v.SetDefault("ethereum.max_log_range", 2000)
	v.SetDefault("ethereum.requests_per_sec", 25)
	v.SetDefault("ethereum.burst", 10)
	v.SetDefault("ethereum.rpc_timeout", "10s")

	v.SetDefault("sync.role", "standalone")
	v.SetDefault("sync.needs_shared_state", true)
	v.SetDefault("sync.history_window", 64)
	v.SetDefault("sync.cache_backend", "memory")
	v.SetDefault("sync.marker_key", "poolsync:block")
	v.SetDefault("sync.new_object_channel", "poolsync:new-object")
	v.SetDefault("sync.restart_lag", 256)
	v.SetDefault("sync.max_reorg_depth", 64)
	v.SetDefault("sync.write_queue_size", 1024)
	v.SetDefault("sync.write_workers", 2)
	v.SetDefault("sync.write_timeout", "5s")

	v.SetDefault("pool.namespace", "uniswapv2")
	v.SetDefault("pool.fee_bps", 30)
	v.SetDefault("pool.swap_gas", 110000)
	v.SetDefault("pool.quote_amount", "1")
	v.SetDefault("pool.report_interval", "12s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "poolsync:")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "poolsync")
	v.SetDefault("telemetry.provider", "otlp-grpc")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.WebSocketURL == "" && c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.websocket_url or ethereum.http_url is required")
	}
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required for historical reads")
	}
	if _, err := domain.ParseRole(c.Sync.Role); err != nil {
		return fmt.Errorf("sync.role: %w", err)
	}
	switch c.Sync.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("sync.cache_backend must be redis or memory, got %q", c.Sync.CacheBackend)
	}
	if c.Sync.ParsedRole() != domain.RoleStandalone && c.Sync.CacheBackend != "redis" {
		return fmt.Errorf("sync.role %s requires the redis cache backend", c.Sync.Role)
	}
	if c.Ethereum.MaxLogRange == 0 {
		return fmt.Errorf("ethereum.max_log_range must be positive")
	}
	for _, p := range c.Pool.Pairs {
		if !common.IsHexAddress(p) {
			return fmt.Errorf("invalid pool pair address: %s", p)
		}
	}
	if c.Pool.FeeBps < 0 || c.Pool.FeeBps >= 10_000 {
		return fmt.Errorf("pool.fee_bps out of range: %d", c.Pool.FeeBps)
	}
	return nil
}
