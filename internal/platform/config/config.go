package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the quote cache service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Tiers         TiersConfig         `mapstructure:"tiers"`
	Refresh       RefreshConfig       `mapstructure:"refresh"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Warmup        []WarmupPair        `mapstructure:"warmup"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// RedisConfig holds Redis connection settings for the quote store.
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// CacheConfig holds layered-cache settings.
type CacheConfig struct {
	L1MaxSize int           `mapstructure:"l1_max_size"`
	L1MaxTTL  time.Duration `mapstructure:"l1_max_ttl"`
}

// TierSettings holds one tier's freshness policy. A zero RefreshPeriod means
// the tier is refreshed on demand only.
type TierSettings struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RefreshPeriod time.Duration `mapstructure:"refresh_period"`
}

// TiersConfig holds the per-tier freshness policy and the global stale floor.
type TiersConfig struct {
	T1          TierSettings  `mapstructure:"t1"`
	T2          TierSettings  `mapstructure:"t2"`
	T3          TierSettings  `mapstructure:"t3"`
	T4          TierSettings  `mapstructure:"t4"`
	MaxStaleAge time.Duration `mapstructure:"max_stale_age"`
}

// RefreshConfig holds refresh queue and worker pool settings.
type RefreshConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
	SweepAmount   string        `mapstructure:"sweep_amount"`
}

// ChainConfig holds one chain's upstream settings.
type ChainConfig struct {
	Name          string                 `mapstructure:"name"`
	RPCURL        string                 `mapstructure:"rpc_url"`
	QuoterAddress string                 `mapstructure:"quoter_address"`
	FeeTiers      []uint32               `mapstructure:"fee_tiers"`
	Tokens        map[string]TokenConfig `mapstructure:"tokens"`
}

// TokenConfig holds one token's on-chain metadata. When a chain's token map
// omits a well-known symbol, the built-in registry fills it in.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
}

// UpstreamConfig holds upstream quote source settings.
type UpstreamConfig struct {
	Provider    string        `mapstructure:"provider"` // "uniswap_v3" or "static"
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Chains      []ChainConfig `mapstructure:"chains"`
}

// BreakerConfig holds circuit breaker settings for upstream calls.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// WarmupPair names a pair to pre-assign and refresh at startup.
type WarmupPair struct {
	Chain    string `mapstructure:"chain"`
	TokenIn  string `mapstructure:"token_in"`
	TokenOut string `mapstructure:"token_out"`
	Tier     string `mapstructure:"tier"`
	Amount   string `mapstructure:"amount"`
}

// AlertsConfig holds SNS alerting settings.
type AlertsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine when env vars carry the settings.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_grace", "30s")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 5)

	// Cache defaults
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l1_max_ttl", "10s")

	// Tier defaults
	v.SetDefault("tiers.t1.ttl", "10s")
	v.SetDefault("tiers.t1.refresh_period", "5s")
	v.SetDefault("tiers.t2.ttl", "60s")
	v.SetDefault("tiers.t2.refresh_period", "30s")
	v.SetDefault("tiers.t3.ttl", "300s")
	v.SetDefault("tiers.t3.refresh_period", "180s")
	v.SetDefault("tiers.t4.ttl", "600s")
	v.SetDefault("tiers.t4.refresh_period", "0s")
	v.SetDefault("tiers.max_stale_age", "3600s")

	// Refresh defaults
	v.SetDefault("refresh.workers", 10)
	v.SetDefault("refresh.queue_capacity", 1000)
	v.SetDefault("refresh.max_attempts", 3)
	v.SetDefault("refresh.retry_base", "2s")
	v.SetDefault("refresh.retry_max", "30s")
	v.SetDefault("refresh.sweep_amount", "1000")

	// Upstream defaults
	v.SetDefault("upstream.provider", "uniswap_v3")
	v.SetDefault("upstream.call_timeout", "30s")

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 1)
	v.SetDefault("breaker.reset_timeout", "60s")

	// Alerts defaults
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.region", "us-east-1")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh workers must be > 0")
	}
	if c.Refresh.QueueCapacity <= 0 {
		return fmt.Errorf("refresh queue capacity must be > 0")
	}
	if c.Refresh.MaxAttempts <= 0 {
		return fmt.Errorf("refresh max attempts must be > 0")
	}

	for _, tier := range []struct {
		name     string
		settings TierSettings
	}{
		{"t1", c.Tiers.T1},
		{"t2", c.Tiers.T2},
		{"t3", c.Tiers.T3},
		{"t4", c.Tiers.T4},
	} {
		if tier.settings.TTL <= 0 {
			return fmt.Errorf("tier %s ttl must be > 0", tier.name)
		}
		if tier.settings.TTL > c.Tiers.MaxStaleAge {
			return fmt.Errorf("tier %s ttl exceeds max_stale_age", tier.name)
		}
	}

	switch c.Upstream.Provider {
	case "uniswap_v3":
		if len(c.Upstream.Chains) == 0 {
			return fmt.Errorf("at least one upstream chain is required")
		}
		for _, chain := range c.Upstream.Chains {
			if chain.Name == "" {
				return fmt.Errorf("chain name is required")
			}
			if chain.RPCURL == "" {
				return fmt.Errorf("chain %s: rpc_url is required", chain.Name)
			}
			if chain.QuoterAddress == "" {
				return fmt.Errorf("chain %s: quoter_address is required", chain.Name)
			}
		}
	case "static":
		// No chain settings required; used for local runs and tests.
	default:
		return fmt.Errorf("unknown upstream provider: %s", c.Upstream.Provider)
	}

	if c.Alerts.Enabled {
		if c.Alerts.Region == "" {
			return fmt.Errorf("alerts region is required")
		}
		if c.Alerts.SNSTopicARN == "" {
			return fmt.Errorf("alerts sns_topic_arn is required")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
