// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"

	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/warming"
)

// Durable drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// Config is the top-level cache service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Durable      DurableConfig      `yaml:"durable"`
	Cache        CacheConfig        `yaml:"cache"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Health       HealthConfig       `yaml:"health"`
	Analytics    AnalyticsConfig    `yaml:"analytics"`
	Warming      WarmingConfig      `yaml:"warming"`
	Invalidation InvalidationConfig `yaml:"invalidation"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AdminToken      string        `yaml:"admin_token"` // bearer token for /admin/cache; empty = open
	AdminRPM        int64         `yaml:"admin_rpm"`   // admin requests per minute per client; 0 = unlimited
	AdminWPM        int64         `yaml:"admin_wpm"`   // mutating admin requests per minute per client; 0 = unlimited
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DurableConfig selects and configures the shared durable tier.
type DurableConfig struct {
	Driver        string        `yaml:"driver"` // sqlite, redis, none
	Timeout       time.Duration `yaml:"timeout"`
	MirrorTimeout time.Duration `yaml:"mirror_timeout"`
	SQLite        SQLiteConfig  `yaml:"sqlite"`
	Redis         RedisConfig   `yaml:"redis"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	PoolSize  int    `yaml:"pool_size"`
}

// CacheConfig holds memory tier settings and namespace declarations.
type CacheConfig struct {
	DefaultMaxEntries int              `yaml:"default_max_entries"`
	DefaultMaxBytes   int64            `yaml:"default_max_bytes"`
	SweepInterval     time.Duration    `yaml:"sweep_interval"`
	Namespaces        []NamespaceEntry `yaml:"namespaces"`
}

// NamespaceEntry declares or overrides a namespace.
type NamespaceEntry struct {
	Namespace  string `yaml:"namespace"`
	TTLs       int    `yaml:"ttl_s"`
	MaxEntries int    `yaml:"max_entries"`
	MaxBytes   int64  `yaml:"max_bytes"`
}

// BreakerConfig tunes the per-namespace durable tier circuit breaker.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	WindowSeconds  int           `yaml:"window_seconds"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// HealthConfig holds health classification thresholds.
type HealthConfig struct {
	HealthyHitRate  float64 `yaml:"healthy_hit_rate"`
	WarningHitRate  float64 `yaml:"warning_hit_rate"`
	MinSamples      int64   `yaml:"min_samples"`
	MaxMemoryBytes  int64   `yaml:"max_memory_bytes"`
	WarnMemoryBytes int64   `yaml:"warn_memory_bytes"`
	MaxEntries      int     `yaml:"max_entries"`
}

// AnalyticsConfig holds the savings model and trend sampling settings.
type AnalyticsConfig struct {
	AvgBackendLatency time.Duration `yaml:"avg_backend_latency"`
	CostPerQuery      float64       `yaml:"cost_per_query"`
	SizeScale         int64         `yaml:"size_scale"`
	TrendInterval     time.Duration `yaml:"trend_interval"`
	TrendPoints       int           `yaml:"trend_points"`
	InvalidationLog   int           `yaml:"invalidation_log"`
}

// WarmingConfig configures cache warming.
type WarmingConfig struct {
	Timeout  time.Duration    `yaml:"timeout"`
	Interval time.Duration    `yaml:"interval"` // 0 disables periodic warming
	Sources  []warming.Source `yaml:"sources"`
}

// InvalidationConfig adds actions to the default event rules.
type InvalidationConfig struct {
	Rules invalidation.Rules `yaml:"rules"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// overrides are environment variables applied after the file is parsed.
// Empty values leave the file setting in place.
type overrides struct {
	Addr            string `env:"TIERCACHE_ADDR"`
	AdminToken      string `env:"TIERCACHE_ADMIN_TOKEN"`
	LogLevel        string `env:"TIERCACHE_LOG_LEVEL"`
	DurableDriver   string `env:"TIERCACHE_DURABLE_DRIVER"`
	SQLiteDSN       string `env:"TIERCACHE_SQLITE_DSN"`
	RedisAddr       string `env:"TIERCACHE_REDIS_ADDR"`
	RedisPassword   string `env:"TIERCACHE_REDIS_PASSWORD"`
	TracingEndpoint string `env:"TIERCACHE_OTLP_ENDPOINT"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AdminRPM:        600,
			AdminWPM:        60,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Durable: DurableConfig{
			Driver:        DriverSQLite,
			Timeout:       250 * time.Millisecond,
			MirrorTimeout: 5 * time.Second,
			SQLite:        SQLiteConfig{DSN: "tiercache.db"},
			Redis:         RedisConfig{Addr: "localhost:6379", KeyPrefix: "tiercache:"},
		},
		Cache: CacheConfig{
			DefaultMaxEntries: 10_000,
			DefaultMaxBytes:   50 << 20,
			SweepInterval:     time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:        true,
			ErrorThreshold: 0.5,
			MinSamples:     5,
			WindowSeconds:  30,
			OpenTimeout:    10 * time.Second,
		},
		Health: HealthConfig{
			HealthyHitRate:  0.70,
			WarningHitRate:  0.40,
			MinSamples:      10,
			MaxMemoryBytes:  50 << 20,
			WarnMemoryBytes: 40 << 20,
		},
		Analytics: AnalyticsConfig{
			AvgBackendLatency: 48 * time.Millisecond,
			CostPerQuery:      0.000001,
			SizeScale:         1024,
			TrendInterval:     5 * time.Minute,
			TrendPoints:       288,
			InvalidationLog:   100,
		},
		Warming: WarmingConfig{
			Timeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables,
// then applies TIERCACHE_* overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = expandEnv(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *Config) error {
	o, err := env.ParseAs[overrides]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Addr, o.Addr)
	set(&cfg.Server.AdminToken, o.AdminToken)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Durable.Driver, o.DurableDriver)
	set(&cfg.Durable.SQLite.DSN, o.SQLiteDSN)
	set(&cfg.Durable.Redis.Addr, o.RedisAddr)
	set(&cfg.Durable.Redis.Password, o.RedisPassword)
	set(&cfg.Telemetry.Tracing.Endpoint, o.TracingEndpoint)
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Durable.Driver {
	case DriverSQLite, DriverRedis, DriverNone:
	default:
		return fmt.Errorf("config: unknown durable driver %q", c.Durable.Driver)
	}
	if c.Server.AdminRPM < 0 || c.Server.AdminWPM < 0 {
		return fmt.Errorf("config: admin rate limits must not be negative")
	}
	seen := make(map[string]bool, len(c.Cache.Namespaces))
	for i, ns := range c.Cache.Namespaces {
		if ns.Namespace == "" {
			return fmt.Errorf("config: cache.namespaces[%d]: empty namespace", i)
		}
		if ns.TTLs <= 0 {
			return fmt.Errorf("config: namespace %q: ttl_s must be positive", ns.Namespace)
		}
		if seen[ns.Namespace] {
			return fmt.Errorf("config: namespace %q declared twice", ns.Namespace)
		}
		seen[ns.Namespace] = true
	}
	for _, s := range c.Warming.Sources {
		if s.Name == "" || s.Namespace == "" || s.URL == "" {
			return fmt.Errorf("config: warming source %q: name, namespace and url are required", s.Name)
		}
	}
	return nil
}
