package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Queue      QueueConfig
	Sync       SyncConfig
	Conflict   ConflictConfig
	Allocation AllocationConfig
	Forecast   ForecastConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// QueueConfig sizes the durable job queue's worker pools. Each job
// category drains independently so webhook bursts cannot starve syncs.
type QueueConfig struct {
	Enabled           bool
	PollInterval      time.Duration
	SyncWorkers       int
	AllocationWorkers int
	ConflictWorkers   int
	WebhookWorkers    int
	JobTimeout        time.Duration
}

// SyncConfig tunes channel communication: circuit breaker thresholds,
// retry budget and webhook deduplication
type SyncConfig struct {
	BreakerFailureThreshold int
	BreakerFailureWindow    time.Duration
	BreakerCooldown         time.Duration
	MaxRetryAttempts        int
	RetryBackoffBase        time.Duration
	WebhookDedupeTTL        time.Duration
	DefaultRateLimitQPS     float64
	DefaultRateLimitBurst   int
}

// ConflictConfig tunes conflict detection and resolution
type ConflictConfig struct {
	// DetectionThreshold is the absolute unit discrepancy below which
	// channel disagreements are ignored; zero flags any mismatch
	DetectionThreshold float64
	DefaultStrategy    string
	AggregateMethod    string
}

// AllocationConfig tunes the allocation engine
type AllocationConfig struct {
	DefaultBufferPercent float64
	DefaultStrategy      string
}

// ForecastConfig points at the external demand forecast service
type ForecastConfig struct {
	Enabled  bool
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// TelemetryConfig points at the OTLP collector. When disabled the global
// no-op providers are used and nothing is exported.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration
	Insecure          bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CHANNELSYNC_ prefix (e.g., CHANNELSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CHANNELSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Queue: QueueConfig{
			Enabled:           v.GetBool("queue.enabled"),
			PollInterval:      v.GetDuration("queue.poll_interval"),
			SyncWorkers:       v.GetInt("queue.sync_workers"),
			AllocationWorkers: v.GetInt("queue.allocation_workers"),
			ConflictWorkers:   v.GetInt("queue.conflict_workers"),
			WebhookWorkers:    v.GetInt("queue.webhook_workers"),
			JobTimeout:        v.GetDuration("queue.job_timeout"),
		},
		Sync: SyncConfig{
			BreakerFailureThreshold: v.GetInt("sync.breaker_failure_threshold"),
			BreakerFailureWindow:    v.GetDuration("sync.breaker_failure_window"),
			BreakerCooldown:         v.GetDuration("sync.breaker_cooldown"),
			MaxRetryAttempts:        v.GetInt("sync.max_retry_attempts"),
			RetryBackoffBase:        v.GetDuration("sync.retry_backoff_base"),
			WebhookDedupeTTL:        v.GetDuration("sync.webhook_dedupe_ttl"),
			DefaultRateLimitQPS:     v.GetFloat64("sync.default_rate_limit_qps"),
			DefaultRateLimitBurst:   v.GetInt("sync.default_rate_limit_burst"),
		},
		Conflict: ConflictConfig{
			DetectionThreshold: v.GetFloat64("conflict.detection_threshold"),
			DefaultStrategy:    v.GetString("conflict.default_strategy"),
			AggregateMethod:    v.GetString("conflict.aggregate_method"),
		},
		Allocation: AllocationConfig{
			DefaultBufferPercent: v.GetFloat64("allocation.default_buffer_percent"),
			DefaultStrategy:      v.GetString("allocation.default_strategy"),
		},
		Forecast: ForecastConfig{
			Enabled:  v.GetBool("forecast.enabled"),
			BaseURL:  v.GetString("forecast.base_url"),
			Timeout:  v.GetDuration("forecast.timeout"),
			CacheTTL: v.GetDuration("forecast.cache_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "channelsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "channelsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly
	// configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Store-ID"}
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = time.Second
	}
	if cfg.Queue.SyncWorkers == 0 {
		cfg.Queue.SyncWorkers = 4
	}
	if cfg.Queue.AllocationWorkers == 0 {
		cfg.Queue.AllocationWorkers = 2
	}
	if cfg.Queue.ConflictWorkers == 0 {
		cfg.Queue.ConflictWorkers = 2
	}
	// Webhook bursts arrive faster than scheduled syncs, so that pool
	// defaults to twice the sync pool
	if cfg.Queue.WebhookWorkers == 0 {
		cfg.Queue.WebhookWorkers = 8
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 2 * time.Minute
	}
	if cfg.Sync.BreakerFailureThreshold == 0 {
		cfg.Sync.BreakerFailureThreshold = 5
	}
	if cfg.Sync.BreakerFailureWindow == 0 {
		cfg.Sync.BreakerFailureWindow = time.Minute
	}
	if cfg.Sync.BreakerCooldown == 0 {
		cfg.Sync.BreakerCooldown = 30 * time.Second
	}
	if cfg.Sync.MaxRetryAttempts == 0 {
		cfg.Sync.MaxRetryAttempts = 4
	}
	if cfg.Sync.RetryBackoffBase == 0 {
		cfg.Sync.RetryBackoffBase = 500 * time.Millisecond
	}
	if cfg.Sync.WebhookDedupeTTL == 0 {
		cfg.Sync.WebhookDedupeTTL = 72 * time.Hour
	}
	if cfg.Sync.DefaultRateLimitQPS == 0 {
		cfg.Sync.DefaultRateLimitQPS = 2
	}
	if cfg.Sync.DefaultRateLimitBurst == 0 {
		cfg.Sync.DefaultRateLimitBurst = 4
	}
	if cfg.Conflict.DefaultStrategy == "" {
		cfg.Conflict.DefaultStrategy = "intelligent_merge"
	}
	if cfg.Conflict.AggregateMethod == "" {
		cfg.Conflict.AggregateMethod = "average"
	}
	if cfg.Allocation.DefaultBufferPercent == 0 {
		cfg.Allocation.DefaultBufferPercent = 10
	}
	if cfg.Allocation.DefaultStrategy == "" {
		cfg.Allocation.DefaultStrategy = "equal_distribution"
	}
	if cfg.Forecast.BaseURL == "" {
		cfg.Forecast.BaseURL = "http://localhost:5000"
	}
	if cfg.Forecast.Timeout == 0 {
		cfg.Forecast.Timeout = 10 * time.Second
	}
	if cfg.Forecast.CacheTTL == 0 {
		cfg.Forecast.CacheTTL = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Conflict.DetectionThreshold < 0 {
		return fmt.Errorf("conflict.detection_threshold cannot be negative")
	}
	if c.Allocation.DefaultBufferPercent < 0 || c.Allocation.DefaultBufferPercent >= 100 {
		return fmt.Errorf("allocation.default_buffer_percent must be in [0,100), got %f",
			c.Allocation.DefaultBufferPercent)
	}
	if c.Sync.DefaultRateLimitQPS < 0 {
		return fmt.Errorf("sync.default_rate_limit_qps cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
