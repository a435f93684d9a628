// Package config assembles the engine's runtime configuration from
// environment variables. Every knob has a default that works for local
// development; production deployments set DATABASE_URL and tighten from there.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment names the deployment tier.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the root of everything the worker reads at startup.
type Config struct {
	App             AppConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	ActivityService ActivityServiceConfig
	Scheduler       SchedulerConfig
	Features        *FeatureFlags
	Observability   ObservabilityConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// ShutdownTimeout bounds the graceful stop on SIGTERM.
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the PostgreSQL connection settings. URL wins when set;
// otherwise the DB_* parts are assembled into one.
type DatabaseConfig struct {
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	QueryTimeout time.Duration
	LogQueries   bool
}

// RedisConfig holds the Redis connection settings. Redis is optional: with
// Disabled set (or nothing reachable) the engine runs postgres-only and rank
// hints degrade to no-ops.
type RedisConfig struct {
	URL string

	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Disabled bool
}

// ActivityServiceConfig points the engine at a remote activity service.
// An empty BaseURL means the aggregators read the local postgres read models.
type ActivityServiceConfig struct {
	BaseURL string
	APIKey  string

	// The limiter shields the service from bulk aggregation sweeps.
	RateLimit      float64
	RateLimitBurst int
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerThreshold   int
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerHalfOpenMax int
}

// SchedulerConfig tunes the refresh scheduler and the achievement sweep.
type SchedulerConfig struct {
	Enabled bool

	// TickTimeout bounds one refresh cycle.
	TickTimeout time.Duration

	// RealtimeOverride replaces the realtime refresh interval when nonzero.
	RealtimeOverride time.Duration

	SweepInterval time.Duration
	SweepTimeout  time.Duration
	SweepPause    time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	MetricsEnabled bool
	MetricsPort    int
}

// Load reads the environment, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		App:             loadApp(),
		Database:        loadDatabase(),
		Redis:           loadRedis(),
		ActivityService: loadActivityService(),
		Scheduler:       loadScheduler(),
		Features:        LoadFeatureFlags(),
		Observability:   loadObservability(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadApp() AppConfig {
	env := Environment(envStr("APP_ENV", "development"))
	return AppConfig{
		Name:            envStr("APP_NAME", "gamehub-engine"),
		Environment:     env,
		Debug:           env == EnvDevelopment || envBool("APP_DEBUG", false),
		Version:         envStr("APP_VERSION", "0.1.0"),
		ShutdownTimeout: envDur("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabase() DatabaseConfig {
	url := envStr("DATABASE_URL", "")
	if url == "" {
		host := envStr("DB_HOST", "")
		user := envStr("DB_USER", "")
		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user,
				envStr("DB_PASSWORD", ""),
				host,
				envStr("DB_PORT", "5432"),
				envStr("DB_NAME", "gamehub"),
				envStr("DB_SSLMODE", "require"),
			)
		}
	}

	return DatabaseConfig{
		URL:             url,
		MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: envDur("DB_CONN_MAX_IDLE_TIME", time.Minute),
		QueryTimeout:    envDur("DB_QUERY_TIMEOUT", 30*time.Second),
		LogQueries:      envBool("DB_LOG_QUERIES", false),
	}
}

func loadRedis() RedisConfig {
	return RedisConfig{
		URL:          envStr("REDIS_URL", ""),
		Host:         envStr("REDIS_HOST", "localhost"),
		Port:         envInt("REDIS_PORT", 6379),
		Password:     envStr("REDIS_PASSWORD", ""),
		DB:           envInt("REDIS_DB", 0),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDur("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDur("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     envBool("REDIS_DISABLED", false),
	}
}

func loadActivityService() ActivityServiceConfig {
	return ActivityServiceConfig{
		BaseURL:                   envStr("ACTIVITY_SERVICE_URL", ""),
		APIKey:                    envStr("ACTIVITY_SERVICE_API_KEY", ""),
		RateLimit:                 envFloat("ACTIVITY_SERVICE_RATE_LIMIT", 10),
		RateLimitBurst:            envInt("ACTIVITY_SERVICE_RATE_LIMIT_BURST", 20),
		RequestTimeout:            envDur("ACTIVITY_SERVICE_REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:                envInt("ACTIVITY_SERVICE_MAX_RETRIES", 3),
		RetryBaseDelay:            envDur("ACTIVITY_SERVICE_RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:             envDur("ACTIVITY_SERVICE_RETRY_MAX_DELAY", 30*time.Second),
		CircuitBreakerThreshold:   envInt("ACTIVITY_SERVICE_CB_THRESHOLD", 5),
		CircuitBreakerTimeout:     envDur("ACTIVITY_SERVICE_CB_TIMEOUT", time.Minute),
		CircuitBreakerHalfOpenMax: envInt("ACTIVITY_SERVICE_CB_HALF_OPEN_MAX", 3),
	}
}

func loadScheduler() SchedulerConfig {
	return SchedulerConfig{
		Enabled:          envBool("SCHEDULER_ENABLED", true),
		TickTimeout:      envDur("SCHEDULER_TICK_TIMEOUT", 2*time.Minute),
		RealtimeOverride: envDur("SCHEDULER_REALTIME_OVERRIDE", 0),
		SweepInterval:    envDur("SCHEDULER_SWEEP_INTERVAL", time.Hour),
		SweepTimeout:     envDur("SCHEDULER_SWEEP_TIMEOUT", 10*time.Minute),
		SweepPause:       envDur("SCHEDULER_SWEEP_PAUSE", 0),
	}
}

func loadObservability() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "json"),
		MetricsEnabled: envBool("METRICS_ENABLED", false),
		MetricsPort:    envInt("METRICS_PORT", 9090),
	}
}

// Validate rejects configurations the worker cannot run with. All problems
// are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Environment == EnvProduction && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	if c.Scheduler.TickTimeout <= 0 {
		errs = append(errs, errors.New("SCHEDULER_TICK_TIMEOUT must be positive"))
	}
	if c.Scheduler.RealtimeOverride < 0 {
		errs = append(errs, errors.New("SCHEDULER_REALTIME_OVERRIDE cannot be negative"))
	}
	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_SWEEP_INTERVAL must be positive"))
	}
	if c.ActivityService.BaseURL != "" && c.ActivityService.RateLimit <= 0 {
		errs = append(errs, errors.New("ACTIVITY_SERVICE_RATE_LIMIT must be positive"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the engine runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction reports whether the engine runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// Environment parsing helpers. A set-but-unparsable variable falls back to
// the default rather than failing startup.

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
