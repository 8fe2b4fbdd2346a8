// Package config provides configuration management for the notification
// engine. It supports loading configuration from files, environment
// variables, and defaults, layered through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
	"github.com/xnovu/notification-engine/pkg/events"
)

// Config holds the engine's full configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Catalog        CatalogConfig        `mapstructure:"catalog" validate:"required"`
	ScheduleStore  ScheduleStoreConfig  `mapstructure:"schedule_store" validate:"required"`
	Polling        PollingConfig        `mapstructure:"polling"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Delivery       DeliveryConfig       `mapstructure:"delivery" validate:"required"`
	Logger         LoggerConfig         `mapstructure:"logger"`
	Tracer         TracerConfig         `mapstructure:"tracer"`
	Redis          RedisConfig          `mapstructure:"redis"`
	OperatorAuth   OperatorAuthConfig   `mapstructure:"operator_auth"`
	EventBus       events.RabbitMQConfig `mapstructure:"event_bus"`
}

// OperatorAuthConfig configures bearer-token verification for the
// control-plane's mutating admin endpoints (reloadCronRules/pause/resume).
// Tokens are minted out of band; the engine only verifies them.
type OperatorAuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Expiry   time.Duration `mapstructure:"expiry"`
}

// AppConfig holds application-identity configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds the control-plane HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CatalogConfig holds the Catalog DB (PostgreSQL) connection configuration.
type CatalogConfig struct {
	URL             string        `mapstructure:"url" validate:"required"`
	Key             string        `mapstructure:"key"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string derived from the catalog URL.
func (c *CatalogConfig) DSN() string {
	return c.URL
}

// ScheduleStoreConfig holds the durable workflow scheduler connection configuration.
type ScheduleStoreConfig struct {
	Address              string `mapstructure:"address" validate:"required"`
	Namespace             string `mapstructure:"namespace"`
	TaskQueue             string `mapstructure:"task_queue"`
	MaxConcurrentActivities int  `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int  `mapstructure:"max_concurrent_workflows"`
}

// PollingConfig holds the notification polling pipeline's tunables.
type PollingConfig struct {
	PollIntervalMS         int `mapstructure:"poll_interval_ms"`
	FailedPollIntervalMS   int `mapstructure:"failed_poll_interval_ms"`
	ScheduledPollIntervalMS int `mapstructure:"scheduled_poll_interval_ms"`
	BatchSize              int `mapstructure:"batch_size"`
	JobRetryAttempts       int `mapstructure:"job_retry_attempts"`
	JobRetryDelayMS        int `mapstructure:"job_retry_delay_ms"`
}

func (p PollingConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

func (p PollingConfig) FailedPollInterval() time.Duration {
	return time.Duration(p.FailedPollIntervalMS) * time.Millisecond
}

func (p PollingConfig) ScheduledPollInterval() time.Duration {
	return time.Duration(p.ScheduledPollIntervalMS) * time.Millisecond
}

func (p PollingConfig) JobRetryDelay() time.Duration {
	return time.Duration(p.JobRetryDelayMS) * time.Millisecond
}

// ReconciliationConfig holds the rule reconciliation loop's tunables.
type ReconciliationConfig struct {
	RulePollIntervalMS int    `mapstructure:"rule_poll_interval_ms"`
	DefaultTimezone    string `mapstructure:"default_timezone"`
}

func (r ReconciliationConfig) RulePollInterval() time.Duration {
	return time.Duration(r.RulePollIntervalMS) * time.Millisecond
}

// DeliveryConfig holds the Delivery Provider client configuration.
type DeliveryConfig struct {
	URL string `mapstructure:"url" validate:"required"`
	Key string `mapstructure:"key" validate:"required"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	TimeFormat string `mapstructure:"time_format"`
	Caller     bool   `mapstructure:"caller"`
}

// TracerConfig holds distributed tracing configuration.
type TracerConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RedisConfig backs the control-plane admin-endpoint rate limiter. When Host
// is empty the engine falls back to an in-memory rate limiter.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c *RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/app/configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values, matching the defaults table.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "notification-engine")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("catalog.max_open_conns", 25)
	v.SetDefault("catalog.max_idle_conns", 10)
	v.SetDefault("catalog.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("catalog.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("schedule_store.address", "localhost:7233")
	v.SetDefault("schedule_store.namespace", "default")
	v.SetDefault("schedule_store.task_queue", "xnovu-notification-processing")
	v.SetDefault("schedule_store.max_concurrent_activities", 100)
	v.SetDefault("schedule_store.max_concurrent_workflows", 50)

	v.SetDefault("polling.poll_interval_ms", 10000)
	v.SetDefault("polling.failed_poll_interval_ms", 60000)
	v.SetDefault("polling.scheduled_poll_interval_ms", 30000)
	v.SetDefault("polling.batch_size", 100)
	v.SetDefault("polling.job_retry_attempts", 3)
	v.SetDefault("polling.job_retry_delay_ms", 5000)

	v.SetDefault("reconciliation.rule_poll_interval_ms", 30000)
	v.SetDefault("reconciliation.default_timezone", "UTC")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.time_format", time.RFC3339Nano)
	v.SetDefault("logger.caller", false)

	v.SetDefault("tracer.enabled", false)
	v.SetDefault("tracer.service_name", "notification-engine")
	v.SetDefault("tracer.sample_rate", 1.0)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("operator_auth.issuer", "notification-engine")
	v.SetDefault("operator_auth.audience", "notification-engine-admin")
	v.SetDefault("operator_auth.expiry", 24*time.Hour)

	v.SetDefault("event_bus.exchange", "notification.lifecycle")
	v.SetDefault("event_bus.exchange_type", "topic")
	v.SetDefault("event_bus.reconnect_delay", 2*time.Second)
	v.SetDefault("event_bus.max_reconnect_delay", 30*time.Second)
}

// bindEnvVars binds the environment variables named in the external
// interfaces table to their config keys. This is an explicit map, not a
// prefix scan, so every accepted variable is named once, here.
func bindEnvVars(v *viper.Viper) {
	envMappings := map[string]string{
		"SCHEDULE_STORE_ADDRESS":     "schedule_store.address",
		"SCHEDULE_STORE_NAMESPACE":   "schedule_store.namespace",
		"SCHEDULE_STORE_TASK_QUEUE":  "schedule_store.task_queue",
		"MAX_CONCURRENT_ACTIVITIES":  "schedule_store.max_concurrent_activities",
		"MAX_CONCURRENT_WORKFLOWS":   "schedule_store.max_concurrent_workflows",
		"POLL_INTERVAL_MS":           "polling.poll_interval_ms",
		"FAILED_POLL_INTERVAL_MS":    "polling.failed_poll_interval_ms",
		"SCHEDULED_POLL_INTERVAL_MS": "polling.scheduled_poll_interval_ms",
		"POLL_BATCH_SIZE":            "polling.batch_size",
		"RULE_POLL_INTERVAL_MS":      "reconciliation.rule_poll_interval_ms",
		"DEFAULT_TIMEZONE":           "reconciliation.default_timezone",
		"JOB_RETRY_ATTEMPTS":         "polling.job_retry_attempts",
		"JOB_RETRY_DELAY_MS":         "polling.job_retry_delay_ms",
		"CATALOG_URL":                "catalog.url",
		"CATALOG_KEY":                "catalog.key",
		"DELIVERY_PROVIDER_KEY":      "delivery.key",
		"DELIVERY_PROVIDER_URL":      "delivery.url",
		"LOG_LEVEL":                  "logger.level",
		"APP_ENV":                    "app.environment",
		"APP_PORT":                   "server.port",
		"REDIS_HOST":                 "redis.host",
		"REDIS_PORT":                 "redis.port",
		"REDIS_PASSWORD":             "redis.password",
		"OPERATOR_AUTH_SECRET":       "operator_auth.secret",
		"EVENT_BUS_URL":              "event_bus.url",
	}

	for env, key := range envMappings {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}
}

var validate = validator.New()

// Validate enforces the required fields and positive-interval constraints
// that a malformed deployment would otherwise only discover at first use.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return engineerrors.Wrap(err, engineerrors.ErrCodeConfig, "invalid configuration")
	}
	if c.Polling.PollIntervalMS <= 0 || c.Polling.FailedPollIntervalMS <= 0 || c.Polling.ScheduledPollIntervalMS <= 0 {
		return engineerrors.New(engineerrors.ErrCodeConfig, "polling intervals must be positive")
	}
	if c.Polling.BatchSize <= 0 || c.Polling.BatchSize > 1000 {
		return engineerrors.New(engineerrors.ErrCodeConfig, "polling.batch_size must be in (0, 1000]")
	}
	return nil
}

// MustLoad loads configuration and panics on error. Used only by command
// wiring before logging is available to report a structured failure.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// IsDevelopment returns true if the environment is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the environment is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsStaging returns true if the environment is staging.
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}
