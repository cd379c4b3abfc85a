// Package config loads application configuration from defaults, an optional
// YAML file, a .env file and COT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"cot-lab/internal/logging"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "COT"

// Config represents the complete application configuration.
type Config struct {
	Remote  RemoteConfig  `yaml:"remote" envconfig:"REMOTE"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
}

// RemoteConfig configures the public reporting API client.
type RemoteConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	AppToken          string        `yaml:"app_token" envconfig:"APP_TOKEN"`
	PageSize          int           `yaml:"page_size" envconfig:"PAGE_SIZE" validate:"gte=1,lte=50000"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gte=0"`
	Burst             int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"gte=0"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" validate:"gte=0"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Backend       string `yaml:"backend" envconfig:"BACKEND" validate:"oneof=memory postgres clickhouse"`
	PostgresDSN   string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN" validate:"required_unless=Backend memory"`
	ClickhouseDSN string `yaml:"clickhouse_dsn" envconfig:"CLICKHOUSE_DSN" validate:"required_if=Backend clickhouse"`
	Migrate       bool   `yaml:"migrate" envconfig:"MIGRATE"`
}

// CacheConfig configures the range and catalog caches.
type CacheConfig struct {
	ReleaseCadence time.Duration `yaml:"release_cadence" envconfig:"RELEASE_CADENCE" validate:"gt=0"`
	ReleaseLag     time.Duration `yaml:"release_lag" envconfig:"RELEASE_LAG" validate:"gt=0"`
	CatalogTTL     time.Duration `yaml:"catalog_ttl" envconfig:"CATALOG_TTL" validate:"gte=0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	File       string `yaml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" validate:"gte=0"`
	Compress   bool   `yaml:"compress" envconfig:"COMPRESS"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:           "https://publicreporting.cftc.gov",
			PageSize:          5000,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
			MaxRetries:        0,
			RetryDelay:        time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Migrate: true,
		},
		Cache: CacheConfig{
			ReleaseCadence: 7 * 24 * time.Hour,
			ReleaseLag:     3 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxAgeDays: 28,
			MaxBackups: 5,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration. Later sources win: defaults, the YAML file
// at path (skipped when empty), .env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxAgeDays: c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
	}
}
