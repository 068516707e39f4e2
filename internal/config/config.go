// Package config loads the browser configuration from the environment.
// A .env file in the working directory is read first when present;
// variables already set in the environment take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/api"
	"github.com/Sternrassler/catalog-browser/pkg/batch"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/Sternrassler/catalog-browser/pkg/retry"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "CATALOG"

// ErrNoCredential is returned when neither a token nor a password is set.
var ErrNoCredential = errors.New("one of CATALOG_API_TOKEN or CATALOG_API_PASSWORD is required")

// APIConfig configures the remote catalog API.
type APIConfig struct {
	URL      string        `envconfig:"API_URL" required:"true"`
	Password string        `envconfig:"API_PASSWORD"`
	Token    string        `envconfig:"API_TOKEN"`
	Timeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// RetryConfig configures automatic reloads.
type RetryConfig struct {
	MaxAttempts    int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"30s"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	File   string `envconfig:"LOG_FILE" default:"catalog.log"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Config is the complete browser configuration. The sections are embedded
// so that every variable carries the plain CATALOG_ prefix.
type Config struct {
	APIConfig

	PageSize         int `envconfig:"PAGE_SIZE" default:"50"`
	BatchSize        int `envconfig:"BATCH_SIZE" default:"100"`
	BatchConcurrency int `envconfig:"BATCH_CONCURRENCY" default:"4"`

	RetryConfig

	// RedisURL enables the shared retry budget, e.g. redis://localhost:6379/0.
	RedisURL string `envconfig:"REDIS_URL"`
	// MetricsAddr enables the /metrics and /health endpoints, e.g. :9090.
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	LogConfig
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if c.APIConfig.URL == "" {
		return errors.New("CATALOG_API_URL is required")
	}
	if c.APIConfig.Token == "" && c.APIConfig.Password == "" {
		return ErrNoCredential
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be positive (got %d)", c.PageSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("CATALOG_BATCH_SIZE must be positive (got %d)", c.BatchSize)
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("CATALOG_BATCH_CONCURRENCY must be positive (got %d)", c.BatchConcurrency)
	}
	if c.RetryConfig.MaxAttempts < 0 {
		return fmt.Errorf("CATALOG_RETRY_MAX_ATTEMPTS must not be negative (got %d)", c.RetryConfig.MaxAttempts)
	}
	return nil
}

// Credential returns the static token when set, otherwise the dated password.
func (c Config) Credential() api.Credential {
	if c.APIConfig.Token != "" {
		return api.StaticToken(c.APIConfig.Token)
	}
	return api.DatedPassword(c.APIConfig.Password)
}

// Client returns the API client configuration.
func (c Config) Client() api.Config {
	cfg := api.DefaultConfig(c.APIConfig.URL, c.Credential())
	cfg.Timeout = c.APIConfig.Timeout
	return cfg
}

// Batch returns the chunked fetch configuration.
func (c Config) Batch() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.ChunkSize = c.BatchSize
	cfg.MaxConcurrency = c.BatchConcurrency
	return cfg
}

// RetryPolicy returns the automatic reload policy.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.RetryConfig.MaxAttempts
	p.InitialBackoff = c.RetryConfig.InitialBackoff
	p.MaxBackoff = c.RetryConfig.MaxBackoff
	return p
}

// Logging returns the logger configuration. Output is opened by the caller.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogConfig.Level)
	cfg.Pretty = c.LogConfig.Pretty
	cfg.File = c.LogConfig.File
	return cfg
}
