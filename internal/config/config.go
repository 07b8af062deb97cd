// Package config loads the immutable process configuration.
//
// Sources are applied in order: defaults, optional YAML file, .env file
// (never overriding the real environment), environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Retry policies applied between cycles.
const (
	RetryInterval = "interval"
	RetryBackoff  = "backoff"
)

// Config is read once at start and never mutated afterwards.
type Config struct {
	CoinID       string        `yaml:"coin_id"`
	VSCurrency   string        `yaml:"vs_currency"`
	LookbackDays int           `yaml:"lookback_days"`
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Storage   StorageConfig   `yaml:"storage"`
	Lock      LockConfig      `yaml:"lock"`
	Retry     RetryConfig     `yaml:"retry"`
	Logging   LoggingConfig   `yaml:"logging"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// CoinGeckoConfig configures the upstream client.
type CoinGeckoConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// StorageConfig selects and addresses the raw and feature stores.
type StorageConfig struct {
	RawBackend     string `yaml:"raw_backend"`
	FeatureBackend string `yaml:"feature_backend"`
	DatabaseURL    string `yaml:"database_url"`
	ClickHouseDSN  string `yaml:"clickhouse_dsn"`
	SQLitePath     string `yaml:"sqlite_path"`
	Migrate        bool   `yaml:"migrate"`
}

// LockConfig configures the cycle lock. An empty RedisAddr selects a
// process-local lock.
type LockConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

// RetryConfig selects the delay policy between cycles.
type RetryConfig struct {
	Policy   string        `yaml:"policy"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CoinID:       "bitcoin",
		VSCurrency:   "usd",
		LookbackDays: 7,
		Interval:     time.Hour,
		FetchTimeout: 30 * time.Second,
		CoinGecko: CoinGeckoConfig{
			BaseURL:       "https://api.coingecko.com/api/v3",
			RatePerMinute: 30,
		},
		Storage: StorageConfig{
			RawBackend: BackendMemory,
			SQLitePath: "pipeline.db",
			Migrate:    true,
		},
		Lock: LockConfig{
			Key: "crypto-feature-pipeline:cycle",
			TTL: 10 * time.Minute,
		},
		Retry: RetryConfig{
			Policy:   RetryInterval,
			MaxDelay: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MetricsAddr: ":8000",
	}
}

// Load builds a Config from defaults, the YAML file at path (optional),
// envFile (optional) and the process environment, then validates it.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Storage.FeatureBackend == "" {
		cfg.Storage.FeatureBackend = cfg.Storage.RawBackend
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with environment variables.
func applyEnv(cfg *Config) error {
	setString(&cfg.CoinID, "COINGECKO_SYMBOL")
	setString(&cfg.VSCurrency, "COINGECKO_VS_CURRENCY")
	setString(&cfg.CoinGecko.BaseURL, "COINGECKO_BASE_URL")
	setString(&cfg.CoinGecko.APIKey, "COINGECKO_API_KEY")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Storage.RawBackend, "STORE_BACKEND")
	setString(&cfg.Storage.FeatureBackend, "FEATURE_BACKEND")
	setString(&cfg.Lock.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Lock.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.Retry.Policy, "RETRY_POLICY")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Output, "LOG_OUTPUT")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")

	if err := setInt(&cfg.LookbackDays, "COINGECKO_DAYS"); err != nil {
		return err
	}
	if err := setInt(&cfg.CoinGecko.RatePerMinute, "COINGECKO_RATE_PER_MINUTE"); err != nil {
		return err
	}
	if err := setSeconds(&cfg.Interval, "INGEST_INTERVAL_SECONDS"); err != nil {
		return err
	}
	if err := setSeconds(&cfg.FetchTimeout, "FETCH_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setBool(&cfg.Storage.Migrate, "STORE_MIGRATE"); err != nil {
		return err
	}
	return nil
}

// Validate checks that cfg is usable.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.CoinID) == "" {
		errs = append(errs, errors.New("coin id is required"))
	}
	if c.LookbackDays <= 0 {
		errs = append(errs, fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}

	switch c.Storage.RawBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown raw backend %q", c.Storage.RawBackend))
	}

	switch c.Storage.FeatureBackend {
	case "", BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres feature backend"))
		}
	case BackendClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			errs = append(errs, errors.New("CLICKHOUSE_DSN is required for the clickhouse feature backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feature backend %q", c.Storage.FeatureBackend))
	}

	switch c.Retry.Policy {
	case RetryInterval, RetryBackoff:
	default:
		errs = append(errs, fmt.Errorf("unknown retry policy %q", c.Retry.Policy))
	}

	if c.Lock.RedisAddr != "" && c.Lock.TTL <= 0 {
		errs = append(errs, errors.New("lock ttl must be positive when redis is configured"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setSeconds(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = time.Duration(secs * float64(time.Second))
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}
