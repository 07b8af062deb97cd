package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"COINGECKO_SYMBOL", "COINGECKO_VS_CURRENCY", "COINGECKO_BASE_URL", "COINGECKO_API_KEY",
	"COINGECKO_DAYS", "COINGECKO_RATE_PER_MINUTE", "INGEST_INTERVAL_SECONDS", "FETCH_TIMEOUT_SECONDS",
	"DATABASE_URL", "CLICKHOUSE_DSN", "SQLITE_PATH", "STORE_BACKEND", "FEATURE_BACKEND", "STORE_MIGRATE",
	"REDIS_ADDR", "REDIS_PASSWORD", "RETRY_POLICY", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "METRICS_ADDR",
}

// unsetEnv removes every recognised variable for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "bitcoin", cfg.CoinID)
	assert.Equal(t, "usd", cfg.VSCurrency)
	assert.Equal(t, 7, cfg.LookbackDays)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, BackendMemory, cfg.Storage.RawBackend)
	assert.Equal(t, BackendMemory, cfg.Storage.FeatureBackend)
	assert.Equal(t, RetryInterval, cfg.Retry.Policy)
	assert.Equal(t, ":8000", cfg.MetricsAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	unsetEnv(t)
	t.Setenv("COINGECKO_SYMBOL", "ethereum")
	t.Setenv("COINGECKO_DAYS", "30")
	t.Setenv("INGEST_INTERVAL_SECONDS", "600")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("FEATURE_BACKEND", "clickhouse")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/prices")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/features")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "ethereum", cfg.CoinID)
	assert.Equal(t, 30, cfg.LookbackDays)
	assert.Equal(t, 10*time.Minute, cfg.Interval)
	assert.Equal(t, BackendPostgres, cfg.Storage.RawBackend)
	assert.Equal(t, BackendClickHouse, cfg.Storage.FeatureBackend)
}

func TestLoad_YAMLFile(t *testing.T) {
	unsetEnv(t)
	path := writeFile(t, "pipeline.yaml", `
coin_id: ethereum
lookback_days: 14
interval: 15m
storage:
  raw_backend: sqlite
  sqlite_path: /tmp/prices.db
retry:
  policy: backoff
  max_delay: 2h
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "ethereum", cfg.CoinID)
	assert.Equal(t, 14, cfg.LookbackDays)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, BackendSQLite, cfg.Storage.RawBackend)
	assert.Equal(t, BackendSQLite, cfg.Storage.FeatureBackend)
	assert.Equal(t, "/tmp/prices.db", cfg.Storage.SQLitePath)
	assert.Equal(t, RetryBackoff, cfg.Retry.Policy)
	assert.Equal(t, 2*time.Hour, cfg.Retry.MaxDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields keep their defaults
	assert.Equal(t, "usd", cfg.VSCurrency)
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	unsetEnv(t)
	path := writeFile(t, "pipeline.yaml", "coin_id: ethereum\n")
	t.Setenv("COINGECKO_SYMBOL", "bitcoin")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", cfg.CoinID)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	unsetEnv(t)
	envFile := writeFile(t, ".env", "COINGECKO_SYMBOL=cardano\nCOINGECKO_DAYS=3\n")
	t.Setenv("COINGECKO_DAYS", "10")

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "cardano", cfg.CoinID)
	assert.Equal(t, 10, cfg.LookbackDays)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	unsetEnv(t)

	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"days not a number", "COINGECKO_DAYS", "seven"},
		{"negative days", "COINGECKO_DAYS", "-1"},
		{"zero interval", "INGEST_INTERVAL_SECONDS", "0"},
		{"unknown backend", "STORE_BACKEND", "mongo"},
		{"postgres without dsn", "STORE_BACKEND", "postgres"},
		{"clickhouse without dsn", "FEATURE_BACKEND", "clickhouse"},
		{"unknown retry policy", "RETRY_POLICY", "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("", "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingYAMLFile(t *testing.T) {
	unsetEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}
