package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COT_CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://publicreporting.cftc.gov", cfg.Remote.BaseURL)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.ReleaseCadence)
	assert.Equal(t, 3*24*time.Hour, cfg.Cache.ReleaseLag)
	assert.Zero(t, cfg.Cache.CatalogTTL)
	assert.Zero(t, cfg.Remote.MaxRetries, "transport failures surface without retries unless configured")
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
remote:
  page_size: 1000
  app_token: from-file
cache:
  catalog_ttl: 24h
  release_lag: 72h
logging:
  level: debug
`)
	t.Setenv("COT_REMOTE_APP_TOKEN", "from-env")
	t.Setenv("COT_SERVER_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Remote.PageSize)
	assert.Equal(t, "from-env", cfg.Remote.AppToken)
	assert.Equal(t, 24*time.Hour, cfg.Cache.CatalogTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5000, Default().Remote.PageSize, "defaults must not be shared")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COT_LOGGING_FORMAT=text\n"), 0o600))
	t.Setenv("COT_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	t.Cleanup(func() { os.Unsetenv("COT_LOGGING_FORMAT") })
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "server:\n  addr: \":7070\"\n")
	t.Setenv("COT_CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"clickhouse without dsn", func(c *Config) {
			c.Storage.Backend = "clickhouse"
			c.Storage.PostgresDSN = "postgres://localhost/cot"
		}},
		{"bad base url", func(c *Config) { c.Remote.BaseURL = "not a url" }},
		{"zero page size", func(c *Config) { c.Remote.PageSize = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.CatalogTTL = -time.Second }},
		{"zero release lag", func(c *Config) { c.Cache.ReleaseLag = 0 }},
		{"zero release cadence", func(c *Config) { c.Cache.ReleaseCadence = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Storage.Backend = "clickhouse"
	cfg.Storage.PostgresDSN = "postgres://localhost/cot"
	cfg.Storage.ClickhouseDSN = "clickhouse://localhost:9000/cot"
	assert.NoError(t, cfg.Validate())
}

func TestLoggingOptions(t *testing.T) {
	cfg := Default()
	cfg.Logging.File = "/var/log/cot.log"

	opts := cfg.LoggingOptions()
	assert.Equal(t, "info", opts.Level)
	assert.Equal(t, "/var/log/cot.log", opts.File)
	assert.Equal(t, 100, opts.MaxSizeMB)
}
