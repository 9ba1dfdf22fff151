package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Firecrawl.BaseURL)
	assert.Equal(t, 30, cfg.Gateway.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 30, cfg.Gateway.RequestTimeoutSecs)
	assert.Equal(t, 500, cfg.Gateway.InitialBackoffMs)
	assert.True(t, cfg.Gateway.OnlyMainContent)
	assert.Equal(t, 100, cfg.Matching.ExactMatchScore)
	assert.Equal(t, 90, cfg.Matching.ResultWithSKUScore)
	assert.Equal(t, 60, cfg.Matching.ResultNoSKUScore)
	assert.Equal(t, 30, cfg.Matching.FallbackScore)
	assert.Equal(t, 3, cfg.Matching.MaxCandidates)
	assert.Equal(t, 5, cfg.Enrichment.MaxConcurrent)
	assert.Equal(t, 50, cfg.Enrichment.MinPersistConfidence)
	assert.InDelta(t, 0.10, cfg.Dedup.PriceThreshold, 0.0001)
	assert.InDelta(t, 0.50, cfg.Dedup.PriceCriticalThreshold, 0.0001)
	assert.InDelta(t, 0.80, cfg.Dedup.NameSimilarity, 0.0001)
	assert.InDelta(t, 0.50, cfg.Dedup.DescriptionSimilarity, 0.0001)
	assert.True(t, cfg.Dedup.AutoResolve)
	assert.InDelta(t, 19.00, cfg.Pricing.Firecrawl.PlanMonthly, 0.001)
	assert.InDelta(t, 3000, cfg.Pricing.Firecrawl.CreditsIncluded, 0.001)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.0001)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: catalog.db
firecrawl:
  key: fc-test
gateway:
  requests_per_minute: 60
enrichment:
  max_concurrent: 8
dedup:
  auto_resolve: false
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "fc-test", cfg.Firecrawl.Key)
	assert.Equal(t, 60, cfg.Gateway.RequestsPerMinute)
	assert.Equal(t, 8, cfg.Enrichment.MaxConcurrent)
	assert.False(t, cfg.Dedup.AutoResolve)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Matching.MaxCandidates)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("CATALOG_LOG_LEVEL", "warn")
	t.Setenv("CATALOG_FIRECRAWL_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Firecrawl.Key)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFileExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\nlog:\n  format: console\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileMissingPath(t *testing.T) {
	chdirTemp(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Firecrawl.Key = "fc-test"
	cfg.Store.DatabaseURL = "postgres://localhost/catalog"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing api key", func(c *Config) { c.Firecrawl.Key = " " }, "firecrawl.key"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url"},
		{"sqlite without url", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.DatabaseURL = "" }, ""},
		{"zero rate", func(c *Config) { c.Gateway.RequestsPerMinute = 0 }, "gateway.requests_per_minute"},
		{"concurrency too high", func(c *Config) { c.Enrichment.MaxConcurrent = 21 }, "enrichment.max_concurrent"},
		{"concurrency zero", func(c *Config) { c.Enrichment.MaxConcurrent = 0 }, "enrichment.max_concurrent"},
		{"persist gate out of range", func(c *Config) { c.Enrichment.MinPersistConfidence = 101 }, "enrichment.min_persist_confidence"},
		{"tiers out of order", func(c *Config) { c.Matching.ResultNoSKUScore = 95 }, "matching"},
		{"tier above 100", func(c *Config) { c.Matching.ExactMatchScore = 120 }, "matching"},
		{"price threshold above 1", func(c *Config) { c.Dedup.PriceThreshold = 10 }, "dedup.price_threshold"},
		{"critical below major", func(c *Config) { c.Dedup.PriceCriticalThreshold = 0.05 }, "dedup.price_critical_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantKey == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestConfigurationError_Error(t *testing.T) {
	err := &ConfigurationError{Key: "firecrawl.key", Reason: "API key is required"}
	assert.Equal(t, "config: firecrawl.key: API key is required", err.Error())
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
