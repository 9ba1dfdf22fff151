package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Firecrawl    FirecrawlConfig    `yaml:"firecrawl" mapstructure:"firecrawl"`
	Gateway      GatewayConfig      `yaml:"gateway" mapstructure:"gateway"`
	Manufacturer ManufacturerConfig `yaml:"manufacturer" mapstructure:"manufacturer"`
	Matching     MatchingConfig     `yaml:"matching" mapstructure:"matching"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment" mapstructure:"enrichment"`
	Dedup        DedupConfig        `yaml:"dedup" mapstructure:"dedup"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GatewayConfig controls rate limiting, retries and the circuit breaker
// around the scraping provider.
type GatewayConfig struct {
	RequestsPerMinute     int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts           int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RequestTimeoutSecs    int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	InitialBackoffMs      int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs          int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	CircuitThreshold      int    `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs      int    `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	OnlyMainContent       bool   `yaml:"only_main_content" mapstructure:"only_main_content"`
	WaitForMs             int    `yaml:"wait_for_ms" mapstructure:"wait_for_ms"`
	HealthCheckURL        string `yaml:"health_check_url" mapstructure:"health_check_url"`
	HealthCheckTimeoutSec int    `yaml:"health_check_timeout_secs" mapstructure:"health_check_timeout_secs"`
}

// ManufacturerConfig points at an optional profile file overlaid on the
// built-in profile.
type ManufacturerConfig struct {
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
}

// MatchingConfig holds confidence tiers and candidate limits.
type MatchingConfig struct {
	ExactMatchScore    int `yaml:"exact_match_score" mapstructure:"exact_match_score"`
	ResultWithSKUScore int `yaml:"result_with_sku_score" mapstructure:"result_with_sku_score"`
	ResultNoSKUScore   int `yaml:"result_no_sku_score" mapstructure:"result_no_sku_score"`
	FallbackScore      int `yaml:"fallback_score" mapstructure:"fallback_score"`
	MaxCandidates      int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// EnrichmentConfig controls batch fan-out and the persistence gate.
type EnrichmentConfig struct {
	MaxConcurrent        int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MinPersistConfidence int `yaml:"min_persist_confidence" mapstructure:"min_persist_confidence"`
}

// DedupConfig holds conflict thresholds (fractions, 0..1) and
// auto-resolution switches.
type DedupConfig struct {
	PriceThreshold          float64 `yaml:"price_threshold" mapstructure:"price_threshold"`
	PriceCriticalThreshold  float64 `yaml:"price_critical_threshold" mapstructure:"price_critical_threshold"`
	NameSimilarity          float64 `yaml:"name_similarity" mapstructure:"name_similarity"`
	DescriptionSimilarity   float64 `yaml:"description_similarity" mapstructure:"description_similarity"`
	AutoResolve             bool    `yaml:"auto_resolve" mapstructure:"auto_resolve"`
	AutoResolveNames        bool    `yaml:"auto_resolve_names" mapstructure:"auto_resolve_names"`
	AutoResolveCategories   bool    `yaml:"auto_resolve_categories" mapstructure:"auto_resolve_categories"`
	AutoResolveDescriptions bool    `yaml:"auto_resolve_descriptions" mapstructure:"auto_resolve_descriptions"`
}

// PricingConfig holds provider pricing used for cost estimates.
type PricingConfig struct {
	Firecrawl FirecrawlPricing `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// FirecrawlPricing holds Firecrawl plan pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// MonitoringConfig configures batch alert checks. Zero thresholds disable
// the corresponding alert.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	RateLimitedThreshold   int     `yaml:"rate_limited_threshold" mapstructure:"rate_limited_threshold"`
	ReviewBacklogThreshold int     `yaml:"review_backlog_threshold" mapstructure:"review_backlog_threshold"`
	CostThresholdUSD       float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigurationError reports a missing or invalid setting found at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Load reads configuration from config.yaml, environment variables
// (CATALOG_ prefix) and defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for an optional config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("gateway.requests_per_minute", 30)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.request_timeout_secs", 30)
	v.SetDefault("gateway.initial_backoff_ms", 500)
	v.SetDefault("gateway.max_backoff_ms", 10000)
	v.SetDefault("gateway.circuit_threshold", 5)
	v.SetDefault("gateway.circuit_reset_secs", 60)
	v.SetDefault("gateway.only_main_content", true)
	v.SetDefault("gateway.wait_for_ms", 0)
	v.SetDefault("gateway.health_check_url", "https://example.com")
	v.SetDefault("gateway.health_check_timeout_secs", 15)
	v.SetDefault("manufacturer.profile_path", "")
	v.SetDefault("matching.exact_match_score", 100)
	v.SetDefault("matching.result_with_sku_score", 90)
	v.SetDefault("matching.result_no_sku_score", 60)
	v.SetDefault("matching.fallback_score", 30)
	v.SetDefault("matching.max_candidates", 3)
	v.SetDefault("enrichment.max_concurrent", 5)
	v.SetDefault("enrichment.min_persist_confidence", 50)
	v.SetDefault("dedup.price_threshold", 0.10)
	v.SetDefault("dedup.price_critical_threshold", 0.50)
	v.SetDefault("dedup.name_similarity", 0.80)
	v.SetDefault("dedup.description_similarity", 0.50)
	v.SetDefault("dedup.auto_resolve", true)
	v.SetDefault("dedup.auto_resolve_names", true)
	v.SetDefault("dedup.auto_resolve_categories", true)
	v.SetDefault("dedup.auto_resolve_descriptions", true)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.rate_limited_threshold", 10)
	v.SetDefault("monitoring.review_backlog_threshold", 50)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that would make the service unusable. It
// returns a *ConfigurationError for the first problem found.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Firecrawl.Key) == "":
		return &ConfigurationError{Key: "firecrawl.key", Reason: "API key is required"}
	case c.Store.Driver != "postgres" && c.Store.Driver != "sqlite":
		return &ConfigurationError{Key: "store.driver", Reason: fmt.Sprintf("unsupported driver %q (valid: postgres, sqlite)", c.Store.Driver)}
	case c.Store.Driver == "postgres" && c.Store.DatabaseURL == "":
		return &ConfigurationError{Key: "store.database_url", Reason: "required for postgres"}
	case c.Gateway.RequestsPerMinute <= 0:
		return &ConfigurationError{Key: "gateway.requests_per_minute", Reason: "must be positive"}
	case c.Enrichment.MaxConcurrent < 1 || c.Enrichment.MaxConcurrent > 20:
		return &ConfigurationError{Key: "enrichment.max_concurrent", Reason: "must be between 1 and 20"}
	case c.Enrichment.MinPersistConfidence < 0 || c.Enrichment.MinPersistConfidence > 100:
		return &ConfigurationError{Key: "enrichment.min_persist_confidence", Reason: "must be between 0 and 100"}
	}

	m := c.Matching
	if !(m.ExactMatchScore > m.ResultWithSKUScore && m.ResultWithSKUScore > m.ResultNoSKUScore &&
		m.ResultNoSKUScore > m.FallbackScore && m.FallbackScore >= 0 && m.ExactMatchScore <= 100) {
		return &ConfigurationError{Key: "matching", Reason: "confidence tiers must be strictly decreasing within 0..100"}
	}

	d := c.Dedup
	for key, v := range map[string]float64{
		"dedup.price_threshold":          d.PriceThreshold,
		"dedup.price_critical_threshold": d.PriceCriticalThreshold,
		"dedup.name_similarity":          d.NameSimilarity,
		"dedup.description_similarity":   d.DescriptionSimilarity,
	} {
		if v < 0 || v > 1 {
			return &ConfigurationError{Key: key, Reason: "must be a fraction between 0 and 1"}
		}
	}
	if d.PriceCriticalThreshold < d.PriceThreshold {
		return &ConfigurationError{Key: "dedup.price_critical_threshold", Reason: "must not be below dedup.price_threshold"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
