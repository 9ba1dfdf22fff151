package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/cost"
	"github.com/sells-group/catalog-enrich/internal/dedup"
	"github.com/sells-group/catalog-enrich/internal/enrichment"
	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/matching"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/internal/scrape"
	"github.com/sells-group/catalog-enrich/internal/store"
	"github.com/sells-group/catalog-enrich/pkg/firecrawl"
)

// appEnv holds the process-scoped services built from config.
type appEnv struct {
	Store      store.Store
	Gateway    *scrape.FirecrawlGateway
	Matcher    *matching.Matcher
	Enrichment *enrichment.Service
	Dedup      *dedup.Engine
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config, opens and migrates the store, and wires the
// gateway, matcher, orchestrator and dedup engine. Callers should defer
// env.Close().
func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	profile, err := loadProfile(c.Manufacturer)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
	gw := scrape.New(client, gatewayConfig(c.Gateway, profile))

	m, err := matching.New(gw, profile, matchingConfig(c.Matching))
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init matcher")
	}

	calc := costCalculator(c.Pricing)
	svc := enrichment.New(st, m, enrichment.Config{
		MaxConcurrent:        c.Enrichment.MaxConcurrent,
		MinPersistConfidence: c.Enrichment.MinPersistConfidence,
	}, enrichment.WithGateway(gw), enrichment.WithCostCalculator(calc))

	return &appEnv{
		Store:      st,
		Gateway:    gw,
		Matcher:    m,
		Enrichment: svc,
		Dedup:      dedup.NewFromConfig(st, c.Dedup),
	}, nil
}

// initStoreOnly opens and migrates the store without requiring provider
// credentials.
func initStoreOnly(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s (valid: postgres, sqlite)", c.Driver)
	}
}

func loadProfile(c config.ManufacturerConfig) (*manufacturer.Profile, error) {
	if c.ProfilePath == "" {
		return manufacturer.Default(), nil
	}
	p, err := manufacturer.Load(c.ProfilePath)
	if err != nil {
		return nil, eris.Wrap(err, "load manufacturer profile")
	}
	return p, nil
}

func gatewayConfig(c config.GatewayConfig, p *manufacturer.Profile) scrape.Config {
	gc := scrape.DefaultConfig()
	gc.RequestsPerMinute = c.RequestsPerMinute
	if c.RequestTimeoutSecs > 0 {
		gc.RequestTimeout = time.Duration(c.RequestTimeoutSecs) * time.Second
	}
	gc.Retry = resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs)
	gc.Circuit = resilience.FromCircuitConfig(c.CircuitThreshold, c.CircuitResetSecs)
	if c.HealthCheckURL != "" {
		gc.HealthCheckURL = c.HealthCheckURL
	}
	if c.HealthCheckTimeoutSec > 0 {
		gc.HealthCheckTimeout = time.Duration(c.HealthCheckTimeoutSec) * time.Second
	}
	gc.SoftNotFoundPhrases = p.SoftNotFoundPhrases
	gc.Defaults.OnlyMainContent = c.OnlyMainContent
	gc.Defaults.WaitFor = time.Duration(c.WaitForMs) * time.Millisecond
	return gc
}

func matchingConfig(c config.MatchingConfig) matching.Config {
	return matching.Config{
		Scores: matching.Scores{
			ExactMatch:    c.ExactMatchScore,
			ResultWithSKU: c.ResultWithSKUScore,
			ResultNoSKU:   c.ResultNoSKUScore,
			Fallback:      c.FallbackScore,
		},
		MaxCandidates: c.MaxCandidates,
	}
}

func costCalculator(p config.PricingConfig) *cost.Calculator {
	return cost.NewCalculator(cost.Rates{Firecrawl: cost.FirecrawlRate{
		PlanMonthly:     p.Firecrawl.PlanMonthly,
		CreditsIncluded: p.Firecrawl.CreditsIncluded,
	}})
}
