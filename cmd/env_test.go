package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/dedup"
	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/monitoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "catalog.db")},
		Firecrawl: config.FirecrawlConfig{Key: "fc-test", BaseURL: "http://127.0.0.1:1"},
		Gateway: config.GatewayConfig{
			RequestsPerMinute:  60,
			MaxAttempts:        2,
			RequestTimeoutSecs: 5,
			InitialBackoffMs:   10,
			MaxBackoffMs:       20,
			CircuitThreshold:   3,
			CircuitResetSecs:   1,
			OnlyMainContent:    true,
			WaitForMs:          250,
		},
		Matching: config.MatchingConfig{
			ExactMatchScore: 100, ResultWithSKUScore: 90, ResultNoSKUScore: 60, FallbackScore: 30, MaxCandidates: 2,
		},
		Enrichment: config.EnrichmentConfig{MaxConcurrent: 4, MinPersistConfidence: 50},
		Dedup: config.DedupConfig{
			PriceThreshold: 0.1, PriceCriticalThreshold: 0.5, NameSimilarity: 0.8, DescriptionSimilarity: 0.5,
			AutoResolve: true, AutoResolveNames: true, AutoResolveCategories: true, AutoResolveDescriptions: true,
		},
		Pricing: config.PricingConfig{Firecrawl: config.FirecrawlPricing{PlanMonthly: 19, CreditsIncluded: 3000}},
	}
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestInitEnv(t *testing.T) {
	env, err := initEnv(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Gateway)
	assert.NotNil(t, env.Matcher)
	assert.NotNil(t, env.Enrichment)
	assert.NotNil(t, env.Dedup)
	assert.Equal(t, "https://www.lf-lighting.example/search?q=1142&type=product", env.Matcher.BuildSearchURL("1142"))
}

func TestInitEnv_RequiresAPIKey(t *testing.T) {
	c := testConfig(t)
	c.Firecrawl.Key = ""

	_, err := initEnv(context.Background(), c)
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "firecrawl.key", ce.Key)
}

func TestInitEnv_BadProfile(t *testing.T) {
	c := testConfig(t)
	c.Manufacturer.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initEnv(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load manufacturer profile")
}

func TestInitStore_Unsupported(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestGatewayConfig(t *testing.T) {
	c := testConfig(t)
	gc := gatewayConfig(c.Gateway, manufacturer.Default())

	assert.Equal(t, 60, gc.RequestsPerMinute)
	assert.Equal(t, 5*time.Second, gc.RequestTimeout)
	assert.Equal(t, 2, gc.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, gc.Retry.InitialBackoff)
	assert.Equal(t, 20*time.Millisecond, gc.Retry.MaxBackoff)
	assert.Equal(t, 3, gc.Circuit.FailureThreshold)
	assert.Equal(t, 250*time.Millisecond, gc.Defaults.WaitFor)
	assert.True(t, gc.Defaults.OnlyMainContent)
	assert.Equal(t, manufacturer.Default().SoftNotFoundPhrases, gc.SoftNotFoundPhrases)
	assert.Equal(t, "https://example.com", gc.HealthCheckURL)
}

func TestMatchingConfig(t *testing.T) {
	mc := matchingConfig(testConfig(t).Matching)
	assert.Equal(t, 100, mc.Scores.ExactMatch)
	assert.Equal(t, 30, mc.Scores.Fallback)
	assert.Equal(t, 2, mc.MaxCandidates)
}

func TestImportLineItemsAndStatus(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	st, err := initStoreOnly(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	path := filepath.Join(t.TempDir(), "invoice.csv")
	require.NoError(t, os.WriteFile(path, []byte("mfg_sku,sku,brand,price\nMFG-001,LF1142,LF Lighting,19.99\nMFG-001,LF1142,LF Lighting,29.99\n,LF0000,LF Lighting,1\n"), 0o644))

	out, err := importLineItems(ctx, dedup.NewFromConfig(st, c.Dedup), path, "b-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Conflicts)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, 4, out.Skipped[0].Row)

	status, err := batchStatus(ctx, st, "b-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalProducts)
	assert.Equal(t, 1, status.Pending)
	require.Len(t, status.Products, 1)
	assert.Equal(t, model.ProductStatusDraft, status.Products[0].Status)
	assert.Empty(t, status.Products[0].Attempts)

	buf := captureStdout(t)
	require.NoError(t, writeJSON(status))
	assert.Contains(t, buf.String(), `"total_products": 1`)
	assert.Contains(t, buf.String(), `"manufacturer_sku": "MFG-001"`)
}

func TestMonitorReportsReviewBacklog(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	st, err := initStoreOnly(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	engine := dedup.NewFromConfig(st, c.Dedup)
	price := func(v float64) *float64 { return &v }
	_, err = engine.ProcessBatch(ctx, []dedup.IncomingProduct{
		{ManufacturerSKU: "MFG-001", SupplierSKU: "LF1142", Manufacturer: "LF Lighting", Price: price(19.99)},
		{ManufacturerSKU: "MFG-001", SupplierSKU: "LF1142", Manufacturer: "LF Lighting", Price: price(29.99)},
	}, "b-1")
	require.NoError(t, err)

	mcfg := config.MonitoringConfig{ReviewBacklogThreshold: 1}
	checker := monitoring.NewChecker(
		monitoring.NewCollector(st, costCalculator(c.Pricing)),
		monitoring.NewAlerter(mcfg),
		mcfg,
		"b-1",
	)
	report, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Snapshot.ProductsTotal)
	assert.Equal(t, 1, report.Snapshot.RequiresReview)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, monitoring.AlertReviewBacklog, report.Alerts[0].Type)
	assert.Zero(t, report.Sent)
}
