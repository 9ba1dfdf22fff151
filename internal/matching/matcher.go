// Package matching resolves a catalog product to its manufacturer product
// page: SKU extraction, site search, candidate scraping and confidence
// scoring.
package matching

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/manufacturer"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/scrape"
)

// DefaultMaxCandidates is how many search results are tried per match.
const DefaultMaxCandidates = 3

// Config tunes the matcher.
type Config struct {
	Scores        Scores
	MaxCandidates int
	SearchOptions scrape.Options
	PageOptions   scrape.Options
}

// Matcher resolves products against one manufacturer profile.
type Matcher struct {
	gateway scrape.Gateway
	profile *manufacturer.Profile
	base    *url.URL
	paths   *PathMatcher
	cfg     Config
}

// New creates a Matcher. The profile must be compiled.
func New(gateway scrape.Gateway, profile *manufacturer.Profile, cfg Config) (*Matcher, error) {
	if profile == nil || profile.SKURegexp() == nil {
		return nil, eris.New("matching: profile is not compiled")
	}
	base, err := url.Parse(profile.BaseURL)
	if err != nil || base.Host == "" {
		return nil, eris.Errorf("matching: invalid base url %q", profile.BaseURL)
	}
	if cfg.Scores == (Scores{}) {
		cfg.Scores = DefaultScores()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	return &Matcher{
		gateway: gateway,
		profile: profile,
		base:    base,
		paths:   NewPathMatcher(profile.ProductPathPatterns),
		cfg:     cfg,
	}, nil
}

// ExtractNumericSKU applies the matcher's profile to sku.
func (m *Matcher) ExtractNumericSKU(sku string) (string, bool) {
	return ExtractNumericSKU(m.profile, sku)
}

// BuildSearchURL builds the site search URL for a numeric SKU.
func (m *Matcher) BuildSearchURL(numeric string) string {
	return BuildSearchURL(m.profile, numeric)
}

// CalculateConfidence scores a match with the matcher's tiers.
func (m *Matcher) CalculateConfidence(originalSKU, foundSKU string, resultCount int, method model.AttemptMethod) int {
	return CalculateConfidence(m.profile, m.cfg.Scores, originalSKU, foundSKU, resultCount, method)
}

// MatchProduct resolves product to enrichment data. Failures are
// *SKUExtractionError, *SearchError or *ScrapingError; the latter two carry
// a Trace.
func (m *Matcher) MatchProduct(ctx context.Context, product model.Product) (*model.EnrichmentData, error) {
	start := time.Now()
	log := zap.L().With(zap.String("product_id", product.ID), zap.String("supplier_sku", product.SupplierSKU))

	numeric, ok := m.ExtractNumericSKU(product.SupplierSKU)
	if !ok {
		return nil, &SKUExtractionError{SKU: product.SupplierSKU}
	}

	trace := &Trace{Method: model.MethodSearchFirstResult}

	if product.ScrapedURL != "" {
		trace.Method = model.MethodDirectURL
		data, err := m.tryCandidates(ctx, product, []string{product.ScrapedURL}, 1, trace)
		if err == nil {
			data.ProcessingTimeMS = time.Since(start).Milliseconds()
			return data, nil
		}
		log.Debug("matching: direct url failed, searching", zap.String("url", product.ScrapedURL), zap.Error(err))
		trace.Method = model.MethodSearchFirstResult
	}

	searchURL := m.BuildSearchURL(numeric)
	trace.SearchURL = searchURL

	results, err := m.SearchProducts(ctx, searchURL)
	if err != nil {
		var se *SearchError
		if errors.As(err, &se) {
			se.Trace = mergeTrace(trace, se.Trace)
		}
		return nil, err
	}
	trace.CreditsUsed += results.CreditsUsed
	trace.addRaw("search", results.Raw)
	trace.Method = results.Method

	if results.Count == 0 {
		return nil, &SearchError{URL: searchURL, Trace: trace}
	}

	candidates := results.Links
	if len(candidates) > m.cfg.MaxCandidates {
		candidates = candidates[:m.cfg.MaxCandidates]
	}

	data, err := m.tryCandidates(ctx, product, candidates, results.ResultCount, trace)
	if err != nil {
		return nil, err
	}
	data.ProcessingTimeMS = time.Since(start).Milliseconds()

	log.Debug("matching: product matched",
		zap.String("url", data.ProductURL),
		zap.Int("confidence", data.ConfidenceScore),
		zap.String("method", string(data.Method)),
	)
	return data, nil
}

// tryCandidates scrapes candidates in order and returns the first usable
// page. Not-found pages and gateway errors move on to the next candidate.
func (m *Matcher) tryCandidates(ctx context.Context, product model.Product, candidates []string, resultCount int, trace *Trace) (*model.EnrichmentData, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		res, err := m.gateway.Scrape(ctx, candidate, m.cfg.PageOptions)
		if err != nil {
			lastErr, lastStatus = err, 0
			zap.L().Debug("matching: candidate scrape failed",
				zap.String("url", candidate), zap.Int("candidate", i+1), zap.Error(err))
			continue
		}
		trace.CreditsUsed += res.CreditsUsed
		if !res.Success {
			lastErr, lastStatus = eris.New(res.ErrorMessage), res.StatusCode
			zap.L().Debug("matching: candidate unusable",
				zap.String("url", candidate), zap.Int("candidate", i+1), zap.String("reason", res.ErrorMessage))
			continue
		}

		trace.ProductURL = candidate
		trace.addRaw("product", res.Raw)

		page := ParseProductPage(m.profile, candidate, res.Content, res.Markdown)
		return &model.EnrichmentData{
			SearchURL:       trace.SearchURL,
			ProductURL:      candidate,
			Name:            page.Name,
			Description:     page.Description,
			PageSKU:         page.SKU,
			ImageURLs:       page.ImageURLs,
			ImageMetadata:   page.Images,
			ConfidenceScore: m.CalculateConfidence(product.SupplierSKU, page.SKU, resultCount, trace.Method),
			Method:          trace.Method,
			RawResponses:    trace.RawResponses,
			CreditsUsed:     trace.CreditsUsed,
		}, nil
	}

	return nil, &ScrapingError{
		URL:        candidates[0],
		StatusCode: lastStatus,
		Err:        lastErr,
		Trace:      trace,
	}
}

func mergeTrace(into, from *Trace) *Trace {
	if from == nil {
		return into
	}
	into.CreditsUsed += from.CreditsUsed
	for k, v := range from.RawResponses {
		into.addRaw(k, v)
	}
	return into
}
