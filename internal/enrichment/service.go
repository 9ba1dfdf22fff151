// Package enrichment drives product matching across batches with bounded
// concurrency and records every attempt.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/cost"
	"github.com/sells-group/catalog-enrich/internal/matching"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/internal/scrape"
	"github.com/sells-group/catalog-enrich/internal/store"
)

// Batch fan-out bounds. A per-batch concurrency override must fall within
// [MinConcurrent, MaxConcurrentLimit].
const (
	DefaultMaxConcurrent = 5
	MinConcurrent        = 1
	MaxConcurrentLimit   = 20
)

// DefaultMinPersistConfidence is the lowest match confidence (0-100) at
// which scraped fields are written back to the product. Below it the product
// is still marked ready with its score but keeps its stored fields.
const DefaultMinPersistConfidence = 50

// Matcher locates and extracts a product page.
type Matcher interface {
	MatchProduct(ctx context.Context, product model.Product) (*model.EnrichmentData, error)
}

// HealthChecker reports the health of a collaborator.
type HealthChecker interface {
	HealthCheck(ctx context.Context) model.HealthStatus
}

// Config controls batch fan-out and the persistence gate. Scraped fields
// are written only when confidence is at least MinPersistConfidence.
type Config struct {
	MaxConcurrent        int
	MinPersistConfidence int
}

// DefaultConfig returns 5 concurrent products and a persistence gate of 50.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:        DefaultMaxConcurrent,
		MinPersistConfidence: DefaultMinPersistConfidence,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithGateway sets the gateway whose health is reported by HealthCheck.
func WithGateway(g HealthChecker) Option {
	return func(s *Service) { s.gateway = g }
}

// WithCostCalculator sets the calculator used for batch cost estimates.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(s *Service) { s.calc = c }
}

// Service is the enrichment orchestrator. EnrichProduct never fails; every
// outcome is a result, so batch fan-out needs no error handling per task.
type Service struct {
	store   store.Store
	matcher Matcher
	gateway HealthChecker
	calc    *cost.Calculator
	cfg     Config
}

// New creates a Service. Zero config fields take their defaults.
func New(st store.Store, m Matcher, cfg Config, opts ...Option) *Service {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinPersistConfidence == 0 {
		cfg.MinPersistConfidence = DefaultMinPersistConfidence
	}
	s := &Service{
		store:   st,
		matcher: m,
		cfg:     cfg,
		calc:    cost.NewCalculator(cost.DefaultRates()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnrichProduct runs one enrichment attempt for productID. It always
// returns a result; failures set Success=false and ErrorMessage.
func (s *Service) EnrichProduct(ctx context.Context, productID string) model.ProductEnrichmentResult {
	start := time.Now()
	log := zap.L().With(zap.String("product_id", productID))

	p, err := s.store.GetProductByID(ctx, productID)
	switch {
	case err != nil:
		return rejected(productID, start, fmt.Sprintf("load product: %v", err))
	case p == nil:
		return rejected(productID, start, fmt.Sprintf("product %s not found", productID))
	case strings.TrimSpace(p.SupplierSKU) == "":
		return rejected(productID, start, fmt.Sprintf("product %s has no supplier SKU", productID))
	}

	if err := s.store.UpdateProductStatus(ctx, productID, model.ProductStatusProcessing, ""); err != nil {
		return rejected(productID, start, fmt.Sprintf("mark processing: %v", err))
	}

	data, err := s.match(ctx, *p)

	// The attempt outcome is recorded even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		res := s.recordFailure(persistCtx, *p, err, start)
		log.Warn("enrichment: product failed",
			zap.String("supplier_sku", p.SupplierSKU),
			zap.Int64("duration_ms", res.ProcessingTimeMS),
			zap.Error(err),
		)
		return res
	}

	res := s.recordSuccess(persistCtx, *p, data, start)
	log.Debug("enrichment: product enriched",
		zap.Bool("success", res.Success),
		zap.Int("confidence", res.ConfidenceScore),
		zap.Int("credits", res.CreditsUsed),
		zap.Int64("duration_ms", res.ProcessingTimeMS),
	)
	return res
}

// match calls the matcher, converting a panic into an error so the attempt
// is still recorded.
func (s *Service) match(ctx context.Context, p model.Product) (data *model.EnrichmentData, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("matcher panicked: %v", r)
		}
	}()
	data, err = s.matcher.MatchProduct(ctx, p)
	if err == nil && data == nil {
		err = errors.New("matcher returned no data")
	}
	return data, err
}

func (s *Service) recordSuccess(ctx context.Context, p model.Product, data *model.EnrichmentData, start time.Time) model.ProductEnrichmentResult {
	persist := data.ConfidenceScore >= s.cfg.MinPersistConfidence
	status := model.AttemptSuccess
	if !persist {
		status = model.AttemptPartial
	}
	elapsed := time.Since(start).Milliseconds()

	attempt, err := s.store.CreateScrapingAttempt(ctx, model.ScrapingAttempt{
		ProductID:        p.ID,
		Method:           data.Method,
		Status:           status,
		SearchURL:        data.SearchURL,
		ProductURL:       data.ProductURL,
		ConfidenceScore:  data.ConfidenceScore,
		RawResponse:      rawResponses(data.RawResponses),
		CreditsUsed:      data.CreditsUsed,
		ProcessingTimeMS: elapsed,
	})
	if err != nil {
		return s.markFailed(ctx, p.ID, start, data.CreditsUsed, fmt.Sprintf("record attempt: %v", err))
	}

	update := store.EnrichmentUpdate{
		ConfidenceScore: data.ConfidenceScore,
		Status:          model.ProductStatusReady,
		LastAttemptID:   attempt.ID,
	}
	if persist {
		update.Scraped = &store.ScrapedFields{
			Name:          data.Name,
			Description:   data.Description,
			URL:           data.ProductURL,
			Images:        data.ImageURLs,
			ImageMetadata: data.ImageMetadata,
		}
	} else {
		update.ProcessingNotes = fmt.Sprintf("confidence %d below %d, scraped fields not saved",
			data.ConfidenceScore, s.cfg.MinPersistConfidence)
	}
	if err := s.store.UpdateProductEnrichment(ctx, p.ID, update); err != nil {
		res := s.markFailed(ctx, p.ID, start, data.CreditsUsed, fmt.Sprintf("save enrichment: %v", err))
		res.AttemptID = attempt.ID
		return res
	}

	return model.ProductEnrichmentResult{
		ProductID:        p.ID,
		Success:          true,
		AttemptID:        attempt.ID,
		ConfidenceScore:  data.ConfidenceScore,
		Method:           data.Method,
		Data:             data,
		CreditsUsed:      data.CreditsUsed,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}

func (s *Service) recordFailure(ctx context.Context, p model.Product, matchErr error, start time.Time) model.ProductEnrichmentResult {
	msg := failureMessage(matchErr)
	attempt := model.ScrapingAttempt{
		ProductID:        p.ID,
		Method:           model.MethodSearchFirstResult,
		Status:           attemptStatus(matchErr),
		ErrorMessage:     msg,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
	if p.ScrapedURL != "" {
		attempt.Method = model.MethodDirectURL
	}
	if tr := matching.TraceOf(matchErr); tr != nil {
		attempt.SearchURL = tr.SearchURL
		attempt.ProductURL = tr.ProductURL
		attempt.CreditsUsed = tr.CreditsUsed
		attempt.RawResponse = rawResponses(tr.RawResponses)
		if tr.Method != "" {
			attempt.Method = tr.Method
		}
	}

	var attemptID string
	created, err := s.store.CreateScrapingAttempt(ctx, attempt)
	if err != nil {
		zap.L().Error("enrichment: record failed attempt", zap.String("product_id", p.ID), zap.Error(err))
	} else {
		attemptID = created.ID
	}

	res := s.markFailed(ctx, p.ID, start, attempt.CreditsUsed, msg)
	res.AttemptID = attemptID
	res.Method = attempt.Method
	return res
}

func (s *Service) markFailed(ctx context.Context, productID string, start time.Time, credits int, msg string) model.ProductEnrichmentResult {
	if err := s.store.UpdateProductStatus(ctx, productID, model.ProductStatusFailed, msg); err != nil {
		zap.L().Error("enrichment: mark product failed", zap.String("product_id", productID), zap.Error(err))
	}
	return model.ProductEnrichmentResult{
		ProductID:        productID,
		ErrorMessage:     msg,
		CreditsUsed:      credits,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}

// rejected is the result for a product whose attempt never started.
func rejected(productID string, start time.Time, msg string) model.ProductEnrichmentResult {
	zap.L().Warn("enrichment: product rejected", zap.String("product_id", productID), zap.String("reason", msg))
	return model.ProductEnrichmentResult{
		ProductID:        productID,
		ErrorMessage:     msg,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}

func failureMessage(err error) string {
	if matching.IsMatchError(err) || scrape.IsRateLimited(err) || resilience.IsTimeout(err) {
		return err.Error()
	}
	return "unexpected error: " + err.Error()
}

func attemptStatus(err error) model.AttemptStatus {
	switch {
	case scrape.IsRateLimited(err):
		return model.AttemptRateLimited
	case resilience.IsTimeout(err):
		return model.AttemptTimeout
	}
	return model.AttemptFailed
}

// rawResponses encodes the raw provider payloads as one JSON object keyed
// by request kind.
func rawResponses(raw map[string]json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
