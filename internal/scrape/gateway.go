// Package scrape is the rate-limited gateway to the rendering provider.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/pkg/firecrawl"
)

// Options tunes a single scrape.
type Options struct {
	Formats         []string
	OnlyMainContent bool
	WaitFor         time.Duration
}

// Result is a rendered page, or a classified failure with Success=false.
type Result struct {
	URL              string          `json:"url"`
	Success          bool            `json:"success"`
	Content          string          `json:"content"`
	Markdown         string          `json:"markdown"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	CreditsUsed      int             `json:"credits_used"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	StatusCode       int             `json:"status_code"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// Text returns the markdown rendering when present, else the HTML.
func (r *Result) Text() string {
	if r.Markdown != "" {
		return r.Markdown
	}
	return r.Content
}

// Gateway turns a URL into rendered content.
//
// Scrape returns an error for transport and provider failures
// (*RateLimitError, *firecrawl.APIError, resilience.ErrCircuitOpen). Pages
// that render as not-found or blocked come back as a Result with
// Success=false.
type Gateway interface {
	Scrape(ctx context.Context, url string, opts Options) (*Result, error)
	HealthCheck(ctx context.Context) model.HealthStatus
}

// Config holds gateway settings.
type Config struct {
	RequestsPerMinute   int
	RequestTimeout      time.Duration
	Retry               resilience.RetryConfig
	Circuit             resilience.CircuitBreakerConfig
	HealthCheckURL      string
	HealthCheckTimeout  time.Duration
	SoftNotFoundPhrases []string
	Defaults            Options
}

// DefaultConfig returns 30 requests/minute, a 30s request timeout and
// three attempts.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:  30,
		RequestTimeout:     30 * time.Second,
		Retry:              resilience.DefaultRetryConfig(),
		Circuit:            resilience.DefaultCircuitBreakerConfig(),
		HealthCheckURL:     "https://example.com",
		HealthCheckTimeout: 15 * time.Second,
		Defaults: Options{
			Formats:         []string{"markdown", "html"},
			OnlyMainContent: true,
		},
	}
}

// FirecrawlGateway implements Gateway over the Firecrawl scrape API. One
// instance is shared by all callers so the rate budget holds across
// concurrent enrichments.
type FirecrawlGateway struct {
	client  firecrawl.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// New creates a FirecrawlGateway.
func New(client firecrawl.Client, cfg Config) *FirecrawlGateway {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.HealthCheckURL == "" {
		cfg.HealthCheckURL = def.HealthCheckURL
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if len(cfg.Defaults.Formats) == 0 {
		cfg.Defaults.Formats = def.Defaults.Formats
	}

	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = def.Retry.MaxBackoff
	}
	cfg.Retry.ShouldRetry = isRetryable
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	}
	cfg.Circuit.ShouldTrip = isRetryable
	cfg.Circuit.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("scrape: circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &FirecrawlGateway{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
	}
}

// Scrape fetches and renders targetURL.
func (g *FirecrawlGateway) Scrape(ctx context.Context, targetURL string, opts Options) (*Result, error) {
	start := time.Now()
	req := g.buildRequest(targetURL, opts)

	var retryAfter time.Duration
	resp, err := resilience.DoVal(ctx, g.cfg.Retry, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		if retryAfter > 0 {
			if err := sleepCtx(ctx, min(retryAfter, g.cfg.Retry.MaxBackoff)); err != nil {
				return nil, err
			}
			retryAfter = 0
		}
		resp, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
			return g.scrapeOnce(ctx, req)
		})
		var rl *RateLimitError
		if errors.As(err, &rl) {
			retryAfter = rl.RetryAfter
		}
		return resp, err
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		zap.L().Debug("scrape: request failed",
			zap.String("url", targetURL),
			zap.Int64("duration_ms", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	result := g.toResult(targetURL, resp)
	result.ProcessingTimeMS = elapsed
	return result, nil
}

func (g *FirecrawlGateway) buildRequest(targetURL string, opts Options) firecrawl.ScrapeRequest {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = g.cfg.Defaults.Formats
	}
	onlyMain := opts.OnlyMainContent || g.cfg.Defaults.OnlyMainContent
	waitFor := opts.WaitFor
	if waitFor == 0 {
		waitFor = g.cfg.Defaults.WaitFor
	}
	return firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         formats,
		OnlyMainContent: onlyMain,
		WaitFor:         int(waitFor.Milliseconds()),
		Timeout:         int(g.cfg.RequestTimeout.Milliseconds()),
	}
}

func (g *FirecrawlGateway) scrapeOnce(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scrape: rate limiter wait")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.client.Scrape(attemptCtx, req)
	if err != nil {
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitError{RetryAfter: apiErr.RetryAfter, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

func (g *FirecrawlGateway) toResult(targetURL string, resp *firecrawl.ScrapeResponse) *Result {
	md := resp.Data.Metadata
	result := &Result{
		URL:         targetURL,
		Success:     resp.Success,
		Content:     resp.Data.HTML,
		Markdown:    resp.Data.Markdown,
		Metadata:    decodeMetadata(resp.Raw),
		Raw:         resp.Raw,
		CreditsUsed: 1,
		StatusCode:  md.StatusCode,
	}
	if md.CreditsUsed != nil {
		result.CreditsUsed = *md.CreditsUsed
	}
	if md.SourceURL != "" {
		result.URL = md.SourceURL
	}

	if !resp.Success {
		result.ErrorMessage = resp.Error
		if result.ErrorMessage == "" {
			result.ErrorMessage = "provider reported an unsuccessful scrape"
		}
		return result
	}

	text := result.Text()
	if blocked, kind := DetectBlock(text); blocked {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("blocked by bot protection (%s)", kind)
		return result
	}
	if md.StatusCode == http.StatusNotFound || DetectNotFound(text, g.cfg.SoftNotFoundPhrases) {
		result.Success = false
		result.StatusCode = http.StatusNotFound
		result.ErrorMessage = NotFoundMessage
	}
	return result
}

// HealthCheck scrapes the configured probe URL once without retries. It
// never panics; any failure is reported as an unhealthy status.
func (g *FirecrawlGateway) HealthCheck(ctx context.Context) (status model.HealthStatus) {
	start := time.Now()
	status = model.HealthStatus{
		Service: "firecrawl",
		Status:  model.HealthUnhealthy,
		Details: map[string]any{
			"api_accessible":      false,
			"circuit_state":       g.breaker.State().String(),
			"requests_per_minute": g.cfg.RequestsPerMinute,
		},
	}
	defer func() {
		if r := recover(); r != nil {
			status.Status = model.HealthUnhealthy
			status.Error = fmt.Sprintf("health check panicked: %v", r)
		}
		status.ResponseTimeMS = time.Since(start).Milliseconds()
	}()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.HealthCheckTimeout)
	defer cancel()

	resp, err := g.scrapeOnce(ctx, firecrawl.ScrapeRequest{
		URL:     g.cfg.HealthCheckURL,
		Formats: []string{"markdown"},
	})
	if err != nil {
		status.Error = err.Error()
		return status
	}
	if !resp.Success {
		status.Error = "provider reported an unsuccessful scrape"
		return status
	}

	status.Status = model.HealthHealthy
	status.Details["api_accessible"] = true
	return status
}

// CircuitState reports the breaker state.
func (g *FirecrawlGateway) CircuitState() resilience.CircuitState {
	return g.breaker.State()
}

// isRetryable limits retries to rate limiting and network-level failures.
// Other provider errors are permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return resilience.IsTransient(err)
}

func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var envelope struct {
		Data struct {
			Metadata map[string]any `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	return envelope.Data.Metadata
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
