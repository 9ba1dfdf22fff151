// Package monitoring collects enrichment metrics from the store and raises
// webhook alerts when they cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/cost"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

// MetricsSnapshot holds a point-in-time view of enrichment activity.
type MetricsSnapshot struct {
	BatchID string `json:"batch_id,omitempty"`

	// Products updated within the lookback window.
	ProductsTotal      int     `json:"products_total"`
	ProductsReady      int     `json:"products_ready"`
	ProductsFailed     int     `json:"products_failed"`
	ProductsProcessing int     `json:"products_processing"`
	ProductsPending    int     `json:"products_pending"`
	RequiresReview     int     `json:"requires_review"`
	FailRate           float64 `json:"fail_rate"`
	AvgConfidence      float64 `json:"avg_confidence"`

	// Attempts recorded within the lookback window.
	Attempts        int     `json:"attempts"`
	AttemptsSuccess int     `json:"attempts_success"`
	AttemptsPartial int     `json:"attempts_partial"`
	RateLimited     int     `json:"rate_limited"`
	Timeouts        int     `json:"timeouts"`
	CreditsUsed     int     `json:"credits_used"`
	CostUSD         float64 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished is the number of products that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.ProductsReady + s.ProductsFailed
}

// Source is the read side of the store the collector needs.
type Source interface {
	GetProducts(ctx context.Context, filter store.ProductFilter) ([]model.Product, error)
	ListScrapingAttempts(ctx context.Context, productID string) ([]model.ScrapingAttempt, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src  Source
	calc *cost.Calculator
	now  func() time.Time
}

// NewCollector creates a metrics collector. A nil calc uses the default
// Firecrawl rates.
func NewCollector(src Source, calc *cost.Calculator) *Collector {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Collector{src: src, calc: calc, now: time.Now}
}

// Collect builds a snapshot of products in batchID (all batches when empty)
// touched within the last lookbackHours. A non-positive lookback covers
// everything.
func (c *Collector) Collect(ctx context.Context, batchID string, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		BatchID:       batchID,
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	products, err := c.src.GetProducts(ctx, store.ProductFilter{BatchID: batchID})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list products")
	}

	var confidenceSum int
	for _, p := range products {
		if !cutoff.IsZero() && p.UpdatedAt.Before(cutoff) {
			continue
		}
		snap.ProductsTotal++
		switch p.Status {
		case model.ProductStatusReady:
			snap.ProductsReady++
			confidenceSum += p.ConfidenceScore
		case model.ProductStatusFailed:
			snap.ProductsFailed++
		case model.ProductStatusProcessing:
			snap.ProductsProcessing++
		default:
			snap.ProductsPending++
		}
		if p.RequiresReview {
			snap.RequiresReview++
		}

		attempts, err := c.src.ListScrapingAttempts(ctx, p.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list attempts for %s", p.ID)
		}
		for _, a := range attempts {
			if !cutoff.IsZero() && a.CreatedAt.Before(cutoff) {
				continue
			}
			snap.Attempts++
			snap.CreditsUsed += a.CreditsUsed
			switch a.Status {
			case model.AttemptSuccess:
				snap.AttemptsSuccess++
			case model.AttemptPartial:
				snap.AttemptsPartial++
			case model.AttemptRateLimited:
				snap.RateLimited++
			case model.AttemptTimeout:
				snap.Timeouts++
			}
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.ProductsFailed) / float64(finished)
	}
	if snap.ProductsReady > 0 {
		snap.AvgConfidence = float64(confidenceSum) / float64(snap.ProductsReady)
	}
	snap.CostUSD = c.calc.Firecrawl(snap.CreditsUsed)

	return snap, nil
}
