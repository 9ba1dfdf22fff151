package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

// BatchOptions overrides per-call fan-out. Zero MaxConcurrent uses the
// service config.
type BatchOptions struct {
	MaxConcurrent int
}

// EnrichBatch enriches every draft product in batchID that has both a
// supplier SKU and a manufacturer. Other products are left out of the
// result entirely.
func (s *Service) EnrichBatch(ctx context.Context, batchID string, opts BatchOptions) (*model.EnrichmentResult, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, &ValidationError{Field: "batch_id", Reason: "required"}
	}
	limit, err := s.concurrency(opts.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	products, err := s.store.GetProducts(ctx, store.ProductFilter{BatchID: batchID, Status: model.ProductStatusDraft})
	if err != nil {
		return nil, eris.Wrapf(err, "enrichment: list batch %s", batchID)
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.SupplierSKU) == "" || strings.TrimSpace(p.Manufacturer) == "" {
			continue
		}
		ids = append(ids, p.ID)
	}

	zap.L().Info("enrichment: starting batch",
		zap.String("batch_id", batchID),
		zap.Int("candidates", len(ids)),
		zap.Int("skipped", len(products)-len(ids)),
		zap.Int("max_concurrent", limit),
	)
	return s.run(ctx, batchID, ids, limit), nil
}

// EnrichProducts enriches exactly the given products, in any status.
func (s *Service) EnrichProducts(ctx context.Context, ids []string, opts BatchOptions) (*model.EnrichmentResult, error) {
	limit, err := s.concurrency(opts.MaxConcurrent)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "", ids, limit), nil
}

func (s *Service) concurrency(override int) (int, error) {
	if override == 0 {
		override = s.cfg.MaxConcurrent
	}
	if override < MinConcurrent || override > MaxConcurrentLimit {
		return 0, &ValidationError{
			Field:  "max_concurrent",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinConcurrent, MaxConcurrentLimit, override),
		}
	}
	return override, nil
}

// run fans EnrichProduct out over ids. Results keep launch order. A task
// that panics or starts after ctx is done becomes a failed result; no task
// failure cancels its siblings.
func (s *Service) run(ctx context.Context, batchID string, ids []string, limit int) *model.EnrichmentResult {
	started := time.Now()
	results := make([]model.ProductEnrichmentResult, len(ids))

	if len(ids) > 0 {
		var g errgroup.Group
		g.SetLimit(limit)
		for i, id := range ids {
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						zap.L().Error("enrichment: task panicked",
							zap.String("product_id", id),
							zap.Any("panic", r),
						)
						results[i] = model.ProductEnrichmentResult{
							ProductID:    id,
							ErrorMessage: fmt.Sprintf("task failed: %v", r),
						}
					}
				}()
				if err := ctx.Err(); err != nil {
					results[i] = model.ProductEnrichmentResult{ProductID: id, ErrorMessage: "cancelled"}
					return nil
				}
				results[i] = s.EnrichProduct(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := s.aggregate(batchID, results)
	out.StartedAt = started.UTC()
	out.CompletedAt = time.Now().UTC()
	out.ProcessingTimeMS = out.CompletedAt.Sub(out.StartedAt).Milliseconds()

	if len(ids) > 0 {
		zap.L().Info("enrichment: batch complete",
			zap.String("batch_id", batchID),
			zap.Int("total", out.TotalProducts),
			zap.Int("successful", out.SuccessfulEnrichments),
			zap.Int("failed", out.FailedEnrichments),
			zap.Int("credits", out.TotalCreditsUsed),
			zap.Float64("cost_usd", out.EstimatedCostUSD),
			zap.Int64("duration_ms", out.ProcessingTimeMS),
		)
	}
	return out
}

func (s *Service) aggregate(batchID string, results []model.ProductEnrichmentResult) *model.EnrichmentResult {
	out := &model.EnrichmentResult{
		BatchID:       batchID,
		TotalProducts: len(results),
		Results:       results,
	}
	for _, r := range results {
		if r.Success {
			out.SuccessfulEnrichments++
		} else {
			out.FailedEnrichments++
		}
		out.TotalCreditsUsed += r.CreditsUsed
	}
	if out.TotalProducts > 0 {
		out.SuccessRate = round2(float64(out.SuccessfulEnrichments) / float64(out.TotalProducts) * 100)
		out.FailureRate = round2(100 - out.SuccessRate)
	}
	out.EstimatedCostUSD = s.calc.Firecrawl(out.TotalCreditsUsed)
	return out
}

// GetEnrichmentStatus summarizes the current product statuses in batchID.
// Unknown statuses count as pending.
func (s *Service) GetEnrichmentStatus(ctx context.Context, batchID string) (*model.EnrichmentStatus, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, &ValidationError{Field: "batch_id", Reason: "required"}
	}
	products, err := s.store.GetProducts(ctx, store.ProductFilter{BatchID: batchID})
	if err != nil {
		return nil, eris.Wrapf(err, "enrichment: status of batch %s", batchID)
	}

	st := &model.EnrichmentStatus{BatchID: batchID, TotalProducts: len(products)}
	var confidenceSum int
	for _, p := range products {
		switch p.Status {
		case model.ProductStatusReady:
			st.Completed++
			confidenceSum += p.ConfidenceScore
		case model.ProductStatusFailed:
			st.Failed++
		case model.ProductStatusProcessing:
			st.Processing++
		default:
			st.Pending++
		}
	}
	if st.Completed > 0 {
		st.AverageConfidence = round2(float64(confidenceSum) / float64(st.Completed))
	}
	return st, nil
}
