// Package dedup keeps one catalog product per manufacturer SKU and flags
// incoming line items whose data drifts from the stored product.
package dedup

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
)

// IncomingProduct is one invoice line item. Empty strings and a nil Price
// mean the invoice did not carry the field.
type IncomingProduct struct {
	SupplierSKU     string   `json:"supplier_sku"`
	ManufacturerSKU string   `json:"manufacturer_sku"`
	Manufacturer    string   `json:"manufacturer"`
	Name            string   `json:"name,omitempty"`
	Category        string   `json:"category,omitempty"`
	Description     string   `json:"description,omitempty"`
	Price           *float64 `json:"price,omitempty"`
}

func (in IncomingProduct) toProduct(batchID string) model.Product {
	return model.Product{
		BatchID:         batchID,
		SupplierSKU:     strings.TrimSpace(in.SupplierSKU),
		ManufacturerSKU: strings.TrimSpace(in.ManufacturerSKU),
		Manufacturer:    strings.TrimSpace(in.Manufacturer),
		Name:            strings.TrimSpace(in.Name),
		Category:        strings.TrimSpace(in.Category),
		Description:     strings.TrimSpace(in.Description),
		Price:           in.Price,
	}
}

// Status is the outcome of deduplicating one line item.
type Status string

const (
	StatusCreated          Status = "created"
	StatusDuplicateSkipped Status = "duplicate_skipped"
	StatusConflictDetected Status = "conflict_detected"
	StatusError            Status = "error"
)

const (
	ActionCreated          = "created"
	ActionSkipped          = "skipped"
	ActionAutoResolved     = "auto_resolved_conflicts"
	ActionFlaggedForReview = "flagged_for_review"
)

// Result describes what happened to one line item.
type Result struct {
	Status          Status         `json:"status"`
	ProductID       string         `json:"product_id,omitempty"`
	ManufacturerSKU string         `json:"manufacturer_sku"`
	Action          string         `json:"action,omitempty"`
	Severity        Severity       `json:"severity"`
	Conflicts       []DataConflict `json:"conflicts"`
	Error           string         `json:"error,omitempty"`
}

// Summary tallies a batch. Rates are percentages rounded to two decimals.
type Summary struct {
	BatchID      string   `json:"batch_id"`
	Total        int      `json:"total"`
	Created      int      `json:"created"`
	Duplicates   int      `json:"duplicates"`
	Conflicts    int      `json:"conflicts"`
	Errors       int      `json:"errors"`
	SuccessRate  float64  `json:"success_rate"`
	ConflictRate float64  `json:"conflict_rate"`
	Results      []Result `json:"results"`
}

// Store is the persistence the engine needs.
type Store interface {
	GetProductByManufacturerSKU(ctx context.Context, sku string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	ReviewUpdater
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the default ClearReviewResolver.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithAutoResolve toggles auto-resolution. When off, every conflict set is
// flagged for review.
func WithAutoResolve(on bool) Option {
	return func(e *Engine) { e.autoResolve = on }
}

// Engine deduplicates line items against the catalog. The store's unique
// index on manufacturer_sku is authoritative; the lookup before create is a
// fast path only.
type Engine struct {
	store       Store
	detector    *Detector
	resolver    Resolver
	autoResolve bool
}

// New creates an Engine with auto-resolution on and a ClearReviewResolver.
func New(s Store, d *Detector, opts ...Option) *Engine {
	if d == nil {
		d = NewDetector(DefaultDetectorConfig())
	}
	e := &Engine{
		store:       s,
		detector:    d,
		resolver:    ClearReviewResolver{Store: s},
		autoResolve: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig builds an Engine from the dedup config section.
func NewFromConfig(s Store, cfg config.DedupConfig, opts ...Option) *Engine {
	d := NewDetector(DetectorConfig{
		PriceThreshold:          cfg.PriceThreshold,
		PriceCriticalThreshold:  cfg.PriceCriticalThreshold,
		NameSimilarity:          cfg.NameSimilarity,
		DescriptionSimilarity:   cfg.DescriptionSimilarity,
		AutoResolveNames:        cfg.AutoResolveNames,
		AutoResolveCategories:   cfg.AutoResolveCategories,
		AutoResolveDescriptions: cfg.AutoResolveDescriptions,
	})
	return New(s, d, append([]Option{WithAutoResolve(cfg.AutoResolve)}, opts...)...)
}

// ProcessProduct creates the product for in, or compares it with the
// product already holding its manufacturer SKU.
func (e *Engine) ProcessProduct(ctx context.Context, in IncomingProduct, batchID string) (*Result, error) {
	sku := strings.TrimSpace(in.ManufacturerSKU)
	if sku == "" {
		return nil, &ValidationError{Field: "manufacturer_sku", Reason: "required"}
	}
	log := zap.L().With(zap.String("batch_id", batchID), zap.String("manufacturer_sku", sku))

	existing, err := e.store.GetProductByManufacturerSKU(ctx, sku)
	if err != nil {
		return nil, eris.Wrapf(err, "dedup: look up %s", sku)
	}
	if existing == nil {
		created, err := e.store.CreateProduct(ctx, in.toProduct(batchID))
		switch {
		case err == nil:
			log.Debug("dedup: product created", zap.String("product_id", created.ID))
			return &Result{
				Status:          StatusCreated,
				ProductID:       created.ID,
				ManufacturerSKU: sku,
				Action:          ActionCreated,
				Severity:        SeverityNone,
			}, nil
		case store.IsDuplicateSKU(err):
			log.Debug("dedup: concurrent create, re-fetching")
			existing, err = e.store.GetProductByManufacturerSKU(ctx, sku)
			if err != nil {
				return nil, eris.Wrapf(err, "dedup: re-fetch %s", sku)
			}
			if existing == nil {
				return nil, eris.Errorf("dedup: %s reported duplicate but not found", sku)
			}
		default:
			return nil, eris.Wrapf(err, "dedup: create %s", sku)
		}
	}

	return e.compare(ctx, log, *existing, in, batchID)
}

func (e *Engine) compare(ctx context.Context, log *zap.Logger, existing model.Product, in IncomingProduct, batchID string) (*Result, error) {
	conflicts := e.detector.Detect(existing, in)
	severity := MaxSeverity(conflicts)
	res := &Result{
		Status:          StatusDuplicateSkipped,
		ProductID:       existing.ID,
		ManufacturerSKU: existing.ManufacturerSKU,
		Action:          ActionSkipped,
		Severity:        severity,
		Conflicts:       conflicts,
	}
	if len(conflicts) == 0 {
		return res, nil
	}

	if e.autoResolve && AllAutoResolvable(conflicts) {
		err := e.resolver.Resolve(ctx, existing, in, conflicts)
		if err == nil {
			log.Info("dedup: conflicts auto-resolved", zap.Int("conflicts", len(conflicts)))
			res.Action = ActionAutoResolved
			return res, nil
		}
		log.Warn("dedup: auto-resolution failed, flagging for review", zap.Error(err))
	}

	if err := e.store.UpdateProductReviewStatus(ctx, existing.ID, true, reviewNote(batchID, severity)); err != nil {
		return nil, eris.Wrapf(err, "dedup: flag %s for review", existing.ID)
	}
	log.Info("dedup: conflicts flagged for review",
		zap.String("product_id", existing.ID),
		zap.String("severity", string(severity)),
		zap.Int("conflicts", len(conflicts)),
	)
	res.Status = StatusConflictDetected
	res.Action = ActionFlaggedForReview
	return res, nil
}

// ProcessBatch runs ProcessProduct over items in order. An item failure is
// logged and counted; it does not stop the batch. The returned error is
// non-nil only when ctx ends before every item was processed.
func (e *Engine) ProcessBatch(ctx context.Context, items []IncomingProduct, batchID string) (*Summary, error) {
	sum := &Summary{BatchID: batchID, Total: len(items), Results: make([]Result, 0, len(items))}

	for i, in := range items {
		if err := ctx.Err(); err != nil {
			for _, rest := range items[i:] {
				sum.Errors++
				sum.Results = append(sum.Results, Result{
					Status:          StatusError,
					ManufacturerSKU: strings.TrimSpace(rest.ManufacturerSKU),
					Severity:        SeverityNone,
					Error:           "cancelled",
				})
			}
			sum.finish()
			return sum, eris.Wrap(err, "dedup: batch cancelled")
		}

		res, err := e.ProcessProduct(ctx, in, batchID)
		if err != nil {
			zap.L().Warn("dedup: line item failed",
				zap.String("batch_id", batchID),
				zap.Int("index", i),
				zap.String("manufacturer_sku", in.ManufacturerSKU),
				zap.Error(err),
			)
			sum.Errors++
			sum.Results = append(sum.Results, Result{
				Status:          StatusError,
				ManufacturerSKU: strings.TrimSpace(in.ManufacturerSKU),
				Severity:        SeverityNone,
				Error:           err.Error(),
			})
			continue
		}

		switch res.Status {
		case StatusCreated:
			sum.Created++
		case StatusDuplicateSkipped:
			sum.Duplicates++
		case StatusConflictDetected:
			sum.Conflicts++
		}
		sum.Results = append(sum.Results, *res)
	}

	sum.finish()
	zap.L().Info("dedup: batch complete",
		zap.String("batch_id", batchID),
		zap.Int("total", sum.Total),
		zap.Int("created", sum.Created),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("conflicts", sum.Conflicts),
		zap.Int("errors", sum.Errors),
	)
	return sum, nil
}

func (s *Summary) finish() {
	s.SuccessRate = percent(s.Created+s.Duplicates, s.Total)
	s.ConflictRate = percent(s.Conflicts, s.Total)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
