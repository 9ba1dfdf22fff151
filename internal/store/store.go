// Package store persists catalog products and their scraping attempts.
package store

import (
	"context"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// ProductFilter specifies criteria for listing products. Zero fields match
// everything; a zero Limit returns every matching row.
type ProductFilter struct {
	BatchID string              `json:"batch_id,omitempty"`
	Status  model.ProductStatus `json:"status,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// ScrapedFields are the page-derived product fields.
type ScrapedFields struct {
	Name          string
	Description   string
	URL           string
	Images        []string
	ImageMetadata []model.ImageMetadata
}

// EnrichmentUpdate is the outcome of one enrichment attempt. A nil Scraped
// leaves the stored scraped fields untouched.
type EnrichmentUpdate struct {
	Scraped         *ScrapedFields
	ConfidenceScore int
	Status          model.ProductStatus
	LastAttemptID   string
	ProcessingNotes string
}

// Store defines the persistence interface for enrichment and
// deduplication.
type Store interface {
	// Products
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	GetProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	GetProductByManufacturerSKU(ctx context.Context, sku string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProductEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error
	UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus, notes string) error
	UpdateProductReviewStatus(ctx context.Context, id string, requiresReview bool, notes string) error

	// Scraping attempts
	CreateScrapingAttempt(ctx context.Context, a model.ScrapingAttempt) (*model.ScrapingAttempt, error)
	ListScrapingAttempts(ctx context.Context, productID string) ([]model.ScrapingAttempt, error)

	// Lifecycle
	HealthCheck(ctx context.Context) model.HealthStatus
	Migrate(ctx context.Context) error
	Close() error
}
