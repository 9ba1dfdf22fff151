// Package model defines the catalog and enrichment types shared across packages.
package model

import "time"

// ProductStatus is the enrichment lifecycle state of a catalog product.
type ProductStatus string

const (
	ProductStatusDraft      ProductStatus = "draft"
	ProductStatusProcessing ProductStatus = "processing"
	ProductStatusReady      ProductStatus = "ready"
	ProductStatusFailed     ProductStatus = "failed"
)

// Valid reports whether s is a known product status.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusDraft, ProductStatusProcessing, ProductStatusReady, ProductStatusFailed:
		return true
	}
	return false
}

// Product is a catalog entry. ManufacturerSKU is the natural key.
//
// Name, Category and Description come from invoice line items and are empty
// when the invoice did not carry them. Price is nil when unknown.
type Product struct {
	ID              string   `json:"id"`
	BatchID         string   `json:"batch_id,omitempty"`
	SupplierSKU     string   `json:"supplier_sku"`
	ManufacturerSKU string   `json:"manufacturer_sku"`
	Manufacturer    string   `json:"manufacturer"`
	Name            string   `json:"name,omitempty"`
	Category        string   `json:"category,omitempty"`
	Description     string   `json:"description,omitempty"`
	Price           *float64 `json:"price,omitempty"`

	ScrapedName        string          `json:"scraped_name,omitempty"`
	ScrapedDescription string          `json:"scraped_description,omitempty"`
	ScrapedURL         string          `json:"scraped_url,omitempty"`
	ScrapedImages      []string        `json:"scraped_images,omitempty"`
	ImageMetadata      []ImageMetadata `json:"image_metadata,omitempty"`
	ConfidenceScore    int             `json:"confidence_score"`
	LastAttemptID      string          `json:"last_attempt_id,omitempty"`

	Status          ProductStatus `json:"status"`
	ProcessingNotes string        `json:"processing_notes,omitempty"`
	RequiresReview  bool          `json:"requires_review"`
	ReviewNotes     string        `json:"review_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImagePlacement estimates where an image sits on a product page.
type ImagePlacement string

const (
	ImagePlacementMain      ImagePlacement = "main"
	ImagePlacementThumbnail ImagePlacement = "thumbnail"
	ImagePlacementGallery   ImagePlacement = "gallery"
	ImagePlacementDetail    ImagePlacement = "detail"
)

// ImageMetadata describes one discovered product image. Quality is a 0-100
// download priority.
type ImageMetadata struct {
	URL       string         `json:"url"`
	AltText   string         `json:"alt_text,omitempty"`
	Placement ImagePlacement `json:"placement"`
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	Quality   int            `json:"quality"`
}
