package model

import (
	"encoding/json"
	"time"
)

// EnrichmentData is the result of one successful product match.
type EnrichmentData struct {
	SearchURL        string                     `json:"search_url,omitempty"`
	ProductURL       string                     `json:"product_url"`
	Name             string                     `json:"name"`
	Description      string                     `json:"description"`
	PageSKU          string                     `json:"page_sku,omitempty"`
	ImageURLs        []string                   `json:"image_urls"`
	ImageMetadata    []ImageMetadata            `json:"image_metadata"`
	ConfidenceScore  int                        `json:"confidence_score"`
	Method           AttemptMethod              `json:"method"`
	RawResponses     map[string]json.RawMessage `json:"raw_responses,omitempty"`
	CreditsUsed      int                        `json:"credits_used"`
	ProcessingTimeMS int64                      `json:"processing_time_ms"`
}

// ProductEnrichmentResult is returned for every enrich call, success or not.
type ProductEnrichmentResult struct {
	ProductID        string          `json:"product_id"`
	Success          bool            `json:"success"`
	AttemptID        string          `json:"attempt_id,omitempty"`
	ConfidenceScore  int             `json:"confidence_score"`
	Method           AttemptMethod   `json:"method,omitempty"`
	Data             *EnrichmentData `json:"data,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreditsUsed      int             `json:"credits_used"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
}

// EnrichmentResult aggregates a batch or id-list enrichment run.
type EnrichmentResult struct {
	BatchID               string                    `json:"batch_id,omitempty"`
	TotalProducts         int                       `json:"total_products"`
	SuccessfulEnrichments int                       `json:"successful_enrichments"`
	FailedEnrichments     int                       `json:"failed_enrichments"`
	SuccessRate           float64                   `json:"success_rate"`
	FailureRate           float64                   `json:"failure_rate"`
	Results               []ProductEnrichmentResult `json:"results"`
	TotalCreditsUsed      int                       `json:"total_credits_used"`
	EstimatedCostUSD      float64                   `json:"estimated_cost_usd"`
	ProcessingTimeMS      int64                     `json:"processing_time_ms"`
	StartedAt             time.Time                 `json:"started_at"`
	CompletedAt           time.Time                 `json:"completed_at"`
}

// EnrichmentStatus is a live summary of product statuses in a batch.
// Completed+Failed+Processing+Pending always equals TotalProducts.
type EnrichmentStatus struct {
	BatchID           string  `json:"batch_id"`
	TotalProducts     int     `json:"total_products"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	Processing        int     `json:"processing"`
	Pending           int     `json:"pending"`
	AverageConfidence float64 `json:"average_confidence"`
}
