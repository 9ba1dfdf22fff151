package model

import (
	"encoding/json"
	"time"
)

// AttemptMethod records how a product page was located.
type AttemptMethod string

const (
	MethodSearchFirstResult AttemptMethod = "search_first_result"
	MethodDirectURL         AttemptMethod = "direct_url"
	MethodFallback          AttemptMethod = "fallback"
	MethodManual            AttemptMethod = "manual"
)

// AttemptStatus is the outcome of one enrichment attempt.
type AttemptStatus string

const (
	AttemptSuccess     AttemptStatus = "success"
	AttemptFailed      AttemptStatus = "failed"
	AttemptPartial     AttemptStatus = "partial"
	AttemptTimeout     AttemptStatus = "timeout"
	AttemptRateLimited AttemptStatus = "rate_limited"
)

// ScrapingAttempt is the append-only audit row written for every
// enrichment try. AttemptNumber is assigned by the store.
type ScrapingAttempt struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	AttemptNumber    int             `json:"attempt_number"`
	Method           AttemptMethod   `json:"method"`
	Status           AttemptStatus   `json:"status"`
	SearchURL        string          `json:"search_url,omitempty"`
	ProductURL       string          `json:"product_url,omitempty"`
	ConfidenceScore  int             `json:"confidence_score"`
	RawResponse      json.RawMessage `json:"raw_response,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreditsUsed      int             `json:"credits_used"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}
