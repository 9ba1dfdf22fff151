package matching

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Trace is the partial context a match gathered before it stopped. It is
// attached to SearchError and ScrapingError so the failed attempt can still
// be audited.
type Trace struct {
	SearchURL    string
	ProductURL   string
	Method       model.AttemptMethod
	CreditsUsed  int
	RawResponses map[string]json.RawMessage
}

func (t *Trace) addRaw(key string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	if t.RawResponses == nil {
		t.RawResponses = make(map[string]json.RawMessage)
	}
	t.RawResponses[key] = raw
}

// SKUExtractionError means the supplier SKU does not follow the
// manufacturer's numbering convention.
type SKUExtractionError struct {
	SKU string
}

func (e *SKUExtractionError) Error() string {
	return fmt.Sprintf("SKU extraction failed: no numeric SKU found in %q", e.SKU)
}

// SearchError means the search request failed or found no candidates.
type SearchError struct {
	URL   string
	Err   error
	Trace *Trace
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("search found no candidate products at %s", e.URL)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// ScrapingError means every attempted candidate page failed. URL is the
// first candidate.
type ScrapingError struct {
	URL        string
	StatusCode int
	Err        error
	Trace      *Trace
}

func (e *ScrapingError) Error() string {
	msg := fmt.Sprintf("scraping failed for %s", e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScrapingError) Unwrap() error {
	return e.Err
}

// TraceOf returns the trace carried by err, or nil.
func TraceOf(err error) *Trace {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Trace
	}
	var pe *ScrapingError
	if errors.As(err, &pe) {
		return pe.Trace
	}
	return nil
}

// IsMatchError reports whether err is one of the matcher's typed failures.
func IsMatchError(err error) bool {
	var skuErr *SKUExtractionError
	var searchErr *SearchError
	var scrapeErr *ScrapingError
	return errors.As(err, &skuErr) || errors.As(err, &searchErr) || errors.As(err, &scrapeErr)
}
