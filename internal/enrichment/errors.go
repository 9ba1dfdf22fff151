package enrichment

import "fmt"

// ValidationError is a request-level input error. Per-product failures are
// reported in results instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("enrichment: invalid %s: %s", e.Field, e.Reason)
}
