package dedup

import "fmt"

// ValidationError rejects an incoming line item before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dedup: invalid %s: %s", e.Field, e.Reason)
}
