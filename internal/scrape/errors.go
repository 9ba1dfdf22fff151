package scrape

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the provider answers HTTP 429.
// RetryAfter is zero when the provider did not say.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("scrape: rate limited by provider (retry after %s)", e.RetryAfter)
	}
	return "scrape: rate limited by provider"
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
