package reddit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAbsent marks a resource that was deleted, removed, suspended or never existed.
	ErrAbsent = errors.New("resource absent")
	// ErrSourceNotFound marks a listing source that redirected or returned not-found.
	ErrSourceNotFound = errors.New("listing source not found")
	// ErrThrottled is returned when a call is still throttled after its single retry.
	ErrThrottled = errors.New("throttled after retry")
	// ErrObjectNotFound is returned by blob stores for missing paths.
	ErrObjectNotFound = errors.New("object not found")
)

// ThrottleError reports a rate-limit response. RetryAfter is zero when the
// server did not say how long to wait.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// IsThrottled reports whether err carries a ThrottleError.
func IsThrottled(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}

// RetryAfterOf extracts the server-provided wait from err, if any.
func RetryAfterOf(err error) time.Duration {
	var te *ThrottleError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
