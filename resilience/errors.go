package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Typed boundary errors. Generation, storage, and document-store clients
// translate provider failures into this closed set so classification can
// dispatch on type instead of sniffing message text. Substring heuristics
// remain only for opaque third-party errors that reach the handler raw.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTimeout            = errors.New("timeout")
	ErrNetwork            = errors.New("network error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

// RateLimitError carries the provider's retry-after hint when one is known.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %d", int(e.RetryAfter/time.Second))
	}
	return "rate limit exceeded"
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
