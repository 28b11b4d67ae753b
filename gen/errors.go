package gen

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/adcraftlabs/adcraft/resilience"
)

// MapError translates a genai SDK failure into the typed boundary errors
// the resilience layer classifies on. Unknown failures pass through
// unchanged so message heuristics still apply.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", resilience.ErrInvalidArgument, apiErr.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", resilience.ErrUnauthorized, apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", resilience.ErrForbidden, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", resilience.ErrNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("generation throttled: %w", &resilience.RateLimitError{RetryAfter: retryAfterHint(apiErr)})
	case http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", resilience.ErrInternal, apiErr.Message)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", resilience.ErrServiceUnavailable, apiErr.Message)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", resilience.ErrTimeout, apiErr.Message)
	}
	return err
}

// retryAfterHint digs the RetryInfo detail out of a throttling response.
func retryAfterHint(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		if t, ok := detail["@type"].(string); !ok || t != "type.googleapis.com/google.rpc.RetryInfo" {
			continue
		}
		delay, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(delay); err == nil && d > 0 {
			return d
		}
	}
	return 0
}
