package resilience

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Category string

const (
	CategoryGeneration    Category = "generation-api"
	CategoryObjectStorage Category = "object-storage"
	CategoryDocumentStore Category = "document-store"
	CategoryVision        Category = "vision-api"
	CategoryModel         Category = "model-api"
	CategoryAuth          Category = "authentication"
	CategoryRateLimit     Category = "rate-limit"
	CategoryNetwork       Category = "network"
	CategoryValidation    Category = "validation"
	CategoryBudget        Category = "budget"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext describes one failure occurrence. Immutable once built.
type ErrorContext struct {
	SessionID   string         `json:"sessionId"`
	Operation   string         `json:"operation"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Retryable   bool           `json:"retryable"`
	Recoverable bool           `json:"recoverable"`
}

type Strategy string

const (
	StrategyRetry    Strategy = "retry"
	StrategyFallback Strategy = "fallback"
	StrategyFail     Strategy = "fail"
	StrategyIgnore   Strategy = "ignore"
)

// Resolution is the handler's decision for one failure. It is computed
// deterministically from the error context and never stored on its own.
type Resolution struct {
	Strategy   Strategy      `json:"strategy"`
	MaxRetries int           `json:"maxRetries,omitempty"`
	RetryDelay time.Duration `json:"retryDelay,omitempty"`
	NotifyUser bool          `json:"notifyUser,omitempty"`
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// ClassifySeverity infers severity from a failure, preferring the typed
// boundary errors and falling back to message heuristics for opaque errors.
// The "rate limit" check runs before the generic quota/limit check so
// rate limiting stays a transient medium-severity condition.
func ClassifySeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	if IsRateLimit(err) {
		return SeverityMedium
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return SeverityHigh
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork):
		return SeverityMedium
	case errors.Is(err, ErrInvalidArgument):
		return SeverityLow
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return SeverityMedium
	case strings.Contains(msg, "quota"), strings.Contains(msg, "limit"):
		return SeverityHigh
	case strings.Contains(msg, "auth"), strings.Contains(msg, "permission"):
		return SeverityHigh
	case strings.Contains(msg, "network"), strings.Contains(msg, "timeout"):
		return SeverityMedium
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// IsRetryable reports whether a failure is worth re-invoking. Unknown
// errors default to retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound):
		return false
	case IsRateLimit(err),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrInternal):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid", "malformed", "unauthorized", "forbidden"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	if strings.Contains(msg, "not found") && !strings.Contains(msg, "network") {
		return false
	}
	for _, marker := range []string{"timeout", "network", "rate limit", "quota", "service unavailable", "internal"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return true
}

// RetryAfter extracts a retry-after hint, typed first, then from the
// conventional "retry after N" message suffix where N is in seconds.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(m) == 2 {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil && secs > 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

// Classify builds the immutable ErrorContext for a failure.
func Classify(category Category, sessionID, operation string, err error) ErrorContext {
	return ErrorContext{
		SessionID:   sessionID,
		Operation:   operation,
		Category:    category,
		Severity:    ClassifySeverity(err),
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]any{},
		Retryable:   IsRetryable(err),
		Recoverable: category != CategoryValidation && category != CategoryBudget,
	}
}

// Resolve computes the handling decision for a classified failure.
// Validation and budget failures are never retried and never swallowed;
// critical failures skip retry and notify the user.
func Resolve(ectx ErrorContext, err error) Resolution {
	switch ectx.Category {
	case CategoryValidation, CategoryBudget:
		return Resolution{Strategy: StrategyFail, NotifyUser: true}
	}
	if ectx.Severity == SeverityCritical {
		return Resolution{Strategy: StrategyFallback, NotifyUser: true}
	}
	if ectx.Retryable && ectx.Severity != SeverityLow {
		delay := defaultRetryDelay
		if hint, ok := RetryAfter(err); ok {
			delay = hint
		}
		return Resolution{Strategy: StrategyRetry, MaxRetries: defaultMaxRetries, RetryDelay: delay}
	}
	return Resolution{Strategy: StrategyFallback}
}

// serviceByCategory maps error categories to the external service whose
// breaker guards them. Call sites may override via OpInfo.Service.
var serviceByCategory = map[Category]string{
	CategoryGeneration:    "imagen",
	CategoryVision:        "gemini",
	CategoryModel:         "gemini",
	CategoryObjectStorage: "storage",
	CategoryDocumentStore: "docstore",
	CategoryAuth:          "auth",
	CategoryRateLimit:     "gemini",
	CategoryNetwork:       "network",
	CategoryValidation:    "validation",
	CategoryBudget:        "budget",
}

func ServiceFor(category Category) string {
	if s, ok := serviceByCategory[category]; ok {
		return s
	}
	return string(category)
}
