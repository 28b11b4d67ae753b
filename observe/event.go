package observe

import "time"

type Kind string

type Status string

const (
	KindSession    Kind = "session"
	KindGeneration Kind = "generation"
	KindHandoff    Kind = "handoff"
	KindFallback   Kind = "fallback"
	KindBreaker    Kind = "breaker"
	KindError      Kind = "error"
	KindCustom     Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDegraded  Status = "degraded"
)

// Event is a single structured occurrence inside the pipeline: a session
// transition, a generation call, a handoff, a fallback execution, or a
// breaker state change.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"sessionId,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Service    string         `json:"service,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Name       string         `json:"name,omitempty"`
	Category   string         `json:"category,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
