package observe

import (
	"context"
	"log"
)

// LogSink writes one terse operational line per event through the standard
// logger. Structured detail stays on the Event for downstream sinks.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	event.Normalize()
	if event.Error != "" {
		log.Printf("[%s] %s %s session=%s category=%s severity=%s error=%q",
			event.Kind, event.Name, event.Status, event.SessionID, event.Category, event.Severity, event.Error)
		return nil
	}
	log.Printf("[%s] %s %s session=%s agent=%s", event.Kind, event.Name, event.Status, event.SessionID, event.Agent)
	return nil
}
