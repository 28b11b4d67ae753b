// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts pipeline observe.Event objects into OTel spans so that
// sessions, generation calls, handoffs, and fallback executions are
// visible in any OpenTelemetry-compatible backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/adcraftlabs/adcraft/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/adcraftlabs/adcraft"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	spanName := spanNameFor(event)
	ctx := context.Background()
	startTime := event.Timestamp

	_, span := s.tracer.Start(ctx, spanName, trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("adcraft.event.kind", string(event.Kind)),
	}
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("adcraft.session.id", event.SessionID))
	}
	if event.Agent != "" {
		attrs = append(attrs, attribute.String("adcraft.agent", event.Agent))
	}
	if event.Service != "" {
		attrs = append(attrs, attribute.String("adcraft.service", event.Service))
	}
	if event.Category != "" {
		attrs = append(attrs, attribute.String("adcraft.error.category", event.Category))
	}
	if event.Severity != "" {
		attrs = append(attrs, attribute.String("adcraft.error.severity", event.Severity))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("adcraft.event.name", event.Name))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("adcraft.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("adcraft.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("adcraft.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("adcraft.attr."+k, fmt.Sprintf("%v", v)))
	}

	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindSession:
		return "pipeline.session"
	case observe.KindGeneration:
		if event.Service != "" {
			return "pipeline.generate." + event.Service
		}
		return "pipeline.generate"
	case observe.KindHandoff:
		return "pipeline.handoff"
	case observe.KindFallback:
		if event.Name != "" {
			return "pipeline.fallback." + event.Name
		}
		return "pipeline.fallback"
	case observe.KindBreaker:
		return "pipeline.breaker"
	case observe.KindError:
		return "pipeline.error"
	default:
		if event.Name != "" {
			return "pipeline." + event.Name
		}
		return "pipeline.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
