// Package resilience implements the error-handling core for the pipeline's
// unreliable, cost-metered external calls: classification, circuit-breaker
// consultation, bounded retries that re-invoke the original operation, and
// ordered fallback execution.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adcraftlabs/adcraft/breaker"
	"github.com/adcraftlabs/adcraft/observe"
)

// Op is the original operation a wrapped call site wants performed. The
// retry executor re-invokes it; results are never synthesized.
type Op func(ctx context.Context) (any, error)

// OpInfo identifies a wrapped call for classification and reporting.
type OpInfo struct {
	SessionID string
	Operation string
	Category  Category
	// Service overrides the category's default breaker service name
	// (e.g. video generation runs against "veo", not "imagen").
	Service string
	// Severity, when set, overrides the inferred severity.
	Severity Severity
	// BestEffort marks an operation whose failure may be ignored outright:
	// no retry, no fallback, success with no result. Validation, budget,
	// and critical failures are still surfaced.
	BestEffort bool
	Metadata   map[string]any
}

func (i OpInfo) service() string {
	if i.Service != "" {
		return i.Service
	}
	return ServiceFor(i.Category)
}

// Outcome is the result of handling one failure.
type Outcome struct {
	Success      bool
	Result       any
	FallbackUsed FallbackKind
	ShouldRetry  bool
	Record       *Record
}

// Handler is the resilience core. One instance is shared process-wide and
// passed explicitly to the agent orchestrators; the breaker registry it
// holds is likewise shared so an outage affects all sessions identically.
type Handler struct {
	breakers *breaker.Registry
	catalog  *Catalog
	history  *History
	observer observe.Sink
	sleep    func(ctx context.Context, d time.Duration) error
}

type HandlerOption func(*Handler)

// WithSleeper overrides the retry delay wait. Used in tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.sleep = fn
		}
	}
}

func NewHandler(breakers *breaker.Registry, catalog *Catalog, history *History, observer observe.Sink, opts ...HandlerOption) *Handler {
	if breakers == nil {
		breakers = breaker.NewRegistry(breaker.DefaultConfig())
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	if history == nil {
		history = NewHistory(0)
	}
	if observer == nil {
		observer = observe.NoopSink{}
	}
	h := &Handler{
		breakers: breakers,
		catalog:  catalog,
		history:  history,
		observer: observer,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// History exposes the error log for health reporting.
func (h *Handler) History() *History { return h.history }

// Breakers exposes the shared breaker registry.
func (h *Handler) Breakers() *breaker.Registry { return h.breakers }

// Catalog exposes the fallback catalog for startup registration.
func (h *Handler) Catalog() *Catalog { return h.catalog }

// Do wraps an external call: if the breaker for the operation's service is
// open the call is not dispatched at all; otherwise the op runs once and a
// failure is routed through Handle. The first return value is the original
// result on success or a fallback substitute when one resolved the failure.
func (h *Handler) Do(ctx context.Context, info OpInfo, op Op, custom ...Fallback) (any, error) {
	service := info.service()

	if !h.breakers.Check(service) {
		err := fmt.Errorf("%w: circuit open for %s", ErrServiceUnavailable, service)
		outcome := h.Handle(ctx, err, info, nil, custom...)
		if outcome.Success {
			return outcome.Result, nil
		}
		return nil, err
	}

	result, err := op(ctx)
	if err == nil {
		h.breakers.RecordSuccess(service)
		return result, nil
	}
	h.breakers.RecordFailure(service)

	outcome := h.Handle(ctx, err, info, op, custom...)
	if outcome.Success {
		return outcome.Result, nil
	}
	return nil, err
}

// Handle classifies a failure, consults the circuit breaker, and executes
// retry, fallback, ignore, or fail. An open breaker bypasses retry entirely
// and goes straight to fallback execution. The op, when non-nil, is the
// original failed operation and is re-invoked on retry.
func (h *Handler) Handle(ctx context.Context, err error, info OpInfo, op Op, custom ...Fallback) Outcome {
	ectx := Classify(info.Category, info.SessionID, info.Operation, err)
	if info.Severity != "" {
		ectx.Severity = info.Severity
	}
	for k, v := range info.Metadata {
		ectx.Metadata[k] = v
	}

	resolution := Resolve(ectx, err)
	if info.BestEffort && resolution.Strategy != StrategyFail && ectx.Severity != SeverityCritical {
		resolution = Resolution{Strategy: StrategyIgnore}
	}
	record := &Record{
		ID:         uuid.NewString(),
		Context:    ectx,
		Message:    err.Error(),
		Resolution: resolution,
		err:        err,
	}
	h.history.Append(record)

	service := info.service()
	h.emit(ctx, observe.Event{
		Kind:      observe.KindError,
		Status:    observe.StatusFailed,
		Name:      info.Operation,
		SessionID: info.SessionID,
		Service:   service,
		Category:  string(ectx.Category),
		Severity:  string(ectx.Severity),
		Error:     err.Error(),
	})

	// Breaker open: stop hammering a known-down dependency.
	if !h.breakers.Check(service) {
		return h.runFallbacks(ctx, record, info, custom)
	}

	switch resolution.Strategy {
	case StrategyRetry:
		if op != nil {
			if outcome, ok := h.retry(ctx, record, info, resolution, op); ok {
				return outcome
			}
		}
		// Exhausted (or nothing to re-invoke): degrade instead of
		// surfacing the raw failure.
		outcome := h.runFallbacks(ctx, record, info, custom)
		outcome.ShouldRetry = false
		return outcome

	case StrategyFallback:
		return h.runFallbacks(ctx, record, info, custom)

	case StrategyIgnore:
		h.history.MarkResolved(record, "")
		return Outcome{Success: true, Record: record}

	case StrategyFail:
		h.breakers.RecordFailure(service)
		return Outcome{Success: false, Record: record}
	}

	return Outcome{Success: false, Record: record}
}

// retry re-invokes the original operation up to MaxRetries times. The bool
// result reports whether a retry succeeded.
func (h *Handler) retry(ctx context.Context, record *Record, info OpInfo, resolution Resolution, op Op) (Outcome, bool) {
	service := info.service()

	for attempt := 1; attempt <= resolution.MaxRetries; attempt++ {
		if err := h.sleep(ctx, resolution.RetryDelay); err != nil {
			return Outcome{}, false
		}

		result, err := op(ctx)
		if err == nil {
			h.breakers.RecordSuccess(service)
			h.history.MarkResolved(record, "")
			h.emit(ctx, observe.Event{
				Kind:      observe.KindGeneration,
				Status:    observe.StatusCompleted,
				Name:      info.Operation,
				SessionID: info.SessionID,
				Service:   service,
				Message:   fmt.Sprintf("recovered on retry %d", attempt),
			})
			return Outcome{Success: true, Result: result, Record: record}, true
		}
		h.breakers.RecordFailure(service)

		if !h.breakers.Check(service) {
			break
		}
	}
	return Outcome{}, false
}

// runFallbacks tries caller-supplied strategies first, then the category's
// catalog list (which always ends in graceful degradation). The first
// strategy that does not error wins and is recorded on the error record.
func (h *Handler) runFallbacks(ctx context.Context, record *Record, info OpInfo, custom []Fallback) Outcome {
	strategies := make([]Fallback, 0, len(custom)+3)
	strategies = append(strategies, custom...)
	strategies = append(strategies, h.catalog.Strategies(info.Category)...)

	for _, f := range strategies {
		result, err := h.catalog.Execute(ctx, f)
		if err != nil {
			h.emit(ctx, observe.Event{
				Kind:      observe.KindFallback,
				Status:    observe.StatusFailed,
				Name:      string(f.Kind),
				SessionID: info.SessionID,
				Category:  string(info.Category),
				Error:     err.Error(),
			})
			continue
		}
		h.history.MarkResolved(record, f.Kind)
		h.emit(ctx, observe.Event{
			Kind:      observe.KindFallback,
			Status:    observe.StatusDegraded,
			Name:      string(f.Kind),
			SessionID: info.SessionID,
			Category:  string(info.Category),
			Message:   f.Description,
		})
		return Outcome{Success: true, Result: result, FallbackUsed: f.Kind, Record: record}
	}

	return Outcome{Success: false, Record: record}
}

func (h *Handler) emit(ctx context.Context, event observe.Event) {
	_ = h.observer.Emit(ctx, event)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
