package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adcraftlabs/adcraft/breaker"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(
		breaker.NewRegistry(breaker.DefaultConfig()),
		NewCatalog(),
		NewHistory(0),
		nil,
		WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
	)
}

func TestDoSuccessInvokesOpOnce(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	result, err := h.Do(context.Background(), OpInfo{
		SessionID: "sess-1",
		Operation: "generateImage",
		Category:  CategoryGeneration,
	}, func(ctx context.Context) (any, error) {
		calls++
		return "asset-url", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result != "asset-url" {
		t.Errorf("result = %v, want asset-url", result)
	}
	if calls != 1 {
		t.Errorf("op invoked %d times, want 1", calls)
	}
	if h.History().Snapshot(0).TotalErrors != 0 {
		t.Error("success should not append to error history")
	}
}

func TestRetryReinvokesOriginalOperation(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	result, err := h.Do(context.Background(), OpInfo{
		SessionID: "sess-1",
		Operation: "analyzeProduct",
		Category:  CategoryVision,
	}, func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, ErrTimeout
		}
		return "analysis", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result != "analysis" {
		t.Errorf("result = %v, want analysis", result)
	}
	if calls != 3 {
		t.Errorf("op invoked %d times, want 3", calls)
	}

	snap := h.History().Snapshot(0)
	if snap.TotalErrors != 1 {
		t.Fatalf("history entries = %d, want 1", snap.TotalErrors)
	}
	if !snap.Recent[0].Resolved {
		t.Error("record should be marked resolved after retry recovery")
	}
}

func TestRetryExhaustionDegradesInsteadOfFailing(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	outcome := h.Handle(context.Background(), ErrNetwork, OpInfo{
		SessionID: "sess-1",
		Operation: "fetchReference",
		Category:  CategoryNetwork,
	}, func(ctx context.Context) (any, error) {
		calls++
		return nil, ErrNetwork
	})
	if calls != 3 {
		t.Errorf("op invoked %d times, want 3", calls)
	}
	if !outcome.Success {
		t.Fatal("exhausted retries should degrade, not fail")
	}
	if outcome.ShouldRetry {
		t.Error("ShouldRetry must be false after exhaustion")
	}
	if outcome.FallbackUsed != FallbackGracefulDegradation {
		t.Errorf("fallback = %q, want graceful-degradation", outcome.FallbackUsed)
	}
	degraded, ok := outcome.Result.(Degraded)
	if !ok || !degraded.Degraded || degraded.Warning == "" {
		t.Errorf("result = %#v, want degraded payload with warning", outcome.Result)
	}
}

func TestFallbackOrderingFirstWorkingWins(t *testing.T) {
	h := newTestHandler(t)
	h.Catalog().RegisterHandler("broken-first", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("first strategy also down")
	})
	h.Catalog().RegisterHandler("working-second", func(ctx context.Context, params map[string]any) (any, error) {
		return "from-second", nil
	})

	outcome := h.Handle(context.Background(), ErrInvalidArgument, OpInfo{
		SessionID: "sess-1",
		Operation: "generateImage",
		Category:  CategoryGeneration,
	}, nil,
		Fallback{Kind: "broken-first", Description: "primary alternative"},
		Fallback{Kind: "working-second", Description: "secondary alternative"},
	)
	if !outcome.Success {
		t.Fatal("expected a fallback to resolve the failure")
	}
	if outcome.FallbackUsed != "working-second" {
		t.Errorf("fallback = %q, want working-second", outcome.FallbackUsed)
	}
	if outcome.Result != "from-second" {
		t.Errorf("result = %v, want from-second", outcome.Result)
	}
	if !outcome.Record.Resolved {
		t.Error("record should be resolved")
	}
}

func TestAllFallbacksFailingReportsUnresolved(t *testing.T) {
	h := newTestHandler(t)
	h.Catalog().RegisterHandler(FallbackDemoPlaceholder, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("placeholder store unreachable")
	})
	h.Catalog().RegisterHandler(FallbackGracefulDegradation, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("cannot even degrade")
	})

	outcome := h.Handle(context.Background(), ErrInvalidArgument, OpInfo{
		SessionID: "sess-1",
		Operation: "generateImage",
		Category:  CategoryGeneration,
	}, nil)
	if outcome.Success {
		t.Fatal("expected failure when every fallback throws")
	}
	if outcome.Record.Resolved {
		t.Error("record must stay unresolved")
	}
}

func TestOpenBreakerSkipsRetry(t *testing.T) {
	h := newTestHandler(t)
	h.Breakers().ForceOpen("gemini")

	calls := 0
	outcome := h.Handle(context.Background(), ErrTimeout, OpInfo{
		SessionID: "sess-1",
		Operation: "analyzeProduct",
		Category:  CategoryVision,
	}, func(ctx context.Context) (any, error) {
		calls++
		return nil, ErrTimeout
	})
	if calls != 0 {
		t.Errorf("op invoked %d times with open breaker, want 0", calls)
	}
	if !outcome.Success {
		t.Fatal("open breaker should route to fallback, not hard failure")
	}
	if outcome.FallbackUsed != FallbackDemoPlaceholder {
		t.Errorf("fallback = %q, want demo-placeholder", outcome.FallbackUsed)
	}
}

func TestDoWithOpenBreakerNeverDispatches(t *testing.T) {
	h := newTestHandler(t)
	h.Breakers().ForceOpen("imagen")

	calls := 0
	result, err := h.Do(context.Background(), OpInfo{
		SessionID: "sess-1",
		Operation: "generateImage",
		Category:  CategoryGeneration,
	}, func(ctx context.Context) (any, error) {
		calls++
		return "never", nil
	})
	if calls != 0 {
		t.Errorf("op invoked %d times, want 0", calls)
	}
	if err != nil {
		t.Fatalf("expected fallback result, got error %v", err)
	}
	placeholder, ok := result.(map[string]any)
	if !ok || placeholder["placeholder"] != true {
		t.Errorf("result = %#v, want placeholder payload", result)
	}
}

func TestValidationFailureFailsFast(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	outcome := h.Handle(context.Background(), errors.New("handoff validation failed: analysis missing"), OpInfo{
		SessionID: "sess-1",
		Operation: "handoffToDavid",
		Category:  CategoryValidation,
	}, func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	})
	if calls != 0 {
		t.Errorf("op invoked %d times, want 0", calls)
	}
	if outcome.Success {
		t.Fatal("validation failures must not be swallowed")
	}
	if !outcome.Record.Resolution.NotifyUser {
		t.Error("validation failure should notify the user")
	}
	if outcome.Record.Context.Recoverable {
		t.Error("validation failure must not be recoverable")
	}
}

func TestRepeatedFailuresOpenBreakerThroughDo(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	info := OpInfo{SessionID: "sess-1", Operation: "generateImage", Category: CategoryGeneration, Severity: SeverityLow}

	// Low severity forces the fallback path, so each Do records exactly
	// one breaker failure.
	for i := 0; i < 5; i++ {
		_, _ = h.Do(ctx, info, func(ctx context.Context) (any, error) {
			return nil, errors.New("invalid image payload")
		})
	}
	if h.Breakers().Check("imagen") {
		t.Fatal("breaker should be open after five consecutive failures")
	}
}

func TestBestEffortFailureIsIgnored(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	result, err := h.Do(context.Background(), OpInfo{
		SessionID:  "sess-1",
		Operation:  "refreshSnapshot",
		Category:   CategoryDocumentStore,
		BestEffort: true,
	}, func(ctx context.Context) (any, error) {
		calls++
		return nil, ErrTimeout
	})
	if err != nil {
		t.Fatalf("best-effort failure must not surface: %v", err)
	}
	if result != nil {
		t.Errorf("ignored operation must not fabricate a result, got %v", result)
	}
	if calls != 1 {
		t.Errorf("op invoked %d times, want 1 (no retry)", calls)
	}

	snap := h.History().Snapshot(0)
	if snap.TotalErrors != 1 {
		t.Fatalf("history entries = %d, want 1", snap.TotalErrors)
	}
	if !snap.Recent[0].Resolved {
		t.Error("ignored failure should be marked resolved")
	}
	if snap.Recent[0].Resolution.Strategy != StrategyIgnore {
		t.Errorf("strategy = %s, want ignore", snap.Recent[0].Resolution.Strategy)
	}
}

func TestBestEffortNeverSwallowsBudgetFailures(t *testing.T) {
	h := newTestHandler(t)
	outcome := h.Handle(context.Background(), errors.New("budget exceeded"), OpInfo{
		SessionID:  "sess-1",
		Operation:  "generateVideo",
		Category:   CategoryBudget,
		BestEffort: true,
	}, nil)
	if outcome.Success {
		t.Fatal("budget failures must surface even on best-effort operations")
	}
	if outcome.Record.Resolution.Strategy != StrategyFail {
		t.Errorf("strategy = %s, want fail", outcome.Record.Resolution.Strategy)
	}
}
