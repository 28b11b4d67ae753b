package observe

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Emit(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	sink := NewMultiSink(a, nil, b)

	if err := sink.Emit(context.Background(), Event{Kind: KindSession}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if a.len() != 1 || b.len() != 1 {
		t.Errorf("fan-out counts = %d, %d", a.len(), b.len())
	}
}

func TestMultiSinkEmptyIsNoop(t *testing.T) {
	sink := NewMultiSink(nil, nil)
	if _, ok := sink.(NoopSink); !ok {
		t.Fatalf("expected NoopSink, got %T", sink)
	}
}

func TestAsyncSinkDeliversAndDropsUnderPressure(t *testing.T) {
	downstream := &captureSink{}
	sink := NewAsyncSink(downstream, 4)
	defer sink.Close()

	for i := 0; i < 100; i++ {
		if err := sink.Emit(context.Background(), Event{Kind: KindGeneration}); err != nil {
			t.Fatalf("Emit must not fail under pressure: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for downstream.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if downstream.len() == 0 {
		t.Fatal("no events delivered downstream")
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	var e Event
	e.Normalize()
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if e.Kind != KindCustom {
		t.Errorf("kind = %q", e.Kind)
	}
	if e.Attributes == nil {
		t.Error("attributes not initialized")
	}
}
