package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestMerge(t *testing.T) {
	doc := map[string]any{"a": 1, "b": "keep", "c": "drop"}
	merged := Merge(doc, map[string]any{"a": 2, "c": nil, "d": true})

	if merged["a"] != 2 {
		t.Errorf("a = %v, want 2", merged["a"])
	}
	if merged["b"] != "keep" {
		t.Errorf("b = %v, want keep", merged["b"])
	}
	if _, ok := merged["c"]; ok {
		t.Error("nil patch value should delete the field")
	}
	if merged["d"] != true {
		t.Errorf("d = %v, want true", merged["d"])
	}
	if doc["a"] != 1 {
		t.Error("Merge must not mutate its input")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Create(ctx, "sessions", "s1", map[string]any{"phase": "created"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Create(ctx, "sessions", "s1", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	merged, err := m.Update(ctx, "sessions", "s1", map[string]any{"phase": "ready"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if merged["phase"] != "ready" {
		t.Errorf("phase = %v, want ready", merged["phase"])
	}

	if _, err := m.Get(ctx, "sessions", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	docs, err := m.List(ctx, "sessions", 0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
}
