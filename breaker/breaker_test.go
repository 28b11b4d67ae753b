package breaker

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(cfg, WithClock(clock.Now)), clock
}

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	r, clock := newTestRegistry(t, Config{FailureThreshold: 5, OpenTimeout: time.Minute})

	for i := 0; i < 4; i++ {
		r.RecordFailure("imagen")
		if !r.Check("imagen") {
			t.Fatalf("breaker opened after %d failures, want 5", i+1)
		}
	}
	r.RecordFailure("imagen")

	if got := r.State("imagen"); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
	if r.Check("imagen") {
		t.Fatal("Check returned true while open and cool-down not elapsed")
	}

	// Still blocked one second before the timeout elapses.
	clock.Advance(59 * time.Second)
	if r.Check("imagen") {
		t.Fatal("Check returned true before timeout elapsed")
	}

	clock.Advance(time.Second)
	if !r.Check("imagen") {
		t.Fatal("Check returned false after timeout elapsed")
	}
	if got := r.State("imagen"); got != StateHalfOpen {
		t.Fatalf("state after probe admission = %s, want half-open", got)
	}
}

func TestRegistry_HalfOpenSuccessCloses(t *testing.T) {
	r, clock := newTestRegistry(t, Config{FailureThreshold: 2, OpenTimeout: 30 * time.Second})

	r.RecordFailure("gemini")
	r.RecordFailure("gemini")
	clock.Advance(30 * time.Second)
	if !r.Check("gemini") {
		t.Fatal("probe should be admitted after cool-down")
	}

	r.RecordSuccess("gemini")
	if got := r.State("gemini"); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}

	snaps := r.Snapshots()
	for _, s := range snaps {
		if s.Service == "gemini" && s.Failures != 0 {
			t.Fatalf("failure count = %d after half-open success, want 0", s.Failures)
		}
	}
}

func TestRegistry_HalfOpenFailureReopens(t *testing.T) {
	r, clock := newTestRegistry(t, Config{FailureThreshold: 2, OpenTimeout: 30 * time.Second})

	r.RecordFailure("veo")
	r.RecordFailure("veo")
	clock.Advance(30 * time.Second)
	if !r.Check("veo") {
		t.Fatal("probe should be admitted after cool-down")
	}

	// A single failed probe re-opens with a fresh full timeout.
	r.RecordFailure("veo")
	if got := r.State("veo"); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
	clock.Advance(29 * time.Second)
	if r.Check("veo") {
		t.Fatal("breaker admitted a call before the fresh timeout elapsed")
	}
	clock.Advance(time.Second)
	if !r.Check("veo") {
		t.Fatal("breaker should admit a probe after the fresh timeout")
	}
}

func TestRegistry_SuccessOutsideHalfOpenIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t, Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	r.RecordFailure("storage")
	r.RecordFailure("storage")
	r.RecordSuccess("storage")

	// Closed-state success does not reset accumulated failures; a third
	// failure still trips the breaker.
	r.RecordFailure("storage")
	if got := r.State("storage"); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
}

func TestRegistry_ServicesAreIndependent(t *testing.T) {
	r, _ := newTestRegistry(t, Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	r.RecordFailure("imagen")
	if r.Check("imagen") {
		t.Fatal("imagen breaker should be open")
	}
	if !r.Check("gemini") {
		t.Fatal("gemini breaker should be unaffected")
	}
}

func TestRegistry_RegisterSeedsSnapshots(t *testing.T) {
	r, _ := newTestRegistry(t, DefaultConfig())
	r.Register("imagen", "veo", "gemini")

	snaps := r.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	for _, s := range snaps {
		if s.State != StateClosed {
			t.Fatalf("service %s initialized as %s, want closed", s.Service, s.State)
		}
	}
}
