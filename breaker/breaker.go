// Package breaker implements a per-service circuit breaker registry.
//
// Breakers are process-wide and shared across all pipeline sessions: one
// service outage affects every concurrent session identically. State is
// in-memory only and resets on restart.
package breaker

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 60 * time.Second
)

type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state before the breaker opens.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before allowing a
	// single half-open probe.
	OpenTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: defaultFailureThreshold,
		OpenTimeout:      defaultOpenTimeout,
	}
}

// Snapshot is a read-only view of one service's breaker, for health reporting.
type Snapshot struct {
	Service       string    `json:"service"`
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	LastFailureAt time.Time `json:"lastFailureAt,omitzero"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitzero"`
}

type serviceBreaker struct {
	state       State
	failures    int
	lastFailure time.Time
	nextAttempt time.Time
}

// Registry holds one breaker per external service name. Breakers across
// different service names are fully independent.
type Registry struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	services map[string]*serviceBreaker
}

type Option func(*Registry)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	r := &Registry{
		cfg:      cfg,
		now:      time.Now,
		services: make(map[string]*serviceBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register pre-creates breakers for the known service names so health
// snapshots list them before any traffic flows.
func (r *Registry) Register(services ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range services {
		if name == "" {
			continue
		}
		if _, ok := r.services[name]; !ok {
			r.services[name] = &serviceBreaker{state: StateClosed}
		}
	}
}

// Check reports whether a call to the service is currently permitted.
// A closed breaker always permits. An open breaker permits only once the
// cool-down has elapsed, at which point it transitions to half-open and
// lets a single probe through. A half-open breaker permits.
func (r *Registry) Check(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.breaker(service)
	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if !r.now().Before(b.nextAttempt) {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes a half-open breaker and resets its failure count.
// In any other state it is a no-op.
func (r *Registry) RecordSuccess(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.breaker(service)
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = 0
		b.nextAttempt = time.Time{}
	}
}

// RecordFailure increments the failure count. Reaching the threshold while
// closed opens the breaker; any failure while half-open re-opens it with a
// fresh timeout without re-accumulating failures.
func (r *Registry) RecordFailure(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.breaker(service)
	now := r.now()
	b.failures++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failures >= r.cfg.FailureThreshold {
			b.state = StateOpen
			b.nextAttempt = now.Add(r.cfg.OpenTimeout)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.nextAttempt = now.Add(r.cfg.OpenTimeout)
	}
}

// State returns the current state for a service without side effects.
func (r *Registry) State(service string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breaker(service).state
}

// ForceOpen trips a breaker immediately with a full timeout. Used by the
// error handler when a dependency reports a hard outage.
func (r *Registry) ForceOpen(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.breaker(service)
	b.state = StateOpen
	b.nextAttempt = r.now().Add(r.cfg.OpenTimeout)
}

// Snapshots returns a point-in-time view of every known breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.services))
	for name, b := range r.services {
		out = append(out, Snapshot{
			Service:       name,
			State:         b.state,
			Failures:      b.failures,
			LastFailureAt: b.lastFailure,
			NextAttemptAt: b.nextAttempt,
		})
	}
	return out
}

// breaker returns the entry for a service, creating it lazily.
// Must be called with the lock held.
func (r *Registry) breaker(service string) *serviceBreaker {
	b, ok := r.services[service]
	if !ok {
		b = &serviceBreaker{state: StateClosed}
		r.services[service] = b
	}
	return b
}
