package resilience

import (
	"context"
	"fmt"
	"sync"
)

type FallbackKind string

const (
	FallbackDemoPlaceholder     FallbackKind = "demo-placeholder"
	FallbackCachedResponse      FallbackKind = "cached-response"
	FallbackSimplified          FallbackKind = "simplified-operation"
	FallbackAlternateService    FallbackKind = "alternate-service"
	FallbackGracefulDegradation FallbackKind = "graceful-degradation"
)

// Fallback is a named alternative action. It carries no executable code:
// kinds are dispatched through the catalog's handler table, which keeps
// strategies serializable and testable in isolation.
type Fallback struct {
	Kind        FallbackKind   `json:"kind"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
}

// FallbackFunc executes one fallback kind. Implementations must be safe for
// concurrent use; dependencies (caches, alternate providers) are bound when
// the handler is registered at startup.
type FallbackFunc func(ctx context.Context, params map[string]any) (any, error)

// Degraded is the universal last-resort result: a warning instead of a
// hard failure.
type Degraded struct {
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning"`
}

// Catalog is the static per-category fallback table plus the handler table
// that executes each kind. Populated at initialization and read-only
// afterwards in practice; guarded anyway since registration order at
// startup is not fixed.
type Catalog struct {
	mu         sync.RWMutex
	strategies map[Category][]Fallback
	handlers   map[FallbackKind]FallbackFunc
}

func NewCatalog() *Catalog {
	c := &Catalog{
		strategies: make(map[Category][]Fallback),
		handlers:   make(map[FallbackKind]FallbackFunc),
	}

	c.handlers[FallbackGracefulDegradation] = gracefulDegradation
	c.handlers[FallbackDemoPlaceholder] = demoPlaceholder

	c.strategies[CategoryGeneration] = []Fallback{
		{Kind: FallbackDemoPlaceholder, Description: "serve a demo creative asset"},
	}
	c.strategies[CategoryVision] = []Fallback{
		{Kind: FallbackDemoPlaceholder, Description: "serve a canned analysis summary"},
	}
	c.strategies[CategoryObjectStorage] = []Fallback{
		{
			Kind:        FallbackDemoPlaceholder,
			Description: "continue without persisting; return a placeholder reference",
			Params:      map[string]any{"stored": false},
		},
	}
	c.strategies[CategoryDocumentStore] = []Fallback{
		{Kind: FallbackCachedResponse, Description: "serve cached session data with a staleness warning"},
	}
	c.strategies[CategoryRateLimit] = []Fallback{
		{Kind: FallbackCachedResponse, Description: "serve the most recent cached response"},
	}

	return c
}

// Register appends strategies to a category's ordered list.
func (c *Catalog) Register(category Category, strategies ...Fallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[category] = append(c.strategies[category], strategies...)
}

// RegisterHandler binds the executable for a fallback kind. Handlers
// registered at wiring time may close over real dependencies (redis cache,
// alternate model clients); the strategy values themselves stay plain data.
func (c *Catalog) RegisterHandler(kind FallbackKind, fn FallbackFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = fn
}

// Strategies returns the ordered list for a category with the universal
// graceful-degradation strategy appended as the guaranteed last resort.
// Categories with no dedicated entries still receive the universal fallback.
func (c *Catalog) Strategies(category Category) []Fallback {
	c.mu.RLock()
	defer c.mu.RUnlock()

	listed := c.strategies[category]
	out := make([]Fallback, 0, len(listed)+1)
	out = append(out, listed...)
	out = append(out, Fallback{
		Kind:        FallbackGracefulDegradation,
		Description: "return a degraded result with a warning",
	})
	return out
}

// Execute dispatches a fallback through the handler table.
func (c *Catalog) Execute(ctx context.Context, f Fallback) (any, error) {
	c.mu.RLock()
	fn, ok := c.handlers[f.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for fallback kind %q", f.Kind)
	}
	return fn(ctx, f.Params)
}

func gracefulDegradation(_ context.Context, params map[string]any) (any, error) {
	warning := "service temporarily degraded; returning partial result"
	if w, ok := params["warning"].(string); ok && w != "" {
		warning = w
	}
	return Degraded{Degraded: true, Warning: warning}, nil
}

func demoPlaceholder(_ context.Context, params map[string]any) (any, error) {
	out := map[string]any{
		"placeholder": true,
		"url":         "/demo/placeholder.png",
	}
	for k, v := range params {
		out[k] = v
	}
	return out, nil
}
