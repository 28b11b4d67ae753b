// Package agents implements the three stage orchestrators of the pipeline:
// Maya (product analysis), David (creative direction), Zara (production).
// Orchestrators are thin coordinators: they route generation calls through
// the resilience handler, keep session state current, and gate every paid
// call on the budget.
package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/adcraftlabs/adcraft/docstore"
	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/observe"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrWrongAgent is returned when a request targets a stage the session is
// not currently on.
var ErrWrongAgent = errors.New("session is not on this agent stage")

// OperationCosts holds the fixed per-operation cost estimates, in dollars.
type OperationCosts struct {
	Vision  float64 `yaml:"vision" json:"vision"`
	Image   float64 `yaml:"image" json:"image"`
	Video   float64 `yaml:"video" json:"video"`
	Storage float64 `yaml:"storage" json:"storage"`
}

func DefaultOperationCosts() OperationCosts {
	return OperationCosts{Vision: 0.05, Image: 0.12, Video: 2.50, Storage: 0.01}
}

// StaleSession is the cached-response fallback result: a session snapshot
// plus an explicit staleness warning for the user.
type StaleSession struct {
	Session  *pipeline.Session `json:"session"`
	CachedAt string            `json:"cachedAt"`
	Warning  string            `json:"warning"`
}

// Orchestrator coordinates all three agent stages over shared dependencies.
// The resilience handler and its breaker registry are process-wide.
type Orchestrator struct {
	sessions  *pipeline.SessionStore
	validator *pipeline.Validator
	handler   *resilience.Handler
	text      gen.TextProvider
	images    gen.ImageProvider
	videos    gen.VideoProvider
	uploads   objstore.Uploader
	observer  observe.Sink
	budget    pipeline.Budget
	costs     OperationCosts
	gate      *pipeline.GenerationGate
}

type Deps struct {
	Sessions  *pipeline.SessionStore
	Validator *pipeline.Validator
	Handler   *resilience.Handler
	Text      gen.TextProvider
	Images    gen.ImageProvider
	Videos    gen.VideoProvider
	Uploads   objstore.Uploader
	Observer  observe.Sink
	Budget    pipeline.Budget
	Costs     OperationCosts
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("resilience handler is required")
	}
	if deps.Validator == nil {
		v, err := pipeline.NewValidator(deps.Budget)
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}
	if deps.Observer == nil {
		deps.Observer = observe.NoopSink{}
	}
	if deps.Costs == (OperationCosts{}) {
		deps.Costs = DefaultOperationCosts()
	}

	o := &Orchestrator{
		sessions:  deps.Sessions,
		validator: deps.Validator,
		handler:   deps.Handler,
		text:      deps.Text,
		images:    deps.Images,
		videos:    deps.Videos,
		uploads:   deps.Uploads,
		observer:  deps.Observer,
		budget:    deps.Budget,
		costs:     deps.Costs,
		gate:      pipeline.NewGenerationGate(),
	}
	o.registerFallbacks()
	return o, nil
}

// registerFallbacks binds the handlers that need live dependencies: the
// cached-response fallback reads the redis session snapshot, and the
// generation alternatives call the image provider with cheaper settings.
func (o *Orchestrator) registerFallbacks() {
	o.registerGenerationFallbacks()
	o.handler.Catalog().RegisterHandler(resilience.FallbackCachedResponse,
		func(ctx context.Context, params map[string]any) (any, error) {
			id, _ := params["id"].(string)
			if id == "" {
				return nil, fmt.Errorf("no document id for cached response")
			}
			s, cachedAt, err := o.sessions.LoadCached(ctx, id)
			if err != nil {
				return nil, err
			}
			return StaleSession{
				Session:  s,
				CachedAt: cachedAt.Format("2006-01-02T15:04:05Z07:00"),
				Warning:  "session data may be stale; the primary store is unavailable",
			}, nil
		})
}

// Handler exposes the resilience core for health reporting.
func (o *Orchestrator) Handler() *resilience.Handler { return o.handler }

// Budget exposes the session spend policy.
func (o *Orchestrator) Budget() pipeline.Budget { return o.budget }

// CreateSession starts a new pipeline run on the Maya stage.
func (o *Orchestrator) CreateSession(ctx context.Context, productName, productDescription, locale string) (*pipeline.Session, error) {
	if productName == "" {
		return nil, fmt.Errorf("%w: product name is required", resilience.ErrInvalidArgument)
	}
	s := pipeline.NewSession(productName, productDescription, locale)
	if err := s.Activate(); err != nil {
		return nil, err
	}
	if err := o.saveSession(ctx, s); err != nil {
		return nil, err
	}
	o.emit(ctx, observe.Event{
		Kind:      observe.KindSession,
		Status:    observe.StatusStarted,
		Name:      "createSession",
		SessionID: s.ID,
		Agent:     string(s.CurrentAgent),
	})
	return s, nil
}

// Initialize moves a freshly handed-off stage into ready.
func (o *Orchestrator) Initialize(ctx context.Context, sessionID string, agent pipeline.Agent) (*pipeline.Session, error) {
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentAgent != agent {
		return nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}
	if s.Phase == pipeline.PhaseCreated {
		if err := s.Activate(); err != nil {
			return nil, err
		}
		if err := o.saveSession(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Status returns the current session snapshot.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	return o.loadSession(ctx, sessionID)
}

// Handoff validates the stage transition, and on success records the
// package and advances the session to the target agent.
func (o *Orchestrator) Handoff(ctx context.Context, sessionID string, target pipeline.Agent) (pipeline.ValidationResult, *pipeline.Session, error) {
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return pipeline.ValidationResult{}, nil, err
	}

	result, err := o.validator.Prepare(s, target, o.downstreamEstimate(target))
	if err != nil {
		return pipeline.ValidationResult{}, nil, err
	}
	if !result.IsValid {
		return result, s, nil
	}

	if err := s.AcceptHandoff(*result.Package); err != nil {
		return result, s, err
	}
	if err := o.saveSession(ctx, s); err != nil {
		return result, s, err
	}
	o.emit(ctx, observe.Event{
		Kind:      observe.KindHandoff,
		Status:    observe.StatusCompleted,
		Name:      fmt.Sprintf("%s-to-%s", result.Package.SourceAgent, target),
		SessionID: s.ID,
		Agent:     string(target),
		Message:   fmt.Sprintf("cost so far $%.2f", result.Package.CostSoFar),
	})
	return result, s, nil
}

// downstreamEstimate predicts the next stage's spend for the budget gate.
func (o *Orchestrator) downstreamEstimate(target pipeline.Agent) float64 {
	switch target {
	case pipeline.AgentDavid:
		return o.costs.Image*float64(pipeline.MaxConcurrentGenerations) + o.costs.Storage
	case pipeline.AgentZara:
		return o.costs.Video + o.costs.Storage
	}
	return 0
}

// loadSession reads the session directly first: a missing document is an
// answer, not an outage, and must never be degraded into a stale or
// placeholder success. Only infrastructure failures route through the
// resilience handler, where retry and the cached-snapshot fallback apply.
func (o *Orchestrator) loadSession(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", resilience.ErrInvalidArgument)
	}
	s, err := o.sessions.Load(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	result, derr := o.handler.DoDocStore(ctx, sessionID, "loadSession", "sessions", sessionID,
		func(ctx context.Context) (any, error) {
			s, err := o.sessions.Load(ctx, sessionID)
			if err != nil {
				if errors.Is(err, docstore.ErrNotFound) {
					return nil, fmt.Errorf("%w: %s", resilience.ErrNotFound, sessionID)
				}
				return nil, err
			}
			return s, nil
		})
	if derr != nil {
		if errors.Is(derr, resilience.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, derr
	}

	switch v := result.(type) {
	case *pipeline.Session:
		return v, nil
	case StaleSession:
		return v.Session, nil
	}
	return nil, fmt.Errorf("%w: session %s", resilience.ErrServiceUnavailable, sessionID)
}

func (o *Orchestrator) saveSession(ctx context.Context, s *pipeline.Session) error {
	_, err := o.handler.DoDocStore(ctx, s.ID, "saveSession", "sessions", s.ID,
		func(ctx context.Context) (any, error) {
			return nil, o.sessions.Save(ctx, s)
		})
	return err
}

func (o *Orchestrator) emit(ctx context.Context, event observe.Event) {
	_ = o.observer.Emit(ctx, event)
}
