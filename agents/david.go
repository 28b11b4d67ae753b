package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

// cheaperImageModel is the alternate-service fallback target when the
// primary image model is failing.
const cheaperImageModel = "imagen-3.0-generate-002"

// registerGenerationFallbacks binds the image-generation fallback chain:
// a cheaper model first, then a single reduced-parameter attempt.
func (o *Orchestrator) registerGenerationFallbacks() {
	o.handler.Catalog().RegisterHandler(resilience.FallbackAlternateService,
		func(ctx context.Context, params map[string]any) (any, error) {
			if o.images == nil {
				return nil, fmt.Errorf("no image provider configured")
			}
			prompt, _ := params["prompt"].(string)
			count, _ := params["count"].(int)
			return o.images.GenerateImages(ctx, gen.ImageRequest{
				Model:  cheaperImageModel,
				Prompt: prompt,
				Count:  count,
			})
		})
	o.handler.Catalog().RegisterHandler(resilience.FallbackSimplified,
		func(ctx context.Context, params map[string]any) (any, error) {
			if o.images == nil {
				return nil, fmt.Errorf("no image provider configured")
			}
			prompt, _ := params["prompt"].(string)
			return o.images.GenerateImages(ctx, gen.ImageRequest{
				Prompt: prompt,
				Count:  1,
			})
		})
}

// GenerateAssets produces still images for the creative stage. The call is
// budget-gated, admission-limited per session, and falls back from the
// primary model to a cheaper model, reduced parameters, and finally a
// placeholder asset.
func (o *Orchestrator) GenerateAssets(ctx context.Context, sessionID, prompt string, count int) ([]pipeline.GeneratedAsset, *pipeline.Session, error) {
	if prompt == "" {
		return nil, nil, fmt.Errorf("%w: prompt is required", resilience.ErrInvalidArgument)
	}
	if count <= 0 {
		count = 1
	}

	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if s.CurrentAgent != pipeline.AgentDavid {
		return nil, nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}

	estimate := o.costs.Image*float64(count) + o.costs.Storage
	if err := o.budget.Authorize(s.Costs.Total(), estimate); err != nil {
		return nil, s, err
	}
	if err := o.gate.Acquire(s.ID); err != nil {
		return nil, s, err
	}
	defer o.gate.Release(s.ID)

	if err := s.BeginWork(pipeline.PhaseCreating); err != nil {
		return nil, s, err
	}

	fallbackParams := map[string]any{"prompt": prompt, "count": count}
	result, err := o.handler.DoGeneration(ctx, s.ID, "generateImages", "imagen",
		func(ctx context.Context) (any, error) {
			if o.images == nil {
				return nil, fmt.Errorf("%w: no image provider configured", resilience.ErrServiceUnavailable)
			}
			return o.images.GenerateImages(ctx, gen.ImageRequest{Prompt: prompt, Count: count})
		},
		resilience.Fallback{
			Kind:        resilience.FallbackAlternateService,
			Description: "generate with a cheaper image model",
			Params:      fallbackParams,
		},
		resilience.Fallback{
			Kind:        resilience.FallbackSimplified,
			Description: "generate a single image with default parameters",
			Params:      fallbackParams,
		},
	)
	if err != nil {
		s.FinishWork()
		_ = o.saveSession(ctx, s)
		return nil, s, err
	}

	assets := o.storeGenerated(ctx, s, result, prompt)
	if s.Creative == nil {
		s.Creative = &pipeline.CreativeDirection{Confidence: 0.8}
	}
	s.Creative.Assets = append(s.Creative.Assets, assets...)

	s.FinishWork()
	if err := o.saveSession(ctx, s); err != nil {
		return assets, s, err
	}
	return assets, s, nil
}

// storeGenerated uploads real generation output and converts fallback
// payloads into placeholder asset references.
func (o *Orchestrator) storeGenerated(ctx context.Context, s *pipeline.Session, result any, prompt string) []pipeline.GeneratedAsset {
	generated, ok := result.([]gen.Asset)
	if !ok {
		// A placeholder or degraded fallback answered; no paid call landed.
		return []pipeline.GeneratedAsset{placeholderAsset("image")}
	}

	s.AddCost("image", o.costs.Image*float64(len(generated)))
	out := make([]pipeline.GeneratedAsset, 0, len(generated))
	for _, a := range generated {
		ref := o.uploadAsset(ctx, s, a, prompt)
		out = append(out, ref)
	}
	return out
}

// uploadAsset persists one artifact through the storage fallback chain:
// a failed upload degrades to a placeholder reference with stored=false
// rather than blocking the pipeline.
func (o *Orchestrator) uploadAsset(ctx context.Context, s *pipeline.Session, a gen.Asset, prompt string) pipeline.GeneratedAsset {
	name := fmt.Sprintf("%s/%s-%s", s.ID, a.Kind, a.ID)

	result, err := o.handler.DoStorage(ctx, s.ID, "uploadAsset",
		func(ctx context.Context) (any, error) {
			if o.uploads == nil {
				return nil, fmt.Errorf("%w: no object store configured", resilience.ErrServiceUnavailable)
			}
			return o.uploads.Upload(ctx, name, a.MIMEType, a.Data)
		})
	if err != nil {
		return placeholderAsset(string(a.Kind))
	}

	ref, ok := result.(objstore.ObjectRef)
	if !ok {
		return placeholderAsset(string(a.Kind))
	}

	s.AddCost("storage", o.costs.Storage)
	return pipeline.GeneratedAsset{
		ID:        a.ID,
		Kind:      string(a.Kind),
		URL:       ref.URL,
		MIMEType:  a.MIMEType,
		Stored:    ref.Stored,
		Cost:      o.costs.Image,
		CreatedAt: a.CreatedAt,
	}
}

func placeholderAsset(kind string) pipeline.GeneratedAsset {
	return pipeline.GeneratedAsset{
		ID:        uuid.NewString(),
		Kind:      kind,
		URL:       "/demo/placeholder.png",
		Stored:    false,
		CreatedAt: time.Now().UTC(),
	}
}

// FinalizeDecision records one finalized visual decision for the handoff
// to Zara.
func (o *Orchestrator) FinalizeDecision(ctx context.Context, sessionID, description string) (*pipeline.Session, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: decision description is required", resilience.ErrInvalidArgument)
	}
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentAgent != pipeline.AgentDavid {
		return nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}

	if s.Creative == nil {
		s.Creative = &pipeline.CreativeDirection{Confidence: 0.8}
	}
	s.Creative.Decisions = append(s.Creative.Decisions, pipeline.VisualDecision{
		ID:          uuid.NewString(),
		Description: description,
		Finalized:   true,
	})
	s.ReadyForHandoff = len(s.Creative.Assets) > 0

	if err := o.saveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateCreative sets the narrative and format selections.
func (o *Orchestrator) UpdateCreative(ctx context.Context, sessionID, narrative, format string) (*pipeline.Session, error) {
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentAgent != pipeline.AgentDavid {
		return nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}

	if s.Creative == nil {
		s.Creative = &pipeline.CreativeDirection{Confidence: 0.8}
	}
	if narrative != "" {
		s.Creative.Narrative = narrative
	}
	if format != "" {
		s.Creative.Format = format
	}
	if err := o.saveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
