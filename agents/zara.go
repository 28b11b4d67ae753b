package agents

import (
	"context"
	"fmt"

	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/observe"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

// ProduceVideo renders the final commercial clip. Budget-gated and
// admission-limited like every generation; a failed render degrades to a
// placeholder production rather than a hard failure.
func (o *Orchestrator) ProduceVideo(ctx context.Context, sessionID, prompt string) (*pipeline.Production, *pipeline.Session, error) {
	if prompt == "" {
		return nil, nil, fmt.Errorf("%w: prompt is required", resilience.ErrInvalidArgument)
	}
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if s.CurrentAgent != pipeline.AgentZara {
		return nil, s, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}

	estimate := o.costs.Video + o.costs.Storage
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

	result, err := o.handler.DoGeneration(ctx, s.ID, "generateVideo", "veo",
		func(ctx context.Context) (any, error) {
			if o.videos == nil {
				return nil, fmt.Errorf("%w: no video provider configured", resilience.ErrServiceUnavailable)
			}
			return o.videos.GenerateVideo(ctx, gen.VideoRequest{Prompt: prompt})
		})
	if err != nil {
		s.FinishWork()
		_ = o.saveSession(ctx, s)
		return nil, s, err
	}

	production := o.storeProduction(ctx, s, result)
	s.Production = production
	s.ReadyForHandoff = false

	s.FinishWork()
	if err := o.saveSession(ctx, s); err != nil {
		return production, s, err
	}
	o.emit(ctx, observe.Event{
		Kind:      observe.KindGeneration,
		Status:    observe.StatusCompleted,
		Name:      "produceVideo",
		SessionID: s.ID,
		Agent:     string(pipeline.AgentZara),
		Service:   "veo",
	})
	return production, s, nil
}

func (o *Orchestrator) storeProduction(ctx context.Context, s *pipeline.Session, result any) *pipeline.Production {
	asset, ok := result.(gen.Asset)
	if !ok {
		return &pipeline.Production{VideoURL: "/demo/placeholder.mp4", Stored: false}
	}
	s.AddCost("video", o.costs.Video)

	// Veo may return a hosted URI without bytes; only upload real payloads.
	if len(asset.Data) == 0 {
		return &pipeline.Production{VideoURL: asset.URL, Stored: asset.URL != ""}
	}

	name := fmt.Sprintf("%s/video-%s", s.ID, asset.ID)
	uploaded, err := o.handler.DoStorage(ctx, s.ID, "uploadVideo",
		func(ctx context.Context) (any, error) {
			if o.uploads == nil {
				return nil, fmt.Errorf("%w: no object store configured", resilience.ErrServiceUnavailable)
			}
			return o.uploads.Upload(ctx, name, asset.MIMEType, asset.Data)
		})
	if err != nil {
		return &pipeline.Production{VideoURL: "/demo/placeholder.mp4", Stored: false}
	}
	ref, ok := uploaded.(objstore.ObjectRef)
	if !ok {
		return &pipeline.Production{VideoURL: "/demo/placeholder.mp4", Stored: false}
	}
	s.AddCost("storage", o.costs.Storage)
	return &pipeline.Production{VideoURL: ref.URL, Stored: ref.Stored}
}

// AcceptProduction marks the final output accepted and completes the run.
func (o *Orchestrator) AcceptProduction(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentAgent != pipeline.AgentZara {
		return nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}
	if s.Production == nil {
		return nil, fmt.Errorf("%w: no production to accept", resilience.ErrInvalidArgument)
	}

	s.Production.Accepted = true
	if err := s.Complete(); err != nil {
		return nil, err
	}
	if err := o.saveSession(ctx, s); err != nil {
		return nil, err
	}
	o.emit(ctx, observe.Event{
		Kind:      observe.KindSession,
		Status:    observe.StatusCompleted,
		Name:      "acceptProduction",
		SessionID: s.ID,
		Agent:     string(pipeline.AgentZara),
	})
	return s, nil
}
