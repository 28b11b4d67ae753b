package agents

import (
	"context"
	"fmt"

	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

// Chat runs one conversational turn on the session's current stage. The
// model call is budget-gated and routed through the resilience handler;
// when every fallback fails the user still gets a degraded reply rather
// than a raw provider error.
func (o *Orchestrator) Chat(ctx context.Context, sessionID string, agent pipeline.Agent, message string, images []gen.InlineImage) (string, *pipeline.Session, error) {
	if message == "" {
		return "", nil, fmt.Errorf("%w: message is required", resilience.ErrInvalidArgument)
	}
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	if s.CurrentAgent != agent {
		return "", nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}

	phase := pipeline.PhaseCreating
	if agent == pipeline.AgentMaya {
		phase = pipeline.PhaseAnalyzing
	}
	if err := s.BeginWork(phase); err != nil {
		return "", nil, err
	}

	// Budget gate before any paid dispatch.
	if err := o.budget.Authorize(s.Costs.Total(), o.costs.Vision); err != nil {
		s.FinishWork()
		_ = o.saveSession(ctx, s)
		return "", s, err
	}

	s.AppendMessage("user", agent, message)

	reply, charged, err := o.runChat(ctx, s, agent, message, images)
	if err != nil {
		s.FinishWork()
		_ = o.saveSession(ctx, s)
		return "", s, err
	}
	if charged {
		s.AddCost("vision", o.costs.Vision)
	}

	s.AppendMessage("assistant", agent, reply)
	if agent == pipeline.AgentMaya {
		o.recordAnalysisProgress(s, reply)
	}

	s.FinishWork()
	if err := o.saveSession(ctx, s); err != nil {
		return "", s, err
	}
	return reply, s, nil
}

// runChat dispatches the model call and normalizes fallback results into a
// user-facing reply. The second return reports whether a paid call actually
// succeeded (fallback replies are free).
func (o *Orchestrator) runChat(ctx context.Context, s *pipeline.Session, agent pipeline.Agent, message string, images []gen.InlineImage) (string, bool, error) {
	op := func(ctx context.Context) (any, error) {
		if o.text == nil {
			return nil, fmt.Errorf("%w: no text provider configured", resilience.ErrServiceUnavailable)
		}
		return o.text.GenerateText(ctx, gen.TextRequest{
			System: systemPromptFor(agent),
			Prompt: message,
			Images: images,
		})
	}

	var result any
	var err error
	if agent == pipeline.AgentMaya && len(images) > 0 {
		result, err = o.handler.DoVision(ctx, s.ID, "analyzeProduct", op)
	} else {
		result, err = o.handler.Do(ctx, resilience.OpInfo{
			SessionID: s.ID,
			Operation: "chat",
			Category:  resilience.CategoryModel,
		}, op)
	}
	if err != nil {
		return "", false, err
	}

	switch v := result.(type) {
	case gen.TextResult:
		return v.Text, true, nil
	case resilience.Degraded:
		return v.Warning, false, nil
	case map[string]any:
		return "The assistant is temporarily degraded; please try again shortly.", false, nil
	}
	return fmt.Sprintf("%v", result), false, nil
}

// recordAnalysisProgress keeps the latest assistant reply as the analysis
// summary until CompleteAnalysis fixes the structured result.
func (o *Orchestrator) recordAnalysisProgress(s *pipeline.Session, reply string) {
	if s.Analysis == nil {
		s.Analysis = &pipeline.Analysis{}
	}
	if !s.Analysis.Completed {
		s.Analysis.Summary = reply
	}
}

func systemPromptFor(agent pipeline.Agent) string {
	switch agent {
	case pipeline.AgentMaya:
		return "You are Maya, a product analyst. Analyze the product and its target audience."
	case pipeline.AgentDavid:
		return "You are David, a creative director. Develop the commercial's visual direction."
	case pipeline.AgentZara:
		return "You are Zara, a video producer. Finalize the commercial production."
	}
	return ""
}
