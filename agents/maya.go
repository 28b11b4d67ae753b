package agents

import (
	"context"
	"fmt"

	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

// CompleteAnalysis fixes the structured analysis result on the session and
// flags readiness for the handoff to David. The handoff validator remains
// the authority on whether the analysis is actually sufficient.
func (o *Orchestrator) CompleteAnalysis(ctx context.Context, sessionID string, analysis pipeline.Analysis) (*pipeline.Session, error) {
	s, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.CurrentAgent != pipeline.AgentMaya {
		return nil, fmt.Errorf("%w: session is on %s", ErrWrongAgent, s.CurrentAgent)
	}
	if analysis.TargetAudience == nil {
		return nil, fmt.Errorf("%w: analysis requires target-audience data", resilience.ErrInvalidArgument)
	}

	analysis.Completed = true
	if analysis.Confidence == 0 {
		analysis.Confidence = 0.8
	}
	if analysis.Summary == "" && s.Analysis != nil {
		analysis.Summary = s.Analysis.Summary
	}
	s.Analysis = &analysis
	s.ReadyForHandoff = true

	if err := o.saveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
