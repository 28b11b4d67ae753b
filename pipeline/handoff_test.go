package pipeline

import (
	"testing"
	"time"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(DefaultBudget())
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	return v
}

func analyzedSession() *Session {
	s := NewSession("Solar Lantern", "camping lantern", "en")
	_ = s.Activate()
	s.Analysis = &Analysis{
		Summary:        "rugged outdoor product",
		TargetAudience: &Audience{Demographics: "campers 25-45", Tone: "adventurous"},
		Confidence:     0.9,
		Completed:      true,
	}
	return s
}

func directedSession() *Session {
	s := analyzedSession()
	s.CurrentAgent = AgentDavid
	s.Creative = &CreativeDirection{
		Narrative: "dawn at the campsite",
		Decisions: []VisualDecision{{ID: "d1", Description: "warm light", Finalized: true}},
		Assets: []GeneratedAsset{{
			ID: "a1", Kind: "image", URL: "gs://b/a1.png", Stored: true, CreatedAt: time.Now().UTC(),
		}},
		Confidence: 0.85,
	}
	return s
}

func TestHandoffToDavidRequiresAnalysis(t *testing.T) {
	v := newTestValidator(t)

	s := NewSession("p", "", "en")
	_ = s.Activate()
	result, err := v.Prepare(s, AgentDavid, 1.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if result.IsValid {
		t.Fatal("missing analysis must block the handoff")
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected hard errors")
	}
	if result.Package != nil {
		t.Fatal("no package may be built on hard errors")
	}
}

func TestHandoffToDavidRequiresTargetAudience(t *testing.T) {
	v := newTestValidator(t)

	s := analyzedSession()
	s.Analysis.TargetAudience = nil
	result, err := v.Prepare(s, AgentDavid, 1.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if result.IsValid || result.Package != nil {
		t.Fatal("missing target audience must block the handoff")
	}
}

func TestHandoffAdvisoryFieldsWarnOnly(t *testing.T) {
	v := newTestValidator(t)

	s := analyzedSession()
	// No visual preferences captured.
	result, err := v.Prepare(s, AgentDavid, 1.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("advisory gaps must not block the handoff: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a defaults warning")
	}
	if result.Package == nil {
		t.Fatal("expected a built package")
	}
	if result.Package.SourceAgent != AgentMaya || result.Package.TargetAgent != AgentDavid {
		t.Errorf("unexpected package agents: %s -> %s", result.Package.SourceAgent, result.Package.TargetAgent)
	}
}

func TestHandoffLowConfidenceWarns(t *testing.T) {
	v := newTestValidator(t)

	s := analyzedSession()
	s.Analysis.VisualPreferences = &VisualPreferences{Style: "cinematic"}
	s.Analysis.Confidence = 0.5
	result, err := v.Prepare(s, AgentDavid, 1.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("low confidence must warn, not block: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a low-confidence warning")
	}
}

func TestHandoffToZaraRequiresDecisionsAndAssets(t *testing.T) {
	v := newTestValidator(t)

	s := directedSession()
	s.Creative.Decisions[0].Finalized = false
	result, err := v.Prepare(s, AgentZara, 5.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if result.IsValid {
		t.Fatal("no finalized decision must block the handoff")
	}

	s = directedSession()
	s.Creative.Assets = nil
	result, err = v.Prepare(s, AgentZara, 5.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if result.IsValid {
		t.Fatal("no generated asset must block the handoff")
	}

	s = directedSession()
	result, err = v.Prepare(s, AgentZara, 5.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !result.IsValid || result.Package == nil {
		t.Fatalf("complete creative direction must validate: %v", result.Errors)
	}
}

func TestHandoffBudgetGateIsTyped(t *testing.T) {
	v := newTestValidator(t)

	s := analyzedSession()
	s.Costs.Video = 299.0
	_, err := v.Prepare(s, AgentDavid, 5.0)
	if !IsBudgetExceeded(err) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
}

func TestHandoffEstimateMonotonicInAssets(t *testing.T) {
	v := newTestValidator(t)

	few := directedSession()
	result1, err := v.Prepare(few, AgentZara, 5.0)
	if err != nil || !result1.IsValid {
		t.Fatalf("Prepare failed: %v / %v", err, result1.Errors)
	}

	many := directedSession()
	for i := 0; i < 4; i++ {
		many.Creative.Assets = append(many.Creative.Assets, GeneratedAsset{
			ID: "extra", Kind: "image", URL: "gs://b/x.png", Stored: true, CreatedAt: time.Now().UTC(),
		})
	}
	result2, err := v.Prepare(many, AgentZara, 5.0)
	if err != nil || !result2.IsValid {
		t.Fatalf("Prepare failed: %v / %v", err, result2.Errors)
	}

	if result2.Package.EstimatedProcessingMs <= result1.Package.EstimatedProcessingMs {
		t.Errorf("estimate must grow with asset count: %d vs %d",
			result1.Package.EstimatedProcessingMs, result2.Package.EstimatedProcessingMs)
	}
}

func TestHandoffWrongDirectionRejected(t *testing.T) {
	v := newTestValidator(t)

	s := directedSession()
	result, err := v.Prepare(s, AgentMaya, 1.0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if result.IsValid {
		t.Fatal("backwards handoff must be rejected")
	}
}
