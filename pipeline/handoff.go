package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// HandoffPackage is the serialized payload passed between agent stages.
// Immutable after creation and persisted on the session.
type HandoffPackage struct {
	ID          string         `json:"id"`
	SourceAgent Agent          `json:"sourceAgent"`
	TargetAgent Agent          `json:"targetAgent"`
	Payload     map[string]any `json:"payload"`
	Confidence  float64        `json:"confidence"`
	CostSoFar   float64        `json:"costSoFar"`
	Locale      string         `json:"locale,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`

	// EstimatedProcessingMs is a cosmetic downstream estimate, monotonic
	// in payload complexity.
	EstimatedProcessingMs int64 `json:"estimatedProcessingMs"`
}

// ValidationResult reports whether a handoff may proceed. Errors block the
// package from being built; warnings accompany a built package.
type ValidationResult struct {
	IsValid  bool            `json:"isValid"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Package  *HandoffPackage `json:"package,omitempty"`
}

const (
	confidenceWarningThreshold = 0.7

	baseProcessingMs     = 5_000
	perAssetProcessingMs = 12_000
	perDecisionMs        = 2_000
)

// Validator checks stage-transition completeness, enforces the budget gate,
// and packages session state for the downstream agent. Built packages are
// checked against a reflected JSON schema before being handed over.
type Validator struct {
	budget Budget
	schema *gojsonschema.Schema
}

func NewValidator(budget Budget) (*Validator, error) {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	reflected := reflector.Reflect(&HandoffPackage{})
	reflected.Version = "http://json-schema.org/draft-07/schema#"

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handoff schema: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile handoff schema: %w", err)
	}
	return &Validator{budget: budget, schema: schema}, nil
}

// Prepare validates a stage transition and, when valid, builds the package.
// A budget violation is returned as a typed error, not a validation entry:
// callers must not treat it as retryable or degradable.
func (v *Validator) Prepare(s *Session, target Agent, downstreamEstimate float64) (ValidationResult, error) {
	if s == nil {
		return ValidationResult{}, fmt.Errorf("session is required")
	}
	if target != NextAgent(s.CurrentAgent) {
		return ValidationResult{
			Errors: []string{fmt.Sprintf("agent %s cannot hand off to %s", s.CurrentAgent, target)},
		}, nil
	}

	if err := v.budget.Authorize(s.Costs.Total(), downstreamEstimate); err != nil {
		return ValidationResult{}, err
	}

	var result ValidationResult
	var payload map[string]any
	var confidence float64

	switch target {
	case AgentDavid:
		payload, confidence = v.validateForDavid(s, &result)
	case AgentZara:
		payload, confidence = v.validateForZara(s, &result)
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown target agent %q", target))
	}

	if len(result.Errors) > 0 {
		return result, nil
	}

	if confidence < confidenceWarningThreshold {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("upstream confidence %.2f is below %.1f; downstream stage may use defaults", confidence, confidenceWarningThreshold))
	}

	pkg := &HandoffPackage{
		ID:                    uuid.NewString(),
		SourceAgent:           s.CurrentAgent,
		TargetAgent:           target,
		Payload:               payload,
		Confidence:            confidence,
		CostSoFar:             s.Costs.Total(),
		Locale:                s.Locale,
		CreatedAt:             time.Now().UTC(),
		EstimatedProcessingMs: estimateProcessingMs(s),
	}
	if err := v.checkSchema(pkg); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	result.IsValid = true
	result.Package = pkg
	return result, nil
}

func (v *Validator) validateForDavid(s *Session, result *ValidationResult) (map[string]any, float64) {
	if s.Analysis == nil || !s.Analysis.Completed {
		result.Errors = append(result.Errors, "handoff to david requires a completed product analysis")
		return nil, 0
	}
	if s.Analysis.TargetAudience == nil {
		result.Errors = append(result.Errors, "handoff to david requires target-audience data")
		return nil, 0
	}
	if s.Analysis.VisualPreferences == nil {
		result.Warnings = append(result.Warnings, "no visual preferences captured; creative stage will use defaults")
	}

	payload := map[string]any{
		"productName": s.ProductName,
		"analysis":    s.Analysis,
	}
	return payload, s.Analysis.Confidence
}

func (v *Validator) validateForZara(s *Session, result *ValidationResult) (map[string]any, float64) {
	if s.Creative == nil {
		result.Errors = append(result.Errors, "handoff to zara requires creative direction")
		return nil, 0
	}
	finalized := 0
	for _, d := range s.Creative.Decisions {
		if d.Finalized {
			finalized++
		}
	}
	if finalized == 0 {
		result.Errors = append(result.Errors, "handoff to zara requires at least one finalized visual decision")
	}
	if len(s.Creative.Assets) == 0 {
		result.Errors = append(result.Errors, "handoff to zara requires at least one generated asset")
	}
	if len(result.Errors) > 0 {
		return nil, 0
	}
	if s.Creative.Narrative == "" {
		result.Warnings = append(result.Warnings, "no narrative selected; production stage will use the default treatment")
	}

	payload := map[string]any{
		"productName": s.ProductName,
		"creative":    s.Creative,
		"analysis":    s.Analysis,
	}
	return payload, s.Creative.Confidence
}

func (v *Validator) checkSchema(pkg *HandoffPackage) error {
	raw, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to serialize handoff package: %w", err)
	}
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to validate handoff package: %w", err)
	}
	if !res.Valid() {
		first := res.Errors()[0]
		return fmt.Errorf("handoff package failed schema validation: %s", first.String())
	}
	return nil
}

// estimateProcessingMs grows with payload complexity. The absolute values
// are cosmetic; only monotonicity in asset count matters.
func estimateProcessingMs(s *Session) int64 {
	est := int64(baseProcessingMs)
	if s.Creative != nil {
		est += int64(len(s.Creative.Assets)) * perAssetProcessingMs
		est += int64(len(s.Creative.Decisions)) * perDecisionMs
	}
	return est
}
