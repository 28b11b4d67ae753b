// Package pipeline holds the cross-agent session state machine, the handoff
// validator and packager, and the budget gate. Sessions flow through three
// agent stages (Maya analyzes, David directs, Zara produces) and persist as
// documents between requests.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Agent string

const (
	AgentMaya  Agent = "maya"
	AgentDavid Agent = "david"
	AgentZara  Agent = "zara"
)

// NextAgent returns the downstream stage, or "" for the final stage.
func NextAgent(a Agent) Agent {
	switch a {
	case AgentMaya:
		return AgentDavid
	case AgentDavid:
		return AgentZara
	}
	return ""
}

type Phase string

const (
	PhaseCreated       Phase = "created"
	PhaseReady         Phase = "ready"
	PhaseAnalyzing     Phase = "analyzing"
	PhaseCreating      Phase = "creating"
	PhaseAwaitingInput Phase = "awaiting-input"
	PhaseCompleted     Phase = "completed"
)

type SubPhase string

const (
	SubPhaseAnalysis            SubPhase = "analysis"
	SubPhaseCreativeDevelopment SubPhase = "creative-development"
	SubPhaseAssetGeneration     SubPhase = "asset-generation"
	SubPhaseFinalization        SubPhase = "finalization"
)

// MaxConcurrentGenerations caps in-flight generation operations per session.
// Excess requests are rejected, not queued.
const MaxConcurrentGenerations = 3

// ErrGenerationLimit is returned when a session is already at the
// concurrent-generation cap.
var ErrGenerationLimit = fmt.Errorf("generation limit reached: at most %d concurrent generations per session", MaxConcurrentGenerations)

// GenerationGate admits generation operations per session. Counts live in
// process memory, not on the persisted document: an in-flight operation is
// a property of this process, and a counter written to the store would
// survive the request that incremented it.
type GenerationGate struct {
	mu       sync.Mutex
	inflight map[string]int
}

func NewGenerationGate() *GenerationGate {
	return &GenerationGate{inflight: make(map[string]int)}
}

// Acquire admits one operation or rejects with ErrGenerationLimit. Every
// successful Acquire must be paired with a Release.
func (g *GenerationGate) Acquire(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[sessionID] >= MaxConcurrentGenerations {
		return ErrGenerationLimit
	}
	g.inflight[sessionID]++
	return nil
}

func (g *GenerationGate) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.inflight[sessionID]; n <= 1 {
		delete(g.inflight, sessionID)
	} else {
		g.inflight[sessionID] = n - 1
	}
}

// Active reports the in-flight count for a session.
func (g *GenerationGate) Active(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[sessionID]
}

// CostBreakdown tracks cumulative spend per operation category, in dollars.
type CostBreakdown struct {
	Vision  float64 `json:"vision"`
	Image   float64 `json:"image"`
	Video   float64 `json:"video"`
	Storage float64 `json:"storage"`
}

func (c CostBreakdown) Total() float64 {
	return c.Vision + c.Image + c.Video + c.Storage
}

type Message struct {
	Role      string    `json:"role"`
	Agent     Agent     `json:"agent,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Audience is the target-audience result of Maya's analysis. Required for
// the handoff to David.
type Audience struct {
	Demographics string `json:"demographics"`
	Tone         string `json:"tone,omitempty"`
}

// VisualPreferences is advisory input for David. Absence downgrades to
// defaults with a handoff warning, never a hard failure.
type VisualPreferences struct {
	Style   string `json:"style,omitempty"`
	Palette string `json:"palette,omitempty"`
}

type Analysis struct {
	Summary           string             `json:"summary,omitempty"`
	TargetAudience    *Audience          `json:"targetAudience,omitempty"`
	VisualPreferences *VisualPreferences `json:"visualPreferences,omitempty"`
	Confidence        float64            `json:"confidence"`
	Completed         bool               `json:"completed"`
}

type VisualDecision struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Finalized   bool   `json:"finalized"`
}

// GeneratedAsset references one produced artifact. Stored is false when the
// upload fell back to a placeholder reference.
type GeneratedAsset struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	MIMEType  string    `json:"mimeType,omitempty"`
	Stored    bool      `json:"stored"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreativeDirection struct {
	Narrative  string           `json:"narrative,omitempty"`
	Format     string           `json:"format,omitempty"`
	Decisions  []VisualDecision `json:"decisions,omitempty"`
	Assets     []GeneratedAsset `json:"assets,omitempty"`
	Confidence float64          `json:"confidence"`
}

type Production struct {
	VideoURL string `json:"videoUrl,omitempty"`
	Stored   bool   `json:"stored"`
	Accepted bool   `json:"accepted"`
}

// Session is the long-lived per-pipeline-run record. It is persisted as a
// document after every request; concurrent requests against the same
// session race with last-write-wins semantics.
type Session struct {
	ID                 string   `json:"id"`
	ProductName        string   `json:"productName"`
	ProductDescription string   `json:"productDescription,omitempty"`
	Locale             string   `json:"locale,omitempty"`
	CurrentAgent       Agent    `json:"currentAgent"`
	Phase              Phase    `json:"phase"`
	SubPhase           SubPhase `json:"subPhase,omitempty"`

	Costs           CostBreakdown `json:"costs"`
	History         []Message     `json:"history,omitempty"`
	ReadyForHandoff bool          `json:"readyForHandoff"`

	Analysis   *Analysis          `json:"analysis,omitempty"`
	Creative   *CreativeDirection `json:"creative,omitempty"`
	Production *Production        `json:"production,omitempty"`
	Handoffs   []HandoffPackage   `json:"handoffs,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewSession(productName, productDescription, locale string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                 uuid.NewString(),
		ProductName:        productName,
		ProductDescription: productDescription,
		Locale:             locale,
		CurrentAgent:       AgentMaya,
		Phase:              PhaseCreated,
		SubPhase:           SubPhaseAnalysis,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Activate moves a freshly created or handed-off session into ready.
func (s *Session) Activate() error {
	if s.Phase != PhaseCreated {
		return fmt.Errorf("cannot activate session in phase %q", s.Phase)
	}
	s.Phase = PhaseReady
	s.touch()
	return nil
}

// BeginWork enters a working phase. Only a ready session may begin work, so
// the machine is always interruptible between requests.
func (s *Session) BeginWork(phase Phase) error {
	switch phase {
	case PhaseAnalyzing, PhaseCreating, PhaseAwaitingInput:
	default:
		return fmt.Errorf("%q is not a working phase", phase)
	}
	if s.Phase != PhaseReady {
		return fmt.Errorf("cannot begin %q from phase %q", phase, s.Phase)
	}
	s.Phase = phase
	s.touch()
	return nil
}

// FinishWork returns the session to ready after a request completes,
// regardless of the request's outcome.
func (s *Session) FinishWork() {
	if s.Phase == PhaseAnalyzing || s.Phase == PhaseCreating || s.Phase == PhaseAwaitingInput {
		s.Phase = PhaseReady
	}
	s.touch()
}

// Complete marks the stage finished: a validated handoff was accepted, or
// the final production was accepted.
func (s *Session) Complete() error {
	if s.Phase != PhaseReady {
		return fmt.Errorf("cannot complete session in phase %q", s.Phase)
	}
	s.Phase = PhaseCompleted
	s.touch()
	return nil
}

// AcceptHandoff records the package and moves the session to the downstream
// agent, back in the created state pending that stage's initialization.
func (s *Session) AcceptHandoff(pkg HandoffPackage) error {
	if pkg.TargetAgent == "" {
		return fmt.Errorf("handoff package has no target agent")
	}
	if err := s.Complete(); err != nil {
		return err
	}
	s.Handoffs = append(s.Handoffs, pkg)
	s.CurrentAgent = pkg.TargetAgent
	s.Phase = PhaseCreated
	s.ReadyForHandoff = false
	switch pkg.TargetAgent {
	case AgentDavid:
		s.SubPhase = SubPhaseCreativeDevelopment
	case AgentZara:
		s.SubPhase = SubPhaseFinalization
	}
	s.touch()
	return nil
}

// AppendMessage adds to the ordered conversation history.
func (s *Session) AppendMessage(role string, agent Agent, content string) {
	s.History = append(s.History, Message{
		Role:      role,
		Agent:     agent,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.touch()
}

// AddCost accrues spend in a category.
func (s *Session) AddCost(category string, amount float64) {
	switch category {
	case "vision":
		s.Costs.Vision += amount
	case "image":
		s.Costs.Image += amount
	case "video":
		s.Costs.Video += amount
	case "storage":
		s.Costs.Storage += amount
	}
	s.touch()
}
