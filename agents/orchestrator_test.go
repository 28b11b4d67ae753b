package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adcraftlabs/adcraft/breaker"
	"github.com/adcraftlabs/adcraft/docstore"
	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/pipeline"
	"github.com/adcraftlabs/adcraft/resilience"
)

type mockText struct {
	calls int
	reply string
	err   error
}

func (m *mockText) Name() string { return "mock-text" }

func (m *mockText) GenerateText(ctx context.Context, req gen.TextRequest) (gen.TextResult, error) {
	m.calls++
	if m.err != nil {
		return gen.TextResult{}, m.err
	}
	return gen.TextResult{Text: m.reply}, nil
}

type mockImages struct {
	calls int
	err   error
}

func (m *mockImages) Name() string { return "mock-images" }

func (m *mockImages) GenerateImages(ctx context.Context, req gen.ImageRequest) ([]gen.Asset, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	out := make([]gen.Asset, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, gen.Asset{
			ID:        fmt.Sprintf("img-%d", i),
			Kind:      gen.AssetImage,
			MIMEType:  "image/png",
			Data:      []byte("png-bytes"),
			CreatedAt: time.Now().UTC(),
		})
	}
	return out, nil
}

type mockVideos struct {
	calls int
	err   error
}

func (m *mockVideos) Name() string { return "mock-videos" }

func (m *mockVideos) GenerateVideo(ctx context.Context, req gen.VideoRequest) (gen.Asset, error) {
	m.calls++
	if m.err != nil {
		return gen.Asset{}, m.err
	}
	return gen.Asset{
		ID:        "vid-1",
		Kind:      gen.AssetVideo,
		MIMEType:  "video/mp4",
		Data:      []byte("mp4-bytes"),
		CreatedAt: time.Now().UTC(),
	}, nil
}

type testEnv struct {
	orch   *Orchestrator
	text   *mockText
	images *mockImages
	videos *mockVideos
	store  *pipeline.SessionStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	handler := resilience.NewHandler(
		breaker.NewRegistry(breaker.DefaultConfig()),
		resilience.NewCatalog(),
		resilience.NewHistory(0),
		nil,
		resilience.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	store := pipeline.NewSessionStore(docstore.NewMemory(), nil)

	text := &mockText{reply: "analysis done"}
	images := &mockImages{}
	videos := &mockVideos{}

	orch, err := NewOrchestrator(Deps{
		Sessions: store,
		Handler:  handler,
		Text:     text,
		Images:   images,
		Videos:   videos,
		Uploads:  objstore.NewMemory(),
		Budget:   pipeline.DefaultBudget(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return &testEnv{orch: orch, text: text, images: images, videos: videos, store: store}
}

func (e *testEnv) davidSession(t *testing.T) *pipeline.Session {
	t.Helper()
	s := pipeline.NewSession("Solar Lantern", "camping lantern", "en")
	_ = s.Activate()
	s.CurrentAgent = pipeline.AgentDavid
	s.Analysis = &pipeline.Analysis{
		TargetAudience: &pipeline.Audience{Demographics: "campers"},
		Confidence:     0.9,
		Completed:      true,
	}
	if err := e.store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return s
}

func TestCreateSessionStartsOnMaya(t *testing.T) {
	e := newTestEnv(t)

	s, err := e.orch.CreateSession(context.Background(), "Solar Lantern", "desc", "en")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.CurrentAgent != pipeline.AgentMaya || s.Phase != pipeline.PhaseReady {
		t.Fatalf("unexpected new session state: %s/%s", s.CurrentAgent, s.Phase)
	}

	loaded, err := e.orch.Status(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if loaded.ID != s.ID {
		t.Errorf("loaded wrong session: %s", loaded.ID)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.orch.Status(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestChatAppendsHistoryAndCharges(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.orch.CreateSession(context.Background(), "p", "", "en")

	reply, updated, err := e.orch.Chat(context.Background(), s.ID, pipeline.AgentMaya, "analyze this", nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "analysis done" {
		t.Errorf("reply = %q", reply)
	}
	if len(updated.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(updated.History))
	}
	if updated.Costs.Vision == 0 {
		t.Error("successful paid call must accrue vision cost")
	}
	if updated.Phase != pipeline.PhaseReady {
		t.Errorf("phase = %s, want ready after request", updated.Phase)
	}
	if e.text.calls != 1 {
		t.Errorf("text provider invoked %d times, want 1", e.text.calls)
	}
}

func TestChatDegradesWithoutCharging(t *testing.T) {
	e := newTestEnv(t)
	e.text.err = errors.New("invalid request payload")
	s, _ := e.orch.CreateSession(context.Background(), "p", "", "en")

	reply, updated, err := e.orch.Chat(context.Background(), s.ID, pipeline.AgentMaya, "hi", nil)
	if err != nil {
		t.Fatalf("degraded chat must not surface a raw error, got %v", err)
	}
	if reply == "" {
		t.Fatal("expected a degraded reply")
	}
	if updated.Costs.Total() != 0 {
		t.Errorf("fallback replies must be free, cost = %v", updated.Costs.Total())
	}
}

func TestChatWrongAgentRejected(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.orch.CreateSession(context.Background(), "p", "", "en")

	_, _, err := e.orch.Chat(context.Background(), s.ID, pipeline.AgentZara, "hi", nil)
	if !errors.Is(err, ErrWrongAgent) {
		t.Fatalf("expected ErrWrongAgent, got %v", err)
	}
}

func TestBudgetGateNeverDispatchesGeneration(t *testing.T) {
	e := newTestEnv(t)
	s := e.davidSession(t)
	// $299.90 spent leaves less than the $0.25 estimate for two images.
	s.Costs.Video = 299.9
	if err := e.store.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	_, _, err := e.orch.GenerateAssets(context.Background(), s.ID, "warm campsite shot", 2)
	if !pipeline.IsBudgetExceeded(err) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
	if e.images.calls != 0 {
		t.Fatalf("image provider invoked %d times over budget, want 0", e.images.calls)
	}
}

func TestGenerationCapRejectsNotQueues(t *testing.T) {
	e := newTestEnv(t)
	s := e.davidSession(t)
	for i := 0; i < pipeline.MaxConcurrentGenerations; i++ {
		if err := e.orch.gate.Acquire(s.ID); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}

	_, _, err := e.orch.GenerateAssets(context.Background(), s.ID, "shot", 1)
	if !errors.Is(err, pipeline.ErrGenerationLimit) {
		t.Fatalf("expected ErrGenerationLimit, got %v", err)
	}
	if e.images.calls != 0 {
		t.Errorf("image provider invoked %d times at cap, want 0", e.images.calls)
	}
}

func TestSequentialGenerationsDoNotExhaustCap(t *testing.T) {
	e := newTestEnv(t)
	s := e.davidSession(t)

	// More lifetime requests than the concurrency cap must all be admitted.
	rounds := pipeline.MaxConcurrentGenerations + 2
	for i := 0; i < rounds; i++ {
		if _, _, err := e.orch.GenerateAssets(context.Background(), s.ID, "shot", 1); err != nil {
			t.Fatalf("sequential request %d rejected: %v", i+1, err)
		}
	}
	if e.images.calls != rounds {
		t.Errorf("image provider invoked %d times, want %d", e.images.calls, rounds)
	}
	if e.orch.gate.Active(s.ID) != 0 {
		t.Errorf("in-flight count = %d after completion, want 0", e.orch.gate.Active(s.ID))
	}
}

func TestGenerateAssetsUploadsAndCharges(t *testing.T) {
	e := newTestEnv(t)
	s := e.davidSession(t)

	assets, updated, err := e.orch.GenerateAssets(context.Background(), s.ID, "campsite at dawn", 2)
	if err != nil {
		t.Fatalf("GenerateAssets failed: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(assets))
	}
	for _, a := range assets {
		if !a.Stored || a.URL == "" {
			t.Errorf("asset not stored: %+v", a)
		}
	}
	if updated.Costs.Image == 0 || updated.Costs.Storage == 0 {
		t.Errorf("expected image and storage spend, got %+v", updated.Costs)
	}
	if updated.Creative == nil || len(updated.Creative.Assets) != 2 {
		t.Fatal("assets must be recorded on the session")
	}
}

func TestGenerateAssetsFallsBackToPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	e.images.err = errors.New("invalid prompt content")
	s := e.davidSession(t)

	assets, updated, err := e.orch.GenerateAssets(context.Background(), s.ID, "shot", 1)
	if err != nil {
		t.Fatalf("fallback path must not fail the request: %v", err)
	}
	if len(assets) != 1 || assets[0].Stored {
		t.Fatalf("expected one placeholder asset, got %+v", assets)
	}
	if updated.Costs.Image != 0 {
		t.Errorf("placeholder must not charge, cost = %v", updated.Costs.Image)
	}
}

func TestFullHandoffChain(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	s, err := e.orch.CreateSession(ctx, "Solar Lantern", "desc", "en")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.orch.CompleteAnalysis(ctx, s.ID, pipeline.Analysis{
		Summary:        "rugged lantern",
		TargetAudience: &pipeline.Audience{Demographics: "campers"},
		Confidence:     0.9,
	}); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}

	result, updated, err := e.orch.Handoff(ctx, s.ID, pipeline.AgentDavid)
	if err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("handoff invalid: %v", result.Errors)
	}
	if updated.CurrentAgent != pipeline.AgentDavid {
		t.Fatalf("agent = %s, want david", updated.CurrentAgent)
	}

	if _, err := e.orch.Initialize(ctx, s.ID, pipeline.AgentDavid); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, _, err := e.orch.GenerateAssets(ctx, s.ID, "dawn shot", 1); err != nil {
		t.Fatalf("GenerateAssets failed: %v", err)
	}
	if _, err := e.orch.FinalizeDecision(ctx, s.ID, "warm golden light"); err != nil {
		t.Fatalf("FinalizeDecision failed: %v", err)
	}

	result, updated, err = e.orch.Handoff(ctx, s.ID, pipeline.AgentZara)
	if err != nil {
		t.Fatalf("Handoff to zara failed: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("handoff to zara invalid: %v", result.Errors)
	}
	if updated.CurrentAgent != pipeline.AgentZara {
		t.Fatalf("agent = %s, want zara", updated.CurrentAgent)
	}
	if len(updated.Handoffs) != 2 {
		t.Errorf("handoffs = %d, want 2", len(updated.Handoffs))
	}
}

func TestProduceAndAccept(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	s := e.davidSession(t)
	s.CurrentAgent = pipeline.AgentZara
	if err := e.store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	production, updated, err := e.orch.ProduceVideo(ctx, s.ID, "final cut")
	if err != nil {
		t.Fatalf("ProduceVideo failed: %v", err)
	}
	if !production.Stored || production.VideoURL == "" {
		t.Fatalf("unexpected production: %+v", production)
	}
	if updated.Costs.Video == 0 {
		t.Error("expected video spend")
	}

	done, err := e.orch.AcceptProduction(ctx, s.ID)
	if err != nil {
		t.Fatalf("AcceptProduction failed: %v", err)
	}
	if done.Phase != pipeline.PhaseCompleted {
		t.Errorf("phase = %s, want completed", done.Phase)
	}
	if !done.Production.Accepted {
		t.Error("production must be accepted")
	}
}

// flakyStore fails reads on demand to simulate a document-store outage.
type flakyStore struct {
	docstore.Store
	failGets bool
}

func (f *flakyStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if f.failGets {
		return nil, errors.New("network unreachable")
	}
	return f.Store.Get(ctx, collection, id)
}

func TestStatusDistinguishesOutageFromMissing(t *testing.T) {
	handler := resilience.NewHandler(
		breaker.NewRegistry(breaker.DefaultConfig()),
		resilience.NewCatalog(),
		resilience.NewHistory(0),
		nil,
		resilience.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	flaky := &flakyStore{Store: docstore.NewMemory()}
	store := pipeline.NewSessionStore(flaky, nil)
	orch, err := NewOrchestrator(Deps{
		Sessions: store,
		Handler:  handler,
		Budget:   pipeline.DefaultBudget(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	ctx := context.Background()

	s, err := orch.CreateSession(ctx, "p", "", "en")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// A healthy store answers a missing id with not-found.
	if _, err := orch.Status(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	// An outage on an existing session must not read as missing, and must
	// not degrade into a placeholder success either.
	flaky.failGets = true
	_, err = orch.Status(ctx, s.ID)
	if err == nil {
		t.Fatal("outage with no cached snapshot must surface an error")
	}
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("store outage misreported as session not found: %v", err)
	}
	if !errors.Is(err, resilience.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}
