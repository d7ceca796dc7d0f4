package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/services/provider"
)

// fakeProvider scripts completion and embedding behavior per test.
type fakeProvider struct {
	name            string
	completionErr   error
	embedding       []float32
	embeddingErr    error
	completionCalls atomic.Int64
	embeddingCalls  atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateCompletion(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	f.completionCalls.Add(1)
	if f.completionErr != nil {
		return nil, f.completionErr
	}
	return &models.CompletionResponse{
		Provider: f.name,
		Model:    req.Model,
		Content:  "response from " + f.name,
		Usage:    models.Usage{InputUnits: 10, OutputUnits: 20},
	}, nil
}

func (f *fakeProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.embeddingCalls.Add(1)
	if f.embeddingErr != nil {
		return nil, f.embeddingErr
	}
	return f.embedding, nil
}

func (f *fakeProvider) EstimateUnits(text string) int { return len(text) / 4 }

// fakeSource resolves fake providers by lowercase name.
type fakeSource map[string]*fakeProvider

func (s fakeSource) Get(name string) (provider.Provider, bool) {
	p, ok := s[strings.ToLower(name)]
	return p, ok
}

func fastDispatchConfig(profiles ...models.CapabilityProfile) models.DispatchConfig {
	return models.DispatchConfig{
		Profiles: profiles,
		Cache: models.CacheConfig{
			Enabled:           true,
			SemanticEnabled:   true,
			SemanticThreshold: 0.9,
		},
		Executor: models.ExecutorConfig{
			MinIntervalMs:    1,
			DefaultTimeoutMs: 5000,
			BackoffBaseMs:    1,
		},
	}
}

func newTestDispatcher(t *testing.T, cfg models.DispatchConfig, providers fakeSource) *Dispatcher {
	t.Helper()
	d := New(cfg, providers, nil, nil)
	t.Cleanup(d.Close)
	return d
}

func TestProcessRequestRejectsEmptyText(t *testing.T) {
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{})

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := d.ProcessRequest(context.Background(), text, models.RequestOptions{})
		appErr, ok := models.AsAppError(err)
		if !ok || appErr.Type != models.ErrorTypeValidation {
			t.Fatalf("text %q: expected validation error, got %v", text, err)
		}
	}
}

func TestProcessRequestExactCacheHit(t *testing.T) {
	openai := &fakeProvider{name: "openai", embedding: []float32{1, 0, 0}}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"openai": openai})

	first, err := d.ProcessRequest(context.Background(), "what is the capital of France", models.RequestOptions{
		PreferredProvider: "openai",
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.CacheTier != "" {
		t.Fatalf("first response should not be cache-tagged, got %q", first.CacheTier)
	}

	// Different surrounding whitespace and casing, same fingerprint.
	second, err := d.ProcessRequest(context.Background(), "  WHAT is the   capital of France ", models.RequestOptions{
		PreferredProvider: "openai",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.CacheTier != models.CacheTierExact {
		t.Fatalf("expected exact cache tier, got %q", second.CacheTier)
	}
	if second.Content != first.Content {
		t.Fatalf("cached content mismatch: %q vs %q", second.Content, first.Content)
	}
	if n := openai.completionCalls.Load(); n != 1 {
		t.Fatalf("expected 1 completion call, got %d", n)
	}
}

func TestProcessRequestSemanticCacheHit(t *testing.T) {
	// Both prompts embed to the same vector, so the second is a semantic hit
	// despite a different fingerprint.
	openai := &fakeProvider{name: "openai", embedding: []float32{0.6, 0.8}}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"openai": openai})

	if _, err := d.ProcessRequest(context.Background(), "capital city of France?", models.RequestOptions{
		PreferredProvider: "openai",
	}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	resp, err := d.ProcessRequest(context.Background(), "which city is the capital of France", models.RequestOptions{
		PreferredProvider: "openai",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if resp.CacheTier != models.CacheTierSemantic {
		t.Fatalf("expected semantic cache tier, got %q", resp.CacheTier)
	}
	if n := openai.completionCalls.Load(); n != 1 {
		t.Fatalf("expected 1 completion call, got %d", n)
	}
}

func TestProcessRequestCachingDisabledPerRequest(t *testing.T) {
	openai := &fakeProvider{name: "openai", embedding: []float32{1, 0}}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"openai": openai})

	off := false
	opts := models.RequestOptions{PreferredProvider: "openai", CacheResults: &off}
	for i := 0; i < 2; i++ {
		if _, err := d.ProcessRequest(context.Background(), "hello there", opts); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}
	if n := openai.completionCalls.Load(); n != 2 {
		t.Fatalf("expected 2 completion calls with caching off, got %d", n)
	}
	if n := openai.embeddingCalls.Load(); n != 0 {
		t.Fatalf("expected no embedding calls with caching off, got %d", n)
	}
}

func TestProcessRequestFallsBackToNextCandidate(t *testing.T) {
	// cost-ascending puts openai first; it fails every attempt, gemini serves.
	openai := &fakeProvider{name: "openai", completionErr: errors.New("upstream unavailable")}
	gemini := &fakeProvider{name: "gemini", embedding: []float32{1, 0}}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{
		"openai": openai,
		"gemini": gemini,
	})

	resp, err := d.ProcessRequest(context.Background(), "summarize this paragraph", models.RequestOptions{
		FallbackStrategy: models.StrategyCostAscending,
		MaxCost:          3, // excludes anthropic
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if resp.Provider != "gemini" {
		t.Fatalf("expected gemini to serve, got %s", resp.Provider)
	}
	if openai.completionCalls.Load() == 0 {
		t.Fatal("expected openai to be attempted first")
	}
}

func TestProcessRequestAllCandidatesFailed(t *testing.T) {
	openai := &fakeProvider{name: "openai", completionErr: errors.New("boom")}
	gemini := &fakeProvider{name: "gemini", completionErr: errors.New("boom")}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{
		"openai": openai,
		"gemini": gemini,
	})

	text := "summarize this paragraph"
	_, err := d.ProcessRequest(context.Background(), text, models.RequestOptions{MaxCost: 3})
	appErr, ok := models.AsAppError(err)
	if !ok || appErr.Type != models.ErrorTypeAllCandidatesFailed {
		t.Fatalf("expected all-candidates-failed error, got %v", err)
	}

	// Failures must not populate the cache: a retry reaches the providers.
	before := openai.completionCalls.Load() + gemini.completionCalls.Load()
	_, err = d.ProcessRequest(context.Background(), text, models.RequestOptions{MaxCost: 3})
	if appErr, ok := models.AsAppError(err); !ok || appErr.Type != models.ErrorTypeAllCandidatesFailed {
		t.Fatalf("expected all-candidates-failed error on retry, got %v", err)
	}
	after := openai.completionCalls.Load() + gemini.completionCalls.Load()
	if after <= before {
		t.Fatal("expected retry to reach providers, not the cache")
	}
}

func TestProcessRequestEmptyEligibleSet(t *testing.T) {
	openai := &fakeProvider{name: "openai"}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"openai": openai})

	_, err := d.ProcessRequest(context.Background(), "hello", models.RequestOptions{
		MinCapability: map[string]float64{models.CapabilityReasoning: 99},
	})
	appErr, ok := models.AsAppError(err)
	if !ok || appErr.Type != models.ErrorTypeAllCandidatesFailed {
		t.Fatalf("expected all-candidates-failed error, got %v", err)
	}
	if n := openai.completionCalls.Load(); n != 0 {
		t.Fatalf("expected no completion calls for empty eligible set, got %d", n)
	}
}

func TestProcessRequestSpecificModelsWithoutList(t *testing.T) {
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{})

	_, err := d.ProcessRequest(context.Background(), "hello", models.RequestOptions{
		FallbackStrategy: models.StrategySpecificModels,
	})
	appErr, ok := models.AsAppError(err)
	if !ok || appErr.Type != models.ErrorTypeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestProcessRequestSkipsUnregisteredProviders(t *testing.T) {
	// anthropic and gemini profiles exist but only gemini has a provider.
	gemini := &fakeProvider{name: "gemini", embedding: []float32{1, 0}}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"gemini": gemini})

	resp, err := d.ProcessRequest(context.Background(), "hello", models.RequestOptions{
		FallbackStrategy: models.StrategyCostAscending,
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if resp.Provider != "gemini" {
		t.Fatalf("expected gemini to serve, got %s", resp.Provider)
	}
}

func TestProcessRequestSurvivesEmbeddingFailure(t *testing.T) {
	openai := &fakeProvider{name: "openai", embeddingErr: errors.New("embeddings down")}
	d := newTestDispatcher(t, fastDispatchConfig(testProfiles()...), fakeSource{"openai": openai})

	text := "what time is it"
	if _, err := d.ProcessRequest(context.Background(), text, models.RequestOptions{
		PreferredProvider: "openai",
	}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// The exact tier still works without embeddings.
	resp, err := d.ProcessRequest(context.Background(), text, models.RequestOptions{
		PreferredProvider: "openai",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if resp.CacheTier != models.CacheTierExact {
		t.Fatalf("expected exact cache tier, got %q", resp.CacheTier)
	}
}
