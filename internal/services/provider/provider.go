// Package provider defines the capability-provider boundary the dispatch
// core depends on, and the concrete SDK-backed adapters implementing it.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

// Provider is the capability boundary: completion, embedding, and a local
// unit estimate. Implemented once per backend; the dispatcher and executor
// depend only on this interface.
type Provider interface {
	// Name returns the provider identifier used in CapabilityProfile.Provider.
	Name() string

	// GenerateCompletion performs one completion call. Failures are returned
	// as structured AppErrors attributed to this provider.
	GenerateCompletion(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error)

	// GenerateEmbedding returns a fixed-length vector for the text, or a
	// provider error if embeddings are unsupported or unavailable.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// EstimateUnits is a deterministic, local token-equivalent estimate used
	// only for cost filtering, never for billing.
	EstimateUnits(text string) int
}

// estimateUnits approximates token-equivalent units at four bytes per unit.
func estimateUnits(text string) int {
	units := len(text) / 4
	if units < 1 {
		units = 1
	}
	return units
}

// asError is errors.As with type inference, shared by the adapters' error
// mapping.
func asError[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// configHash fingerprints a provider config for client cache keying without
// exposing the raw API key.
func configHash(cfg models.ProviderConfig) (string, error) {
	type configForHash struct {
		BaseURL    string
		TimeoutMs  int
		Headers    map[string]string
		APIKeyHash string
	}

	apiKeyHash := sha256.Sum256([]byte(cfg.APIKey))
	hashConfig := configForHash{
		BaseURL:    cfg.BaseURL,
		TimeoutMs:  cfg.TimeoutMs,
		Headers:    cfg.Headers,
		APIKeyHash: fmt.Sprintf("%x", apiKeyHash[:8]),
	}

	configJSON, err := json.Marshal(hashConfig)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(configJSON)
	return fmt.Sprintf("%x", hash[:16]), nil
}

// Registry holds the configured providers keyed by lowercase name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds adapters for every configured provider. Registration
// happens once at startup; the registry is read-only afterwards.
func NewRegistry(providerConfigs map[string]models.ProviderConfig) (*Registry, error) {
	registry := &Registry{providers: make(map[string]Provider, len(providerConfigs))}

	for name, cfg := range providerConfigs {
		adapter, err := newAdapter(strings.ToLower(name), cfg)
		if err != nil {
			return nil, err
		}
		registry.providers[strings.ToLower(name)] = adapter
	}

	return registry, nil
}

func newAdapter(name string, cfg models.ProviderConfig) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (supported: openai, anthropic, gemini)", name)
	}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
