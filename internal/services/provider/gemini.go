package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// GeminiProvider adapts the Google GenAI SDK to the capability-provider
// boundary.
type GeminiProvider struct {
	cfg            models.ProviderConfig
	embeddingModel string
	clientCache    *clientcache.Cache[*genai.Client]
}

// NewGeminiProvider creates a Gemini capability provider.
func NewGeminiProvider(cfg models.ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg:            cfg,
		embeddingModel: defaultGeminiEmbeddingModel,
		clientCache:    clientcache.NewCache[*genai.Client](),
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// EstimateUnits implements Provider.
func (p *GeminiProvider) EstimateUnits(text string) int { return estimateUnits(text) }

func (p *GeminiProvider) client(ctx context.Context) (*genai.Client, error) {
	hash, err := configHash(p.cfg)
	if err != nil {
		return nil, models.NewInternalError("failed to hash gemini provider config", err)
	}

	return p.clientCache.GetOrCreate(hash, func() (*genai.Client, error) {
		if p.cfg.APIKey == "" {
			return nil, models.NewProviderError(p.Name(), "API key not configured", nil)
		}

		fiberlog.Debugf("GeminiProvider: creating client (config hash: %s)", hash[:8])
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, models.NewProviderError(p.Name(), "failed to create client", err)
		}
		return client, nil
	})
}

// GenerateCompletion implements Provider.
func (p *GeminiProvider) GenerateCompletion(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, p.wrapError("generate request failed", err)
	}

	out := &models.CompletionResponse{
		Provider: p.Name(),
		Model:    req.Model,
		Content:  resp.Text(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.Usage{
			InputUnits:  int(resp.UsageMetadata.PromptTokenCount),
			OutputUnits: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	fiberlog.Debugf("GeminiProvider: completion for %s finished in %v", req.Model, time.Since(start))
	return out, nil
}

// GenerateEmbedding implements Provider.
func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.EmbedContent(ctx, p.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, p.wrapError("embedding request failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, models.NewProviderError(p.Name(), "embedding response was empty", nil)
	}

	return resp.Embeddings[0].Values, nil
}

func (p *GeminiProvider) wrapError(message string, err error) error {
	var apiErr genai.APIError
	if ok := asError(err, &apiErr); ok && apiErr.Code == http.StatusTooManyRequests {
		return models.NewRateLimitError(p.Name(), 0, err)
	}
	return models.NewProviderError(p.Name(), message, err)
}
