package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider adapts the Anthropic Messages SDK to the
// capability-provider boundary. Anthropic exposes no embedding endpoint, so
// GenerateEmbedding always fails with a provider error.
type AnthropicProvider struct {
	cfg         models.ProviderConfig
	clientCache *clientcache.Cache[*anthropic.Client]
}

// NewAnthropicProvider creates an Anthropic capability provider.
func NewAnthropicProvider(cfg models.ProviderConfig) *AnthropicProvider {
	return &AnthropicProvider{
		cfg:         cfg,
		clientCache: clientcache.NewCache[*anthropic.Client](),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// EstimateUnits implements Provider.
func (p *AnthropicProvider) EstimateUnits(text string) int { return estimateUnits(text) }

func (p *AnthropicProvider) client() (*anthropic.Client, error) {
	hash, err := configHash(p.cfg)
	if err != nil {
		return nil, models.NewInternalError("failed to hash anthropic provider config", err)
	}

	return p.clientCache.GetOrCreate(hash, func() (*anthropic.Client, error) {
		if p.cfg.APIKey == "" {
			return nil, models.NewProviderError(p.Name(), "API key not configured", nil)
		}

		opts := []anthropicOption.RequestOption{
			anthropicOption.WithAPIKey(p.cfg.APIKey),
		}
		if p.cfg.BaseURL != "" {
			opts = append(opts, anthropicOption.WithBaseURL(p.cfg.BaseURL))
		}
		for key, value := range p.cfg.Headers {
			opts = append(opts, anthropicOption.WithHeader(key, value))
		}

		fiberlog.Debugf("AnthropicProvider: creating client (config hash: %s)", hash[:8])
		client := anthropic.NewClient(opts...)
		return &client, nil
	})
}

// GenerateCompletion implements Provider.
func (p *AnthropicProvider) GenerateCompletion(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	start := time.Now()
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError("message request failed", err)
	}

	content := ""
	for _, block := range message.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	fiberlog.Debugf("AnthropicProvider: completion for %s finished in %v", req.Model, time.Since(start))
	return &models.CompletionResponse{
		Provider: p.Name(),
		Model:    req.Model,
		Content:  content,
		Usage: models.Usage{
			InputUnits:  int(message.Usage.InputTokens),
			OutputUnits: int(message.Usage.OutputTokens),
		},
	}, nil
}

// GenerateEmbedding implements Provider.
func (p *AnthropicProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, models.NewProviderError(p.Name(), "embeddings are not supported", nil)
}

func (p *AnthropicProvider) wrapError(message string, err error) error {
	var apiErr *anthropic.Error
	if ok := asError(err, &apiErr); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		return models.NewRateLimitError(p.Name(), retryAfterHeader(apiErr.Response), err)
	}
	return models.NewProviderError(p.Name(), message, err)
}
