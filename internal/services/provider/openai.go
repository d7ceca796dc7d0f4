package provider

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	openaiOption "github.com/openai/openai-go/v2/option"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIProvider adapts the OpenAI SDK (and OpenAI-compatible backends) to
// the capability-provider boundary.
type OpenAIProvider struct {
	cfg            models.ProviderConfig
	embeddingModel string
	clientCache    *clientcache.Cache[*openai.Client]
}

// NewOpenAIProvider creates an OpenAI capability provider.
func NewOpenAIProvider(cfg models.ProviderConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:            cfg,
		embeddingModel: defaultOpenAIEmbeddingModel,
		clientCache:    clientcache.NewCache[*openai.Client](),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// EstimateUnits implements Provider.
func (p *OpenAIProvider) EstimateUnits(text string) int { return estimateUnits(text) }

func (p *OpenAIProvider) client() (*openai.Client, error) {
	hash, err := configHash(p.cfg)
	if err != nil {
		return nil, models.NewInternalError("failed to hash openai provider config", err)
	}

	return p.clientCache.GetOrCreate(hash, func() (*openai.Client, error) {
		if p.cfg.APIKey == "" {
			return nil, models.NewProviderError(p.Name(), "API key not configured", nil)
		}

		opts := []openaiOption.RequestOption{
			openaiOption.WithAPIKey(p.cfg.APIKey),
		}
		if p.cfg.BaseURL != "" {
			opts = append(opts, openaiOption.WithBaseURL(p.cfg.BaseURL))
		}
		for key, value := range p.cfg.Headers {
			opts = append(opts, openaiOption.WithHeader(key, value))
		}

		fiberlog.Debugf("OpenAIProvider: creating client (config hash: %s)", hash[:8])
		client := openai.NewClient(opts...)
		return &client, nil
	})
}

// GenerateCompletion implements Provider.
func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	start := time.Now()
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError("completion request failed", err)
	}
	if len(completion.Choices) == 0 {
		return nil, models.NewProviderError(p.Name(), "completion returned no choices", nil)
	}

	fiberlog.Debugf("OpenAIProvider: completion for %s finished in %v", req.Model, time.Since(start))
	return &models.CompletionResponse{
		Provider: p.Name(),
		Model:    req.Model,
		Content:  completion.Choices[0].Message.Content,
		Usage: models.Usage{
			InputUnits:  int(completion.Usage.PromptTokens),
			OutputUnits: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// GenerateEmbedding implements Provider.
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, p.wrapError("embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, models.NewProviderError(p.Name(), "embedding response was empty", nil)
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// wrapError maps SDK failures into the AppError taxonomy: 429 becomes a
// rate-limit error carrying any Retry-After the server suggested.
func (p *OpenAIProvider) wrapError(message string, err error) error {
	var apiErr *openai.Error
	if ok := asError(err, &apiErr); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		return models.NewRateLimitError(p.Name(), retryAfterHeader(apiErr.Response), err)
	}
	return models.NewProviderError(p.Name(), message, err)
}

// retryAfterHeader parses a Retry-After seconds value from a response, zero
// when absent or malformed.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
