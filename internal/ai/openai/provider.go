package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/imagefile"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Provider implements models.AnalysisService against any Chat Completions
// compatible endpoint.
type Provider struct {
	name        string
	client      openaisdk.Client
	visionModel string
	textModel   string
}

// NewProvider returns a Provider talking to OpenAI.
func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.VisionModel, cfg.TextModel, timeout)
}

// NewCompatible returns a Provider for a self-hosted OpenAI-compatible server.
// An empty baseURL uses the SDK default.
func NewCompatible(name, baseURL, apiKey, visionModel, textModel string, timeout time.Duration) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Provider{
		name:        name,
		client:      openaisdk.NewClient(opts...),
		visionModel: visionModel,
		textModel:   textModel,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	data, mime, err := imagefile.Load(imageRef)
	if err != nil {
		return "", &models.ServiceError{Provider: p.name, Op: "analyze image", Err: err}
	}

	parts := []openaisdk.ChatCompletionContentPartUnionParam{
		openaisdk.TextContentPart(prompt),
		openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
			URL: imagefile.EncodeDataURL(data, mime),
		}),
	}
	return p.complete(ctx, "analyze image", p.visionModel, openaisdk.UserMessage(parts), tokenBudget)
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	return p.complete(ctx, "generate text", p.textModel, openaisdk.UserMessage(prompt), tokenBudget)
}

func (p *Provider) complete(ctx context.Context, op, model string, msg openaisdk.ChatCompletionMessageParamUnion, tokenBudget int) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{msg},
	}
	if tokenBudget > 0 {
		params.MaxTokens = openaisdk.Int(int64(tokenBudget))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &models.ServiceError{Provider: p.name, Op: op, Err: classify(err)}
	}
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content, nil
		}
	}
	return "", &models.ServiceError{Provider: p.name, Op: op, Err: fmt.Errorf("%w: no choice content", models.ErrInvalidResponse)}
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", models.HTTPStatusError(apiErr.StatusCode), apiErr.Message)
	}
	return err
}

var _ models.AnalysisService = (*Provider)(nil)
