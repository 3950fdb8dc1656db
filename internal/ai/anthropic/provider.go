package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/ai/httpapi"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/imagefile"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

const (
	apiVersion = "2023-06-01"
	// The messages API requires max_tokens on every request.
	defaultMaxTokens = 4096
)

// Provider implements models.AnalysisService using the Anthropic Messages API.
type Provider struct {
	api   *httpapi.Client
	model string
}

func NewProvider(cfg config.AnthropicConfig, timeout time.Duration) *Provider {
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": apiVersion,
	}
	return &Provider{
		api:   httpapi.NewClient(cfg.BaseURL, headers, timeout),
		model: cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	data, mime, err := imagefile.Load(imageRef)
	if err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: "analyze image", Err: err}
	}
	content := []contentBlock{
		{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: mime,
				Data:      base64.StdEncoding.EncodeToString(data),
			},
		},
		{Type: "text", Text: prompt},
	}
	return p.send(ctx, "analyze image", content, tokenBudget)
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	return p.send(ctx, "generate text", []contentBlock{{Type: "text", Text: prompt}}, tokenBudget)
}

func (p *Provider) send(ctx context.Context, op string, content []contentBlock, tokenBudget int) (string, error) {
	if tokenBudget <= 0 {
		tokenBudget = defaultMaxTokens
	}
	req := messagesRequest{
		Model:     p.model,
		MaxTokens: tokenBudget,
		Messages:  []message{{Role: "user", Content: content}},
	}

	var resp messagesResponse
	if err := p.api.PostJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: fmt.Errorf("%w: no text content", models.ErrInvalidResponse)}
	}
	return sb.String(), nil
}

// --- Anthropic wire types ---

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

var _ models.AnalysisService = (*Provider)(nil)
