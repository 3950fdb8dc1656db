package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/imagefile"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Provider implements models.AnalysisService using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// NewProvider builds a genai client. httpClient may be nil.
func NewProvider(ctx context.Context, cfg config.GeminiConfig, httpClient *http.Client) (*Provider, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: c, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	data, mime, err := imagefile.Load(imageRef)
	if err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: "analyze image", Err: err}
	}
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(data, mime),
	}
	return p.generate(ctx, "analyze image", parts, tokenBudget)
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	return p.generate(ctx, "generate text", []*genai.Part{genai.NewPartFromText(prompt)}, tokenBudget)
}

func (p *Provider) generate(ctx context.Context, op string, parts []*genai.Part, tokenBudget int) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	var gcfg *genai.GenerateContentConfig
	if tokenBudget > 0 {
		gcfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(tokenBudget)}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: classify(err)}
	}

	text := responseText(resp)
	if text == "" {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: fmt.Errorf("%w: empty candidate", models.ErrInvalidResponse)}
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", models.HTTPStatusError(apiErr.Code), apiErr.Message)
	}
	return err
}

var _ models.AnalysisService = (*Provider)(nil)
