package ollama

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

// Provider implements models.AnalysisService using Ollama's generate API.
type Provider struct {
	api   *httpapi.Client
	model string
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{
		api:   httpapi.NewClient(cfg.BaseURL, nil, timeout),
		model: cfg.Model,
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	data, _, err := imagefile.Load(imageRef)
	if err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: "analyze image", Err: err}
	}
	req := p.request(prompt, tokenBudget)
	req.Images = []string{base64.StdEncoding.EncodeToString(data)}
	return p.generate(ctx, "analyze image", req)
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	return p.generate(ctx, "generate text", p.request(prompt, tokenBudget))
}

func (p *Provider) request(prompt string, tokenBudget int) generateRequest {
	req := generateRequest{Model: p.model, Prompt: prompt, Stream: false}
	if tokenBudget > 0 {
		req.Options = &generateOptions{NumPredict: tokenBudget}
	}
	return req
}

func (p *Provider) generate(ctx context.Context, op string, req generateRequest) (string, error) {
	var resp generateResponse
	if err := p.api.PostJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: err}
	}
	if resp.Error != "" {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: fmt.Errorf("%w: %s", models.ErrInvalidResponse, resp.Error)}
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", &models.ServiceError{Provider: p.Name(), Op: op, Err: fmt.Errorf("%w: empty response", models.ErrInvalidResponse)}
	}
	return resp.Response, nil
}

// --- Ollama wire types ---

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Images  []string         `json:"images,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

var _ models.AnalysisService = (*Provider)(nil)
