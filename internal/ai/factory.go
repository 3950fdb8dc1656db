package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/threatlens/internal/ai/anthropic"
	"github.com/kiranshivaraju/threatlens/internal/ai/gemini"
	"github.com/kiranshivaraju/threatlens/internal/ai/ollama"
	"github.com/kiranshivaraju/threatlens/internal/ai/openai"
	"github.com/kiranshivaraju/threatlens/internal/ai/vllm"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AnalysisService, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.RequestTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.RequestTimeout), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini, &http.Client{Timeout: cfg.RequestTimeout})
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.RequestTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, vllm, gemini, ollama, anthropic", cfg.Provider)
	}
}
