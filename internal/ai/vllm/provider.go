package vllm

import (
	"time"

	"github.com/kiranshivaraju/threatlens/internal/ai/openai"
	"github.com/kiranshivaraju/threatlens/internal/config"
)

// vLLM ignores the key but the SDK refuses to send a request without one.
const placeholderKey = "EMPTY"

// NewProvider returns an OpenAI-compatible provider pointed at a vLLM server.
// The same model serves both vision and text prompts.
func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, placeholderKey, cfg.Model, cfg.Model, timeout)
}
