package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// ArchitectureJSON is the canned diagram response returned by NewMockProvider.
const ArchitectureJSON = `{
  "description": "Payment gateway fronted by an API tier backed by a relational database.",
  "components": [
    {"name": "Web Client", "type": "USER", "description": "Browser checkout page", "technologies": ["React"]},
    {"name": "Payment API", "type": "API", "description": "Accepts payment requests", "technologies": ["Go", "REST"]},
    {"name": "Ledger DB", "type": "DATABASE", "description": "Stores transactions", "technologies": ["PostgreSQL"]}
  ],
  "data_flows": ["Web Client -> Payment API over HTTPS", "Payment API -> Ledger DB over TLS"],
  "trust_boundaries": ["Internet / DMZ", "DMZ / internal network"]
}`

// ThreatsJSON is the canned per-category response returned by NewMockProvider.
const ThreatsJSON = `{
  "threats": [
    {
      "title": "Stolen session token",
      "description": "An attacker replays a captured token.",
      "severity": "HIGH",
      "affected_components": ["Payment API"],
      "attack_scenario": "Token captured on a compromised client is replayed.",
      "mitigation": "Short-lived tokens bound to the client.",
      "references": ["OWASP ASVS V3"]
    },
    {
      "title": "Verbose error pages",
      "description": "Stack traces leak internals.",
      "severity": "LOW",
      "affected_components": ["Payment API"],
      "attack_scenario": "Malformed request triggers a stack trace.",
      "mitigation": "Return generic errors.",
      "references": []
    }
  ]
}`

// MockProvider satisfies models.AnalysisService for testing.
type MockProvider struct {
	Name_            string
	AnalyzeImageFunc func(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error)
	GenerateTextFunc func(ctx context.Context, prompt string, tokenBudget int) (string, error)

	analyzeCalls  atomic.Int64
	generateCalls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	m.analyzeCalls.Add(1)
	if m.AnalyzeImageFunc != nil {
		return m.AnalyzeImageFunc(ctx, imageRef, prompt, tokenBudget)
	}
	return "", nil
}

func (m *MockProvider) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	m.generateCalls.Add(1)
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, prompt, tokenBudget)
	}
	return "", nil
}

// AnalyzeImageCalls returns how many times AnalyzeImage was invoked.
func (m *MockProvider) AnalyzeImageCalls() int { return int(m.analyzeCalls.Load()) }

// GenerateTextCalls returns how many times GenerateText was invoked.
func (m *MockProvider) GenerateTextCalls() int { return int(m.generateCalls.Load()) }

// NewMockProvider returns a MockProvider with well-formed canned responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeImageFunc: func(_ context.Context, _, _ string, _ int) (string, error) {
			return "Here is the analysis:\n```json\n" + ArchitectureJSON + "\n```", nil
		},
		GenerateTextFunc: func(_ context.Context, _ string, _ int) (string, error) {
			return ThreatsJSON, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeImageFunc: func(_ context.Context, _, _ string, _ int) (string, error) {
			return "", err
		},
		GenerateTextFunc: func(_ context.Context, _ string, _ int) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeImageFunc: func(ctx context.Context, _, _ string, _ int) (string, error) {
			<-ctx.Done()
			return "", &models.ServiceError{Provider: "mock-timeout", Op: "analyze image", Err: models.ErrInferenceTimeout}
		},
		GenerateTextFunc: func(ctx context.Context, _ string, _ int) (string, error) {
			<-ctx.Done()
			return "", &models.ServiceError{Provider: "mock-timeout", Op: "generate text", Err: models.ErrInferenceTimeout}
		},
	}
}

// Compile-time check that MockProvider implements AnalysisService.
var _ models.AnalysisService = (*MockProvider)(nil)
