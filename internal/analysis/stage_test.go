package analysis_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/ai/mock"
	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArchitecture() *models.ArchitectureModel {
	return &models.ArchitectureModel{
		Description: "Payment flow",
		Components: []models.Component{
			{Name: "Payment API", Type: models.ComponentAPI, Description: "Accepts payments"},
			{Name: "Ledger DB", Type: models.ComponentDatabase, Description: "Stores transactions"},
		},
		DataFlows: []string{"API -> DB"},
	}
}

// categoryOf finds which category a prompt was built for.
func categoryOf(prompt string) models.ThreatCategory {
	for _, c := range analysis.Categories {
		if strings.Contains(prompt, `"`+analysis.CategoryName(c)+`"`) {
			return c
		}
	}
	return ""
}

// --- DiagramStage ---

func TestDiagramStage_Success(t *testing.T) {
	p := mock.NewMockProvider()
	var gotBudget int
	var gotRef string
	inner := p.AnalyzeImageFunc
	p.AnalyzeImageFunc = func(ctx context.Context, ref, prompt string, budget int) (string, error) {
		gotRef, gotBudget = ref, budget
		assert.Contains(t, prompt, "trust_boundaries")
		return inner(ctx, ref, prompt, budget)
	}

	arch, err := analysis.NewDiagramStage(p, 0).Analyze(context.Background(), "uploads/d.png")
	require.NoError(t, err)
	assert.Len(t, arch.Components, 3)
	assert.Equal(t, "uploads/d.png", gotRef)
	assert.Equal(t, analysis.DefaultTokenBudget, gotBudget)
	assert.Equal(t, 1, p.AnalyzeImageCalls())
}

func TestDiagramStage_ParseError(t *testing.T) {
	p := mock.NewMockProvider()
	p.AnalyzeImageFunc = func(context.Context, string, string, int) (string, error) {
		return "I could not read the diagram.", nil
	}

	_, err := analysis.NewDiagramStage(p, 4096).Analyze(context.Background(), "d.png")
	var perr *analysis.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, analysis.StageDiagram, perr.Stage)
}

func TestDiagramStage_ServiceError(t *testing.T) {
	svcErr := &models.ServiceError{Provider: "mock", Op: "analyze image", Err: models.ErrProviderUnavailable}
	p := mock.NewFailingProvider(svcErr)

	_, err := analysis.NewDiagramStage(p, 4096).Analyze(context.Background(), "d.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	var perr *analysis.ParseError
	assert.False(t, errors.As(err, &perr))
}

// --- ThreatStage ---

func TestThreatStage_AllCategoriesInOrder(t *testing.T) {
	p := mock.NewMockProvider()
	var mu sync.Mutex
	var order []models.ThreatCategory
	p.GenerateTextFunc = func(_ context.Context, prompt string, budget int) (string, error) {
		mu.Lock()
		order = append(order, categoryOf(prompt))
		mu.Unlock()
		assert.Equal(t, 2048, budget)
		return mock.ThreatsJSON, nil
	}

	out, err := analysis.NewThreatStage(p, 2048, 0).Analyze(context.Background(), "PaymentGateway", sampleArchitecture())
	require.NoError(t, err)

	assert.Equal(t, analysis.Categories, order)
	require.Len(t, out.Threats, 12)
	for i, c := range analysis.Categories {
		assert.Equal(t, c, out.Threats[2*i].Category)
		assert.Equal(t, c, out.Threats[2*i+1].Category)
	}
	assert.Equal(t, models.SeverityCounts{High: 6, Low: 6}, out.SeverityCounts)
	assert.Equal(t, "Analysis identified 12 threats: 0 critical, 6 high, 0 medium and 6 low.", out.Summary)
	assert.Empty(t, out.FailedCategories())
}

func TestThreatStage_ContainsParseFailure(t *testing.T) {
	p := mock.NewMockProvider()
	p.GenerateTextFunc = func(_ context.Context, prompt string, _ int) (string, error) {
		if categoryOf(prompt) == models.CategoryRepudiation {
			return "Sorry, something went wrong {not json", nil
		}
		return mock.ThreatsJSON, nil
	}

	out, err := analysis.NewThreatStage(p, 0, 0).Analyze(context.Background(), "PaymentGateway", sampleArchitecture())
	require.NoError(t, err)

	assert.Equal(t, 6, p.GenerateTextCalls())
	assert.Equal(t, []models.ThreatCategory{models.CategoryRepudiation}, out.FailedCategories())
	assert.Len(t, out.Threats, 10)
	for _, th := range out.Threats {
		assert.NotEqual(t, models.CategoryRepudiation, th.Category)
	}
	require.Len(t, out.Categories, 6)
	assert.Empty(t, out.Categories[2].Threats)
	var perr *analysis.ParseError
	assert.ErrorAs(t, out.Categories[2].Err, &perr)
}

func TestThreatStage_ServiceErrorIsFatal(t *testing.T) {
	p := mock.NewMockProvider()
	p.GenerateTextFunc = func(_ context.Context, prompt string, _ int) (string, error) {
		if categoryOf(prompt) == models.CategoryTampering {
			return "", &models.ServiceError{Provider: "mock", Op: "generate text", Err: models.ErrRateLimited}
		}
		return mock.ThreatsJSON, nil
	}

	out, err := analysis.NewThreatStage(p, 0, 0).Analyze(context.Background(), "PaymentGateway", sampleArchitecture())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, 2, p.GenerateTextCalls())
}

func TestThreatStage_DelayBetweenCategoriesOnly(t *testing.T) {
	p := mock.NewMockProvider()
	var mu sync.Mutex
	var calls []time.Time
	p.GenerateTextFunc = func(context.Context, string, int) (string, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		return `{"threats": []}`, nil
	}

	delay := 50 * time.Millisecond
	start := time.Now()
	_, err := analysis.NewThreatStage(p, 0, delay).Analyze(context.Background(), "S", sampleArchitecture())
	require.NoError(t, err)
	elapsed := time.Since(start)

	require.Len(t, calls, 6)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), delay)
	}
	// Five gaps, no trailing wait after the last category.
	assert.Less(t, elapsed, 6*delay-10*time.Millisecond)
}

func TestThreatPrompt(t *testing.T) {
	prompt := analysis.ThreatPrompt("PaymentGateway", sampleArchitecture(), models.CategoryDenialOfService)

	assert.Contains(t, prompt, "System: PaymentGateway")
	assert.Contains(t, prompt, "- Payment API (API): Accepts payments")
	assert.Contains(t, prompt, "- Ledger DB (DATABASE): Stores transactions")
	assert.Contains(t, prompt, "Data flows:\nAPI -> DB")
	assert.Contains(t, prompt, `"Denial of Service"`)
	assert.Contains(t, prompt, `"threats"`)
}

func TestThreatPrompt_NoDataFlows(t *testing.T) {
	arch := sampleArchitecture()
	arch.DataFlows = nil
	prompt := analysis.ThreatPrompt("S", arch, models.CategorySpoofing)
	assert.Contains(t, prompt, "Data flows:\nNot specified")
}

func TestCountSeveritiesAndSummarize(t *testing.T) {
	threats := []models.Threat{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityLow},
	}
	counts := analysis.CountSeverities(threats)
	assert.Equal(t, models.SeverityCounts{Critical: 1, High: 2, Medium: 1, Low: 1}, counts)
	assert.Equal(t, len(threats), counts.Total())
	assert.Equal(t, "Analysis identified 5 threats: 1 critical, 2 high, 1 medium and 1 low.",
		analysis.Summarize(len(threats), counts))
}

func TestCategoryName(t *testing.T) {
	assert.Equal(t, "Information Disclosure", analysis.CategoryName(models.CategoryInformationDisclosure))
	assert.Equal(t, "UNKNOWN", analysis.CategoryName("UNKNOWN"))
}
