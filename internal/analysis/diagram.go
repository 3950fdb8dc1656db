package analysis

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

const tracerName = "github.com/kiranshivaraju/threatlens/internal/analysis"

// DefaultTokenBudget is used by both stages when no budget is configured.
const DefaultTokenBudget = 4096

const diagramPrompt = `You are an expert in software architecture and system security.

Analyze this architecture diagram and describe it in the following JSON format:

{
  "description": "Overall description of the architecture (2-3 sentences)",
  "components": [
    {
      "name": "Component name",
      "type": "APPLICATION|DATABASE|API|SERVICE|EXTERNAL|NETWORK|USER|STORAGE",
      "description": "Detailed description of the component",
      "technologies": ["technology1", "technology2"]
    }
  ],
  "data_flows": [
    "Description of the data flow between components"
  ],
  "trust_boundaries": [
    "Description of the identified trust boundaries"
  ]
}

Be precise and identify ALL components visible in the diagram.
Respond ONLY with the JSON, without any additional text.`

// DiagramStage turns an architecture diagram into an ArchitectureModel with a
// single vision call.
type DiagramStage struct {
	svc         models.AnalysisService
	tokenBudget int
}

// NewDiagramStage creates a DiagramStage. A non-positive tokenBudget uses
// DefaultTokenBudget.
func NewDiagramStage(svc models.AnalysisService, tokenBudget int) *DiagramStage {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &DiagramStage{svc: svc, tokenBudget: tokenBudget}
}

// Analyze returns a *ParseError when the response cannot be decoded and the
// service error unchanged when the call itself fails.
func (s *DiagramStage) Analyze(ctx context.Context, imageRef string) (*models.ArchitectureModel, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.diagram")
	defer span.End()

	resp, err := s.svc.AnalyzeImage(ctx, imageRef, diagramPrompt, s.tokenBudget)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("analyze diagram: %w", err)
	}

	arch, err := DecodeArchitecture(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("analysis.components", len(arch.Components)))
	return arch, nil
}
