package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Categories is the fixed STRIDE evaluation order.
var Categories = []models.ThreatCategory{
	models.CategorySpoofing,
	models.CategoryTampering,
	models.CategoryRepudiation,
	models.CategoryInformationDisclosure,
	models.CategoryDenialOfService,
	models.CategoryElevationOfPrivilege,
}

var categoryNames = map[models.ThreatCategory]string{
	models.CategorySpoofing:              "Spoofing",
	models.CategoryTampering:             "Tampering",
	models.CategoryRepudiation:           "Repudiation",
	models.CategoryInformationDisclosure: "Information Disclosure",
	models.CategoryDenialOfService:       "Denial of Service",
	models.CategoryElevationOfPrivilege:  "Elevation of Privilege",
}

// CategoryName returns the display label for a STRIDE category.
func CategoryName(c models.ThreatCategory) string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// DefaultCategoryDelay is the pause between consecutive category calls.
const DefaultCategoryDelay = time.Second

// CategoryResult is the outcome of one category. Err is a *ParseError when the
// response could not be decoded; Threats is then empty.
type CategoryResult struct {
	Category models.ThreatCategory
	Threats  []models.Threat
	Err      error
}

// ThreatAnalysis is the aggregated output of a ThreatStage run.
type ThreatAnalysis struct {
	Threats        []models.Threat
	Summary        string
	SeverityCounts models.SeverityCounts
	Categories     []CategoryResult
}

// FailedCategories returns the categories whose responses could not be decoded.
func (a *ThreatAnalysis) FailedCategories() []models.ThreatCategory {
	var out []models.ThreatCategory
	for _, r := range a.Categories {
		if r.Err != nil {
			out = append(out, r.Category)
		}
	}
	return out
}

// ThreatStage evaluates an architecture against every STRIDE category, one
// sequential text call per category.
type ThreatStage struct {
	svc         models.AnalysisService
	tokenBudget int
	delay       time.Duration
}

// NewThreatStage creates a ThreatStage. delay is waited between categories;
// zero disables it. A non-positive tokenBudget uses DefaultTokenBudget.
func NewThreatStage(svc models.AnalysisService, tokenBudget int, delay time.Duration) *ThreatStage {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	if delay < 0 {
		delay = 0
	}
	return &ThreatStage{svc: svc, tokenBudget: tokenBudget, delay: delay}
}

// Analyze runs every category in order. An undecodable category response is
// recorded in the result and contributes no threats. A failing service call
// aborts the stage and is returned.
func (s *ThreatStage) Analyze(ctx context.Context, systemName string, arch *models.ArchitectureModel) (*ThreatAnalysis, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.threats")
	defer span.End()

	results := make([]CategoryResult, 0, len(Categories))
	for i, category := range Categories {
		threats, err := s.analyzeCategory(ctx, systemName, arch, category)
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("analyze %s threats: %w", category, err)
			}
			slog.Warn("threat category response could not be parsed",
				"category", category,
				"error", err,
			)
			results = append(results, CategoryResult{Category: category, Threats: []models.Threat{}, Err: err})
		} else {
			results = append(results, CategoryResult{Category: category, Threats: threats})
		}

		if i < len(Categories)-1 {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	out := aggregate(results)
	span.SetAttributes(
		attribute.Int("analysis.threats", len(out.Threats)),
		attribute.Int("analysis.failed_categories", len(out.FailedCategories())),
	)
	return out, nil
}

func (s *ThreatStage) analyzeCategory(ctx context.Context, systemName string, arch *models.ArchitectureModel, category models.ThreatCategory) ([]models.Threat, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.threats.category",
		traceCategory(category))
	defer span.End()

	resp, err := s.svc.GenerateText(ctx, ThreatPrompt(systemName, arch, category), s.tokenBudget)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	threats, err := DecodeThreats(resp, category)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("analysis.threats", len(threats)))
	return threats, nil
}

func (s *ThreatStage) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ThreatPrompt builds the prompt for one STRIDE category.
func ThreatPrompt(systemName string, arch *models.ArchitectureModel, category models.ThreatCategory) string {
	components := make([]string, 0, len(arch.Components))
	for _, c := range arch.Components {
		components = append(components, fmt.Sprintf("- %s (%s): %s", c.Name, c.Type, c.Description))
	}
	flows := "Not specified"
	if len(arch.DataFlows) > 0 {
		flows = strings.Join(arch.DataFlows, "\n")
	}

	var b strings.Builder
	b.WriteString("You are a software security expert specializing in STRIDE threat modeling.\n\n")
	fmt.Fprintf(&b, "System: %s\n\n", systemName)
	fmt.Fprintf(&b, "Architecture:\n%s\n\n", strings.Join(components, "\n"))
	fmt.Fprintf(&b, "Data flows:\n%s\n\n", flows)
	fmt.Fprintf(&b, "Analyze the threats in the %q category for this system.\n\n", CategoryName(category))
	b.WriteString(`Provide the analysis in the following JSON format:

{
  "threats": [
    {
      "title": "Threat title",
      "description": "Detailed description of the threat",
      "severity": "CRITICAL|HIGH|MEDIUM|LOW",
      "affected_components": ["component1", "component2"],
      "attack_scenario": "Detailed attack scenario",
      "mitigation": "Recommended mitigation strategy",
      "references": ["reference1", "reference2"]
    }
  ]
}

Identify at least 2-3 relevant threats for this category.
Respond ONLY with the JSON, without any additional text.`)
	return b.String()
}

// Summarize renders severity counts as a sentence.
func Summarize(total int, counts models.SeverityCounts) string {
	return fmt.Sprintf("Analysis identified %d threats: %d critical, %d high, %d medium and %d low.",
		total, counts.Critical, counts.High, counts.Medium, counts.Low)
}

// CountSeverities tallies threats per severity.
func CountSeverities(threats []models.Threat) models.SeverityCounts {
	var c models.SeverityCounts
	for _, t := range threats {
		switch t.Severity {
		case models.SeverityCritical:
			c.Critical++
		case models.SeverityHigh:
			c.High++
		case models.SeverityLow:
			c.Low++
		default:
			c.Medium++
		}
	}
	return c
}

// aggregate flattens the successful categories in evaluation order.
func aggregate(results []CategoryResult) *ThreatAnalysis {
	threats := []models.Threat{}
	for _, r := range results {
		if r.Err == nil {
			threats = append(threats, r.Threats...)
		}
	}
	counts := CountSeverities(threats)
	return &ThreatAnalysis{
		Threats:        threats,
		Summary:        Summarize(len(threats), counts),
		SeverityCounts: counts,
		Categories:     results,
	}
}

func traceCategory(c models.ThreatCategory) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("analysis.category", string(c)))
}
