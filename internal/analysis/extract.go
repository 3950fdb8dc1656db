package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Stage names carried by ParseError.
const (
	StageDiagram = "diagram"
	StageThreats = "threats"
)

// ParseError reports that a model response could not be decoded into the
// expected structure. Category is empty for the diagram stage.
type ParseError struct {
	Stage    string
	Category models.ThreatCategory
	Err      error
}

func (e *ParseError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("parse %s response for %s: %v", e.Stage, e.Category, e.Err)
	}
	return fmt.Sprintf("parse %s response: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON returns the span from the first '{' to the last '}' in text,
// dropping any prose or code fences the model wrapped around its answer.
// When no such span exists the trimmed text is returned unchanged.
func ExtractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// DecodeArchitecture extracts and decodes a diagram response.
// Component types outside the known set become SERVICE and duplicate
// technologies are dropped.
func DecodeArchitecture(text string) (*models.ArchitectureModel, error) {
	var raw struct {
		Description     string              `json:"description"`
		Components      *[]models.Component `json:"components"`
		DataFlows       []string            `json:"data_flows"`
		TrustBoundaries []string            `json:"trust_boundaries"`
	}
	if err := decodeStrict(ExtractJSON(text), &raw); err != nil {
		return nil, &ParseError{Stage: StageDiagram, Err: err}
	}
	if raw.Components == nil {
		return nil, &ParseError{Stage: StageDiagram, Err: errors.New("missing components")}
	}

	arch := &models.ArchitectureModel{
		Description:     raw.Description,
		Components:      make([]models.Component, 0, len(*raw.Components)),
		DataFlows:       nonNil(raw.DataFlows),
		TrustBoundaries: nonNil(raw.TrustBoundaries),
	}
	for _, c := range *raw.Components {
		c.Type = models.ComponentType(strings.ToUpper(strings.TrimSpace(string(c.Type))))
		if !c.Type.Valid() {
			c.Type = models.ComponentService
		}
		c.Technologies = dedupe(c.Technologies)
		arch.Components = append(arch.Components, c)
	}
	return arch, nil
}

// DecodeThreats extracts and decodes a per-category threat response and tags
// every threat with the category. Severities outside the known set become MEDIUM.
func DecodeThreats(text string, category models.ThreatCategory) ([]models.Threat, error) {
	var raw struct {
		Threats *[]models.Threat `json:"threats"`
	}
	if err := decodeStrict(ExtractJSON(text), &raw); err != nil {
		return nil, &ParseError{Stage: StageThreats, Category: category, Err: err}
	}
	if raw.Threats == nil {
		return nil, &ParseError{Stage: StageThreats, Category: category, Err: errors.New("missing threats")}
	}

	threats := make([]models.Threat, 0, len(*raw.Threats))
	for _, t := range *raw.Threats {
		t.Severity = normalizeSeverity(t.Severity)
		t.Category = category
		t.CategoryName = CategoryName(category)
		t.AffectedComponents = nonNil(t.AffectedComponents)
		t.References = nonNil(t.References)
		threats = append(threats, t)
	}
	return threats, nil
}

// decodeStrict decodes exactly one JSON object from s.
func decodeStrict(s string, v any) error {
	if !strings.HasPrefix(s, "{") {
		return errors.New("no JSON object in response")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func normalizeSeverity(s models.Severity) models.Severity {
	s = models.Severity(strings.ToUpper(strings.TrimSpace(string(s))))
	if !s.Valid() {
		return models.SeverityMedium
	}
	return s
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
