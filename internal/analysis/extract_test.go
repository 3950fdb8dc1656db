package analysis_test

import (
	"errors"
	"testing"

	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"a":1}`,
			expected: `{"a":1}`,
		},
		{
			name:     "prose before and after",
			input:    "Sure! Here you go:\n{\"a\":1}\nLet me know if you need more.",
			expected: `{"a":1}`,
		},
		{
			name:     "markdown code fence",
			input:    "```json\n{\"a\":{\"b\":2}}\n```",
			expected: `{"a":{"b":2}}`,
		},
		{
			name:     "nested braces keep outermost span",
			input:    `x {"a":{"b":{"c":3}}} y`,
			expected: `{"a":{"b":{"c":3}}}`,
		},
		{
			name:     "braces inside strings",
			input:    `{"text":"use {curly} braces"}`,
			expected: `{"text":"use {curly} braces"}`,
		},
		{
			name:     "no braces returns trimmed input",
			input:    "  I cannot help with that.  ",
			expected: "I cannot help with that.",
		},
		{
			name:     "closing brace before opening",
			input:    "} oops {",
			expected: "} oops {",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, analysis.ExtractJSON(tt.input))
		})
	}
}

func TestDecodeArchitecture_Normalizes(t *testing.T) {
	resp := `Here is the result:
{
  "description": "Three tier app",
  "components": [
    {"name": "Web", "type": "application", "description": "SPA", "technologies": ["React", "TypeScript", "React"]},
    {"name": "Queue", "type": "MESSAGE_BUS", "description": "Async jobs"},
    {"name": "DB", "type": " DATABASE ", "description": "Primary store", "technologies": ["PostgreSQL"]}
  ],
  "data_flows": ["Web -> DB"]
}`
	arch, err := analysis.DecodeArchitecture(resp)
	require.NoError(t, err)

	require.Len(t, arch.Components, 3)
	assert.Equal(t, models.ComponentApplication, arch.Components[0].Type)
	assert.Equal(t, []string{"React", "TypeScript"}, arch.Components[0].Technologies)
	assert.Equal(t, models.ComponentService, arch.Components[1].Type)
	assert.Equal(t, []string{}, arch.Components[1].Technologies)
	assert.Equal(t, models.ComponentDatabase, arch.Components[2].Type)
	assert.Equal(t, []string{"Web -> DB"}, arch.DataFlows)
	assert.Equal(t, []string{}, arch.TrustBoundaries)
}

func TestDecodeArchitecture_Failures(t *testing.T) {
	inputs := map[string]string{
		"prose only":         "The diagram shows a web server and a database.",
		"truncated":          `{"description": "cut off", "components": [{"name": "A"`,
		"missing components": `{"description": "no components key"}`,
		"wrong shape":        `{"components": "Web, DB"}`,
		"two objects":        `{"components": []} and also {"components": []}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := analysis.DecodeArchitecture(input)
			var perr *analysis.ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, analysis.StageDiagram, perr.Stage)
			assert.Empty(t, perr.Category)
		})
	}
}

func TestDecodeThreats_TagsAndNormalizes(t *testing.T) {
	resp := `{"threats": [
		{"title": "A", "severity": "critical"},
		{"title": "B", "severity": "Severe"},
		{"title": "C", "severity": "LOW", "affected_components": ["API"]}
	]}`
	threats, err := analysis.DecodeThreats(resp, models.CategoryTampering)
	require.NoError(t, err)
	require.Len(t, threats, 3)

	assert.Equal(t, models.SeverityCritical, threats[0].Severity)
	assert.Equal(t, models.SeverityMedium, threats[1].Severity)
	assert.Equal(t, models.SeverityLow, threats[2].Severity)
	for _, th := range threats {
		assert.Equal(t, models.CategoryTampering, th.Category)
		assert.Equal(t, "Tampering", th.CategoryName)
		assert.NotNil(t, th.References)
	}
	assert.Equal(t, []string{"API"}, threats[2].AffectedComponents)
}

func TestDecodeThreats_EmptyListIsValid(t *testing.T) {
	threats, err := analysis.DecodeThreats(`{"threats": []}`, models.CategorySpoofing)
	require.NoError(t, err)
	assert.Empty(t, threats)
}

func TestDecodeThreats_Failures(t *testing.T) {
	inputs := map[string]string{
		"no json":        "No threats found.",
		"missing key":    `{"risks": []}`,
		"null threats":   `{"threats": null}`,
		"invalid syntax": `{"threats": [ {"title": "x",, } ]}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := analysis.DecodeThreats(input, models.CategoryRepudiation)
			var perr *analysis.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, analysis.StageThreats, perr.Stage)
			assert.Equal(t, models.CategoryRepudiation, perr.Category)
			assert.Contains(t, perr.Error(), "REPUDIATION")
		})
	}
}
