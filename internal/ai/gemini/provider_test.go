package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/threatlens/internal/ai/gemini"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateText(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"threats\":"},{"text":"[]}"}]}}]}`))
	}))
	defer server.Close()

	p, err := gemini.NewProvider(context.Background(), config.GeminiConfig{
		APIKey: "gm-test", BaseURL: server.URL, Model: "gemini-test",
	}, server.Client())
	require.NoError(t, err)

	out, err := p.GenerateText(context.Background(), "list threats", 512)
	require.NoError(t, err)
	assert.Equal(t, `{"threats":[]}`, out)

	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 512, gen["maxOutputTokens"])
}

func TestName(t *testing.T) {
	p, err := gemini.NewProvider(context.Background(), config.GeminiConfig{APIKey: "k", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
}
