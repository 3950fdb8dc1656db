package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(_ context.Context) error { return p.err }

func TestHealthHandler_AllOK(t *testing.T) {
	h := NewHealthHandler(pinger{}, pinger{})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	down := pinger{err: errors.New("connection refused")}
	tests := []struct {
		name      string
		db, cache pinger
		wantDB    string
		wantCache string
	}{
		{"database", down, pinger{}, "degraded", "ok"},
		{"cache", pinger{}, down, "ok", "degraded"},
		{"both", down, down, "degraded", "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.db, tt.cache)(w, httptest.NewRequest("GET", "/api/v1/health", nil))

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "DEGRADED", errObj["code"])
			details := errObj["details"].(map[string]any)
			assert.Equal(t, tt.wantDB, details["database"])
			assert.Equal(t, tt.wantCache, details["cache"])
		})
	}
}
