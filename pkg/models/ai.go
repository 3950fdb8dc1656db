// Package models contains shared data models used across the threatlens codebase.
package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AnalysisService is the external AI capability the pipeline depends on.
// Pipeline stages never call a provider package directly.
type AnalysisService interface {
	// AnalyzeImage sends the image at imageRef together with prompt to a
	// vision-capable model and returns the raw response text.
	AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error)
	// GenerateText sends a text-only prompt and returns the raw response text.
	GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error)
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string
}

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrRateLimited         = errors.New("ai provider rate limited")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// ServiceError is returned by an AnalysisService when the call to the model
// fails. Err is one of the sentinels above or the underlying transport error.
type ServiceError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// HTTPStatusError maps a non-2xx provider status code to a sentinel.
func HTTPStatusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: http %d", ErrProviderUnavailable, code)
	default:
		return fmt.Errorf("%w: http %d", ErrInvalidResponse, code)
	}
}
