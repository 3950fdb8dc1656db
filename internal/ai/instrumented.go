package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Instrumented wraps an AnalysisService with call metrics and debug logging.
type Instrumented struct {
	next models.AnalysisService
}

func NewInstrumented(next models.AnalysisService) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) Name() string { return s.next.Name() }

func (s *Instrumented) AnalyzeImage(ctx context.Context, imageRef, prompt string, tokenBudget int) (string, error) {
	start := time.Now()
	out, err := s.next.AnalyzeImage(ctx, imageRef, prompt, tokenBudget)
	s.observe("analyze_image", start, len(out), err)
	return out, err
}

func (s *Instrumented) GenerateText(ctx context.Context, prompt string, tokenBudget int) (string, error) {
	start := time.Now()
	out, err := s.next.GenerateText(ctx, prompt, tokenBudget)
	s.observe("generate_text", start, len(out), err)
	return out, err
}

func (s *Instrumented) observe(op string, start time.Time, respLen int, err error) {
	elapsed := time.Since(start)
	metrics.ObserveAICall(s.next.Name(), op, elapsed, err == nil)
	if err != nil {
		slog.Warn("ai call failed", "provider", s.next.Name(), "op", op, "duration_ms", elapsed.Milliseconds(), "error", err)
		return
	}
	slog.Debug("ai call", "provider", s.next.Name(), "op", op, "duration_ms", elapsed.Milliseconds(), "response_bytes", respLen)
}

var _ models.AnalysisService = (*Instrumented)(nil)
