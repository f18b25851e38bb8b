package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hamiltonprep/mathcoach/internal/feedback"
	"github.com/hamiltonprep/mathcoach/internal/llm/prompts"
	"github.com/hamiltonprep/mathcoach/internal/model"
)

// Stage labels for generation calls.
const (
	StageHint  = "hint"
	StageGrade = "grade"
)

// HintOutput is the JSON shape a hint generation must produce.
type HintOutput struct {
	HintText string `json:"hintText" validate:"notblank"`
}

// Coach is a Tutor backed by a streaming generation backend.
type Coach struct {
	backend     Backend
	maxAttempts int
}

// NewCoach creates a Coach. maxAttempts below 1 falls back to 2.
func NewCoach(backend Backend, maxAttempts int) *Coach {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &Coach{backend: backend, maxAttempts: maxAttempts}
}

// GenerateHint asks the backend for a single hint at the requested rung.
func (c *Coach) GenerateHint(ctx context.Context, p HintParams) (string, error) {
	system, user := prompts.BuildHintPrompt(prompts.HintInput{
		Problem:         p.Problem,
		AttemptText:     p.AttemptText,
		Rung:            p.Rung,
		Persona:         p.Persona,
		StuckConfidence: p.StuckConfidence,
		SuggestedMoves:  p.SuggestedMoves,
	})

	out, err := GenerateStructured[HintOutput](ctx, c.backend, system, user,
		WithMaxAttempts(c.maxAttempts),
		WithDeltaSink(p.OnDelta),
		WithStage(StageHint),
	)
	if err != nil {
		logGenerationError(err)
		return "", err
	}
	return strings.TrimSpace(out.HintText), nil
}

// GradeAttempt grades an attempt against the problem's rubric and normalizes the result.
func (c *Coach) GradeAttempt(ctx context.Context, p GradeParams) (model.FeedbackResult, error) {
	system, user := prompts.BuildGradePrompt(prompts.GradeInput{
		Problem:         p.Problem,
		AttemptText:     p.AttemptText,
		Claims:          p.Claims,
		StartConfidence: p.StartConfidence,
		FinalConfidence: p.FinalConfidence,
		HintsUsed:       p.HintsUsed,
	})

	raw, err := GenerateStructured[feedback.Raw](ctx, c.backend, system, user,
		WithMaxAttempts(c.maxAttempts),
		WithDeltaSink(p.OnDelta),
		WithStage(StageGrade),
	)
	if err != nil {
		logGenerationError(err)
		return model.FeedbackResult{}, err
	}
	return feedback.Normalize(p.Problem, raw, p.HintsUsed), nil
}

func logGenerationError(err error) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		slog.Error("structured generation failed", "error", genErr.Error(), "attempts", genErr)
		return
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		slog.Error("generation backend failed", "provider", provErr.Provider, "code", provErr.Code, "error", provErr.Err)
		return
	}
	slog.Error("generation failed", "error", err)
}
