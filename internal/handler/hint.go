package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamiltonprep/mathcoach/internal/llm"
	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/sse"
)

type hintRequest struct {
	Rung            model.HintRung `json:"rung" validate:"required,oneof=NUDGE POINTER KEY"`
	StuckConfidence *int           `json:"stuckConfidence" validate:"omitempty,min=0,max=100"`
	// AttemptText is the student's current draft; the saved attempt text is used when absent.
	AttemptText *string `json:"attemptText" validate:"omitempty,max=100000"`
}

type hintJob struct {
	attempt model.Attempt
	problem model.Problem
	req     hintRequest
}

// prepareHint validates the request and loads what a hint needs, writing an error
// response and returning false on failure.
func (h *Handler) prepareHint(w http.ResponseWriter, r *http.Request) (hintJob, bool) {
	req, ok := decodeJSON[hintRequest](h, w, r)
	if !ok {
		return hintJob{}, false
	}
	a, p, ok := h.loadAttemptProblem(w, r)
	if !ok {
		return hintJob{}, false
	}
	return hintJob{attempt: a, problem: p, req: req}, true
}

// generateHint asks the tutor for a hint and stores it. A failed write is logged and
// the hint is still returned.
func (h *Handler) generateHint(ctx context.Context, job hintJob, onDelta func(llm.Delta)) (model.Hint, error) {
	moves, err := h.store.MovesByID(job.problem.MovesSuggested)
	if err != nil {
		return model.Hint{}, fmt.Errorf("load suggested moves: %w", err)
	}
	text := job.attempt.Text()
	if job.req.AttemptText != nil {
		text = *job.req.AttemptText
	}

	hintText, err := h.tutor.GenerateHint(ctx, llm.HintParams{
		Problem:         job.problem,
		AttemptText:     text,
		Rung:            job.req.Rung,
		Persona:         job.attempt.Persona,
		StuckConfidence: job.req.StuckConfidence,
		SuggestedMoves:  moves,
		OnDelta:         onDelta,
	})
	if err != nil {
		return model.Hint{}, err
	}

	hint := model.Hint{
		ID:        uuid.NewString(),
		AttemptID: job.attempt.ID,
		Rung:      job.req.Rung,
		HintText:  strings.TrimSpace(hintText),
		CreatedAt: time.Now(),
	}
	if err := h.store.AddHint(hint); err != nil {
		slog.Error("failed to save hint", "attempt_id", hint.AttemptID, "rung", hint.Rung, "error", err)
	}
	return hint, nil
}

func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	job, ok := h.prepareHint(w, r)
	if !ok {
		return
	}
	hint, err := h.generateHint(r.Context(), job, nil)
	if err != nil {
		status, msgID := generationFailure(err, "ErrHintFailed")
		slog.Error("hint generation failed", "attempt_id", job.attempt.ID, "rung", job.req.Rung, "error", err)
		writeError(w, r, status, msgID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.Hint{"hint": hint})
}

func (h *Handler) handleHintStream(w http.ResponseWriter, r *http.Request) {
	job, ok := h.prepareHint(w, r)
	if !ok {
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		h.internalError(w, r, "failed to start event stream", err)
		return
	}
	relay := sse.NewRelay(sw)
	relay.Processing()

	hint, err := h.generateHint(r.Context(), job, relay.Delta)
	if err != nil {
		_, msgID := generationFailure(err, "ErrHintFailed")
		slog.Error("hint stream failed", "attempt_id", job.attempt.ID, "rung", job.req.Rung, "error", err)
		relay.Fail(appMessage(r, msgID))
		return
	}
	relay.Done(sse.DonePayload{Hint: &sse.HintPayload{Rung: string(hint.Rung), HintText: hint.HintText}})
	if err := relay.Err(); err != nil {
		slog.Warn("hint stream interrupted", "attempt_id", job.attempt.ID, "error", err)
	}
}
