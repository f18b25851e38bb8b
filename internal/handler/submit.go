package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hamiltonprep/mathcoach/internal/llm"
	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/sse"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

const (
	// promotionMarks is the score at which clicked moves advance a status.
	promotionMarks = 7
	exampleRunes   = 200
)

type claimInput struct {
	ClaimText  string `json:"claimText" validate:"max=2000"`
	ReasonText string `json:"reasonText" validate:"max=2000"`
	LinkText   string `json:"linkText" validate:"max=2000"`
	Confidence *int   `json:"confidence" validate:"omitempty,min=0,max=100"`
}

type submitRequest struct {
	AttemptText     string       `json:"attemptText" validate:"max=100000"`
	Claims          []claimInput `json:"claims" validate:"max=20,dive"`
	FinalConfidence *int         `json:"finalConfidence" validate:"omitempty,min=0,max=100"`
}

type submitJob struct {
	user            *model.User
	attempt         model.Attempt
	problem         model.Problem
	attemptText     string
	claims          []model.Claim
	finalConfidence int
}

func (h *Handler) prepareSubmit(w http.ResponseWriter, r *http.Request) (submitJob, bool) {
	req, ok := decodeJSON[submitRequest](h, w, r)
	if !ok {
		return submitJob{}, false
	}
	a, p, ok := h.loadAttemptProblem(w, r)
	if !ok {
		return submitJob{}, false
	}
	if a.SubmittedAt != nil {
		writeError(w, r, http.StatusBadRequest, "ErrAlreadySubmitted")
		return submitJob{}, false
	}

	claims := make([]model.Claim, 0, len(req.Claims))
	for _, c := range req.Claims {
		confidence := defaultConfidence
		if c.Confidence != nil {
			confidence = *c.Confidence
		}
		claims = append(claims, model.Claim{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			ClaimText:  c.ClaimText,
			ReasonText: c.ReasonText,
			LinkText:   c.LinkText,
			Confidence: confidence,
		})
	}
	final := defaultConfidence
	if req.FinalConfidence != nil {
		final = *req.FinalConfidence
	}
	return submitJob{
		user:            model.UserFromContext(r.Context()),
		attempt:         a,
		problem:         p,
		attemptText:     req.AttemptText,
		claims:          claims,
		finalConfidence: final,
	}, true
}

// gradeAndSave grades the attempt and stores the result in one batch. The claim
// replacement is queued before grading and flushed even when grading fails. The
// returned error includes a failed flush.
func (h *Handler) gradeAndSave(ctx context.Context, job submitJob, onDelta func(llm.Delta)) (fb model.FeedbackResult, err error) {
	batch := h.store.NewBatch()
	defer func() {
		if cerr := batch.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("save submission: %w", cerr)
		}
	}()

	if err := batch.ReplaceClaims(job.attempt.ID, job.claims); err != nil {
		return fb, err
	}
	hintsUsed, err := h.store.HintRungs(job.attempt.ID)
	if err != nil {
		return fb, fmt.Errorf("load hints: %w", err)
	}

	fb, err = h.tutor.GradeAttempt(ctx, llm.GradeParams{
		Problem:         job.problem,
		AttemptText:     job.attemptText,
		Claims:          job.claims,
		StartConfidence: job.attempt.StartConfidence,
		FinalConfidence: job.finalConfidence,
		HintsUsed:       hintsUsed,
		OnDelta:         onDelta,
	})
	if err != nil {
		return fb, err
	}

	now := time.Now()
	marks := fb.EstimatedMarks
	submitted := job.attempt
	submitted.AttemptText = &job.attemptText
	submitted.FinalConfidence = &job.finalConfidence
	submitted.SubmittedAt = &now
	submitted.EstimatedMarks = &marks
	submitted.Feedback = &fb
	if err := batch.SubmitAttempt(submitted); err != nil {
		return fb, err
	}

	if fb.EstimatedMarks >= promotionMarks {
		if err := h.queuePromotions(batch, job); err != nil {
			return fb, err
		}
	}
	return fb, nil
}

// queuePromotions advances every move clicked during the attempt by one status.
func (h *Handler) queuePromotions(batch *store.Batch, job submitJob) error {
	for _, moveID := range job.attempt.MoveClicks {
		ms, err := h.store.GetMoveState(job.user.ID, moveID)
		if err != nil {
			return fmt.Errorf("load move state %s: %w", moveID, err)
		}
		ms.Status = ms.Status.Next()
		if job.attemptText != "" {
			example := truncateRunes(job.attemptText, exampleRunes)
			ms.LastExampleText = &example
		}
		if err := batch.PutMoveState(job.user.ID, ms); err != nil {
			return err
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	job, ok := h.prepareSubmit(w, r)
	if !ok {
		return
	}
	fb, err := h.gradeAndSave(r.Context(), job, nil)
	if err != nil {
		status, msgID := generationFailure(err, "ErrGradingFailed")
		slog.Error("grading failed", "attempt_id", job.attempt.ID, "error", err)
		writeError(w, r, status, msgID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": fb, "attemptId": job.attempt.ID})
}

func (h *Handler) handleSubmitStream(w http.ResponseWriter, r *http.Request) {
	job, ok := h.prepareSubmit(w, r)
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

	if _, err := h.gradeAndSave(r.Context(), job, relay.Delta); err != nil {
		_, msgID := generationFailure(err, "ErrGradingFailed")
		slog.Error("grading stream failed", "attempt_id", job.attempt.ID, "error", err)
		relay.Fail(appMessage(r, msgID))
		return
	}
	relay.Done(sse.DonePayload{AttemptID: job.attempt.ID})
	if err := relay.Err(); err != nil {
		slog.Warn("grading stream interrupted", "attempt_id", job.attempt.ID, "error", err)
	}
}
