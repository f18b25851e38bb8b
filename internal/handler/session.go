package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

const defaultConfidence = 50

type startSessionRequest struct {
	ProblemID       string         `json:"problemId" validate:"required"`
	Persona         *model.Persona `json:"persona" validate:"omitempty,oneof=COACH QUIZ_MASTER RIVAL"`
	StartConfidence *int           `json:"startConfidence" validate:"omitempty,min=0,max=100"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[startSessionRequest](h, w, r)
	if !ok {
		return
	}
	user := model.UserFromContext(r.Context())

	if _, err := h.store.GetProblem(req.ProblemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "ErrProblemNotFound")
			return
		}
		h.internalError(w, r, "failed to get problem", err)
		return
	}

	persona := model.PersonaCoach
	switch {
	case req.Persona != nil:
		persona = *req.Persona
	case user.Persona != nil:
		persona = *user.Persona
	}
	confidence := defaultConfidence
	if req.StartConfidence != nil {
		confidence = *req.StartConfidence
	}

	attempt := model.Attempt{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		ProblemID:       req.ProblemID,
		Persona:         persona,
		StartedAt:       time.Now(),
		StartConfidence: confidence,
		MoveClicks:      []string{},
	}
	if err := h.store.CreateAttempt(attempt); err != nil {
		h.internalError(w, r, "failed to create attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"attemptId": attempt.ID})
}

// loadAttempt returns the caller's attempt named in the URL. Attempts of other
// users are reported as not found.
func (h *Handler) loadAttempt(w http.ResponseWriter, r *http.Request) (model.Attempt, bool) {
	user := model.UserFromContext(r.Context())
	a, err := h.store.GetAttempt(chi.URLParam(r, "attemptID"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.UserID != user.ID) {
		writeError(w, r, http.StatusNotFound, "ErrAttemptNotFound")
		return a, false
	}
	if err != nil {
		h.internalError(w, r, "failed to get attempt", err)
		return a, false
	}
	return a, true
}

// loadAttemptProblem loads the caller's attempt and its problem.
func (h *Handler) loadAttemptProblem(w http.ResponseWriter, r *http.Request) (model.Attempt, model.Problem, bool) {
	a, ok := h.loadAttempt(w, r)
	if !ok {
		return a, model.Problem{}, false
	}
	p, err := h.store.GetProblem(a.ProblemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrProblemNotFound")
		return a, p, false
	}
	if err != nil {
		h.internalError(w, r, "failed to get problem", err)
		return a, p, false
	}
	return a, p, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAttempt(w, r)
	if !ok {
		return
	}
	view, err := h.store.GetAttemptView(a.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrProblemNotFound")
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to get attempt view", err)
		return
	}
	moves, err := h.store.ListMoves()
	if err != nil {
		h.internalError(w, r, "failed to list moves", err)
		return
	}
	if moves == nil {
		moves = []model.Move{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempt": view.Attempt,
		"problem": view.Problem,
		"claims":  view.Claims,
		"hints":   view.Hints,
		"moves":   moves,
	})
}

type moveClickRequest struct {
	MoveID string `json:"moveId" validate:"required,notblank"`
}

func (h *Handler) handleMoveClick(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[moveClickRequest](h, w, r)
	if !ok {
		return
	}
	a, ok := h.loadAttempt(w, r)
	if !ok {
		return
	}
	clicks, err := h.store.AddMoveClick(a.ID, req.MoveID)
	if err != nil {
		h.internalError(w, r, "failed to record move click", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "moveClicks": clicks})
}
