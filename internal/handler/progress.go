package handler

import (
	"net/http"

	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/progress"
)

// handleProgress returns the caller's dashboard: recent submitted attempts, move
// states and confidence calibration.
func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	attempts, err := h.store.ListAttemptsByUser(user.ID)
	if err != nil {
		h.internalError(w, r, "failed to list attempts", err)
		return
	}
	states, err := h.store.ListMoveStates(user.ID)
	if err != nil {
		h.internalError(w, r, "failed to list move states", err)
		return
	}
	moves, err := h.store.ListMoves()
	if err != nil {
		h.internalError(w, r, "failed to list moves", err)
		return
	}
	problems, err := h.store.ListProblems()
	if err != nil {
		h.internalError(w, r, "failed to list problems", err)
		return
	}

	writeJSON(w, http.StatusOK, progress.BuildOverview(attempts, states, moves, problems))
}
