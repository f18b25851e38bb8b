package handler

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

// problemSummary is a problem without its rubric and reference solution.
type problemSummary struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Statement      string   `json:"statement"`
	TopicTags      []string `json:"topicTags"`
	Difficulty     int      `json:"difficulty"`
	MovesSuggested []string `json:"movesSuggested"`
}

func summarize(p model.Problem) problemSummary {
	return problemSummary{
		ID:             p.ID,
		Title:          p.Title,
		Statement:      p.Statement,
		TopicTags:      p.TopicTags,
		Difficulty:     p.Difficulty,
		MovesSuggested: p.MovesSuggested,
	}
}

// handleListProblems lists problems, optionally filtered by ?topic= and ?difficulty=.
func (h *Handler) handleListProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := h.store.ListProblems()
	if err != nil {
		h.internalError(w, r, "failed to list problems", err)
		return
	}

	topic := r.URL.Query().Get("topic")
	difficulty := 0
	if d := r.URL.Query().Get("difficulty"); d != "" {
		difficulty, err = strconv.Atoi(d)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
			return
		}
	}

	out := []problemSummary{}
	for _, p := range problems {
		if topic != "" && !slices.Contains(p.TopicTags, topic) {
			continue
		}
		if difficulty != 0 && p.Difficulty != difficulty {
			continue
		}
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"problems": out})
}

func (h *Handler) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProblem(chi.URLParam(r, "problemID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrProblemNotFound")
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to get problem", err)
		return
	}
	moves, err := h.store.MovesByID(p.MovesSuggested)
	if err != nil {
		h.internalError(w, r, "failed to get moves", err)
		return
	}
	if moves == nil {
		moves = []model.Move{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"problem": summarize(p), "moves": moves})
}

func (h *Handler) handleListMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := h.store.ListMoves()
	if err != nil {
		h.internalError(w, r, "failed to list moves", err)
		return
	}
	if moves == nil {
		moves = []model.Move{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"moves": moves})
}
