package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/progress"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

const (
	defaultAssignmentTitle = "New Assignment"
	defaultDueIn           = 7 * 24 * time.Hour
)

type assignmentListItem struct {
	model.Assignment
	Problems []progress.ProblemRow `json:"problems"`
}

// handleListAssignments lists a teacher's own assignments, or every assignment for students.
func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var (
		assignments []model.Assignment
		err         error
	)
	if user.Role == model.UserRoleTeacher {
		assignments, err = h.store.ListAssignmentsByTeacher(user.ID)
	} else {
		assignments, err = h.store.ListAssignments()
	}
	if err != nil {
		h.internalError(w, r, "failed to list assignments", err)
		return
	}
	problems, err := h.store.ListProblems()
	if err != nil {
		h.internalError(w, r, "failed to list problems", err)
		return
	}

	items := make([]assignmentListItem, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, assignmentListItem{Assignment: a, Problems: progress.AssignmentProblems(a, problems, false)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": items})
}

func (h *Handler) loadAssignment(w http.ResponseWriter, r *http.Request) (model.Assignment, bool) {
	a, err := h.store.GetAssignment(chi.URLParam(r, "assignmentID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrAssignmentNotFound")
		return a, false
	}
	if err != nil {
		h.internalError(w, r, "failed to get assignment", err)
		return a, false
	}
	return a, true
}

// handleGetAssignment returns an assignment with its problems. Only the owning teacher
// receives the per-student progress report.
func (h *Handler) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAssignment(w, r)
	if !ok {
		return
	}
	problems, err := h.store.ListProblems()
	if err != nil {
		h.internalError(w, r, "failed to list problems", err)
		return
	}
	resp := map[string]any{
		"assignment":      a,
		"problems":        progress.AssignmentProblems(a, problems, true),
		"studentProgress": []progress.StudentRow{},
	}

	user := model.UserFromContext(r.Context())
	if user.Role != model.UserRoleTeacher || a.TeacherID != user.ID {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rows, err := h.studentRows(a)
	if err != nil {
		h.internalError(w, r, "failed to build assignment progress", err)
		return
	}
	resp["studentProgress"] = rows
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) studentRows(a model.Assignment) ([]progress.StudentRow, error) {
	students, err := h.store.ListUsers(model.UserRoleStudent)
	if err != nil {
		return nil, err
	}
	moves, err := h.store.ListMoves()
	if err != nil {
		return nil, err
	}
	rows := []progress.StudentRow{}
	for _, s := range students {
		attempts, err := h.store.ListAttemptsByUser(s.ID)
		if err != nil {
			return nil, err
		}
		states, err := h.store.ListMoveStates(s.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, progress.StudentAssignmentRow(s, a, attempts, states, moves))
	}
	return rows, nil
}

type createAssignmentRequest struct {
	Title string     `json:"title" validate:"max=200"`
	DueAt *time.Time `json:"dueAt"`
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[createAssignmentRequest](h, w, r)
	if !ok {
		return
	}
	user := model.UserFromContext(r.Context())
	now := time.Now().UTC()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultAssignmentTitle
	}
	due := now.Add(defaultDueIn)
	if req.DueAt != nil {
		due = req.DueAt.UTC()
	}

	a := model.Assignment{
		ID:         uuid.NewString(),
		TeacherID:  user.ID,
		Title:      title,
		DueAt:      due.Format(time.RFC3339),
		ProblemIDs: []string{},
		CreatedAt:  now,
	}
	if err := h.store.CreateAssignment(a); err != nil {
		h.internalError(w, r, "failed to create assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.Assignment{"assignment": a})
}

// loadOwnAssignment loads the assignment in the URL and checks the caller owns it.
func (h *Handler) loadOwnAssignment(w http.ResponseWriter, r *http.Request) (model.Assignment, bool) {
	a, ok := h.loadAssignment(w, r)
	if !ok {
		return a, false
	}
	if a.TeacherID != model.UserFromContext(r.Context()).ID {
		writeError(w, r, http.StatusForbidden, "ErrTeacherRequired")
		return a, false
	}
	return a, true
}

type addProblemsRequest struct {
	ProblemIDs []string `json:"problemIds" validate:"required,max=100,dive,required"`
}

func (h *Handler) handleAddAssignmentProblems(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[addProblemsRequest](h, w, r)
	if !ok {
		return
	}
	a, ok := h.loadOwnAssignment(w, r)
	if !ok {
		return
	}
	ids, err := h.store.AddAssignmentProblems(a.ID, req.ProblemIDs)
	if err != nil {
		h.internalError(w, r, "failed to add assignment problems", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "problemIds": ids})
}

func (h *Handler) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadOwnAssignment(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteAssignment(a.ID); err != nil {
		h.internalError(w, r, "failed to delete assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
